package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of deferred work, such as a notification delivery.
type Task struct {
	ID      string
	Kind    string
	Payload any
}

// Handler executes a task. A non-nil error triggers a retry.
type Handler func(ctx context.Context, task Task) error

// Config tunes the worker pool.
type Config struct {
	Workers int
	Buffer  int
	Retries int
	Backoff time.Duration
	Logger  *zap.Logger
}

var (
	// ErrClosed is returned by Enqueue once the queue is stopped.
	ErrClosed = errors.New("queue closed")
	// ErrFull is returned by Enqueue when the buffer is saturated.
	// Callers treat delivery as best-effort and drop the task.
	ErrFull = errors.New("queue full")
)

// Queue runs tasks on a fixed pool of goroutines. Each task gets at
// most Retries+1 attempts with a fixed backoff between them; a task
// that still fails is dropped with an error log. Stop drains whatever
// is already buffered before returning.
type Queue struct {
	name    string
	handler Handler
	retries int
	backoff time.Duration
	workers int
	log     *zap.Logger

	mu      sync.RWMutex
	tasks   chan Task
	running bool
	wg      sync.WaitGroup
}

// NewQueue builds a queue with the provided handler.
func NewQueue(name string, handler Handler, cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = cfg.Workers * 8
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:    name,
		handler: handler,
		retries: cfg.Retries,
		backoff: cfg.Backoff,
		workers: cfg.Workers,
		log:     cfg.Logger.With(zap.String("queue", name)),
		tasks:   make(chan Task, cfg.Buffer),
	}
}

// Start launches the workers. Calling Start on a running queue is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	q.log.Info("queue started", zap.Int("workers", q.workers))
}

// Stop refuses new tasks, waits for the buffered ones to drain and the
// workers to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
	q.log.Info("queue stopped")
}

// Enqueue hands a task to the pool without blocking.
func (q *Queue) Enqueue(task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.running {
		return ErrClosed
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrFull
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for task := range q.tasks {
		q.attempt(ctx, task)
	}
}

func (q *Queue) attempt(ctx context.Context, task Task) {
	for try := 0; ; try++ {
		err := q.handler(ctx, task)
		if err == nil {
			return
		}
		if try >= q.retries {
			q.log.Error("task dropped after retries",
				zap.String("task_id", task.ID),
				zap.String("kind", task.Kind),
				zap.Int("attempts", try+1),
				zap.Error(err))
			return
		}
		q.log.Warn("task failed, retrying",
			zap.String("task_id", task.ID),
			zap.String("kind", task.Kind),
			zap.Int("attempt", try+1),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.backoff):
		}
	}
}
