package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	slotsCreated    prometheus.Counter
	bookingsCreated prometheus.Counter
	bookingsCancel  prometheus.Counter
	conflictsFound  prometheus.Counter
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
}

// NewMetricsService registers the core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	slotsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "availability_slots_created_total",
		Help: "Total availability slots created",
	})

	bookingsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bookings_created_total",
		Help: "Total bookings created",
	})

	bookingsCancel := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bookings_cancelled_total",
		Help: "Total bookings cancelled",
	})

	conflictsFound := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedule_conflicts_detected_total",
		Help: "Total slot submissions rejected for overlapping an existing slot",
	})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, slotsCreated, bookingsCreated,
		bookingsCancel, conflictsFound, cacheLatency, cacheWrite, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		slotsCreated:    slotsCreated,
		bookingsCreated: bookingsCreated,
		bookingsCancel:  bookingsCancel,
		conflictsFound:  conflictsFound,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records per-request timing and counts.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// IncSlotCreated counts a successful slot creation.
func (m *MetricsService) IncSlotCreated() {
	if m == nil {
		return
	}
	m.slotsCreated.Inc()
}

// IncBookingCreated counts a successful booking.
func (m *MetricsService) IncBookingCreated() {
	if m == nil {
		return
	}
	m.bookingsCreated.Inc()
}

// IncBookingCancelled counts a booking cancellation.
func (m *MetricsService) IncBookingCancelled() {
	if m == nil {
		return
	}
	m.bookingsCancel.Inc()
}

// IncConflictDetected counts a slot submission rejected for overlap.
func (m *MetricsService) IncConflictDetected() {
	if m == nil {
		return
	}
	m.conflictsFound.Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveCacheWrite tracks cache set latency.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}
