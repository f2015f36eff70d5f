package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duetapp/duet-api/internal/models"
	"github.com/duetapp/duet-api/pkg/jobs"
)

// Notification event types.
const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
)

// NotificationEvent is the payload delivered to the sender for each
// booking state change. Both sides of the date are addressed so the
// sender can fan out to owner and booker.
type NotificationEvent struct {
	Type         string     `json:"type"`
	BookingID    string     `json:"booking_id"`
	SlotID       string     `json:"slot_id"`
	OwnerUserID  string     `json:"owner_user_id"`
	BookerUserID string     `json:"booker_user_id"`
	SlotDate     time.Time  `json:"slot_date"`
	SlotStart    string     `json:"slot_start"`
	SlotTitle    string     `json:"slot_title"`
	OccurredAt   time.Time  `json:"occurred_at"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
}

// Sender delivers a notification event to its recipients.
type Sender interface {
	Send(ctx context.Context, event NotificationEvent) error
}

// logSender is the default sender; it records events in the application
// log. A push or email integration replaces it in deployment.
type logSender struct {
	logger *zap.Logger
}

func (s logSender) Send(_ context.Context, event NotificationEvent) error {
	s.logger.Info("notification",
		zap.String("type", event.Type),
		zap.String("booking_id", event.BookingID),
		zap.String("slot_id", event.SlotID),
		zap.String("owner_user_id", event.OwnerUserID),
		zap.String("booker_user_id", event.BookerUserID))
	return nil
}

// NotificationService implements Notifier on top of the background job
// queue. Enqueue failures are logged and dropped; notification delivery
// never blocks or fails a booking transition.
type NotificationService struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationService builds the notifier and its queue. A nil sender
// falls back to log-only delivery.
func NewNotificationService(sender Sender, cfg jobs.Config, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = logSender{logger: logger}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}

	handler := func(ctx context.Context, task jobs.Task) error {
		event, ok := task.Payload.(NotificationEvent)
		if !ok {
			logger.Error("unexpected notification payload", zap.String("task_id", task.ID))
			return nil
		}
		return sender.Send(ctx, event)
	}

	return &NotificationService{
		queue:  jobs.NewQueue("notifications", handler, cfg),
		logger: logger,
	}
}

// Start launches the queue workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the queue workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// BookingCreated notifies the slot owner of a new pending booking.
func (s *NotificationService) BookingCreated(booking *models.AvailabilityBooking, slot *models.AvailabilitySlot) {
	s.enqueue(EventBookingCreated, booking, slot)
}

// BookingConfirmed notifies the booker that the owner accepted.
func (s *NotificationService) BookingConfirmed(booking *models.AvailabilityBooking, slot *models.AvailabilitySlot) {
	s.enqueue(EventBookingConfirmed, booking, slot)
}

// BookingCancelled notifies both parties of a cancellation.
func (s *NotificationService) BookingCancelled(booking *models.AvailabilityBooking, slot *models.AvailabilitySlot) {
	s.enqueue(EventBookingCancelled, booking, slot)
}

func (s *NotificationService) enqueue(eventType string, booking *models.AvailabilityBooking, slot *models.AvailabilitySlot) {
	event := NotificationEvent{
		Type:         eventType,
		BookingID:    booking.ID,
		SlotID:       slot.ID,
		OwnerUserID:  slot.OwnerUserID,
		BookerUserID: booking.BookerUserID,
		SlotDate:     slot.Date,
		SlotStart:    slot.StartTime,
		SlotTitle:    slot.Title,
		OccurredAt:   time.Now().UTC(),
		CancelledAt:  booking.CancelledAt,
	}
	if err := s.queue.Enqueue(jobs.Task{
		ID:      uuid.NewString(),
		Kind:    eventType,
		Payload: event,
	}); err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("type", eventType),
			zap.String("booking_id", booking.ID),
			zap.Error(err))
	}
}
