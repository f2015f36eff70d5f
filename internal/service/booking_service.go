package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/duetapp/duet-api/internal/dto"
	"github.com/duetapp/duet-api/internal/models"
	"github.com/duetapp/duet-api/internal/repository"
	appErrors "github.com/duetapp/duet-api/pkg/errors"
)

type bookingRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, booking *models.AvailabilityBooking) error
	FindByID(ctx context.Context, id string) (*models.AvailabilityBooking, error)
	FindActiveBySlot(ctx context.Context, exec sqlx.ExtContext, slotID string) (*models.AvailabilityBooking, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.BookingStatus, patch repository.BookingStatusPatch) error
	ListByBooker(ctx context.Context, bookerID string) ([]models.AvailabilityBooking, error)
	ListBySlot(ctx context.Context, slotID string) ([]models.AvailabilityBooking, error)
}

type bookingSlotReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.AvailabilitySlot, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SlotStatus, reason *string) error
}

// Notifier delivers booking events to the slot owner and booker. Calls are
// fire-and-forget: delivery failure never fails the state transition.
type Notifier interface {
	BookingCreated(booking *models.AvailabilityBooking, slot *models.AvailabilitySlot)
	BookingConfirmed(booking *models.AvailabilityBooking, slot *models.AvailabilitySlot)
	BookingCancelled(booking *models.AvailabilityBooking, slot *models.AvailabilitySlot)
}

// BookingService owns the booking state machine:
// pending -> confirmed|cancelled, confirmed -> cancelled|completed.
type BookingService struct {
	repo      bookingRepository
	slots     bookingSlotReader
	tx        txProvider
	audit     auditRecorder
	notifier  Notifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewBookingService wires the booking lifecycle manager.
func NewBookingService(
	repo bookingRepository,
	slots bookingSlotReader,
	tx txProvider,
	audit auditRecorder,
	notifier Notifier,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		repo:      repo,
		slots:     slots,
		tx:        tx,
		audit:     audit,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Book claims a slot for the booker. The slot re-read, the active-booking
// check and the insert run in one serializable transaction; the storage
// layer's partial unique index over active bookings backstops concurrent
// claims.
func (s *BookingService) Book(ctx context.Context, bookerID string, req dto.BookSlotRequest) (*models.AvailabilityBooking, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}

	slot, err := s.loadSlot(ctx, nil, req.SlotID)
	if err != nil {
		return nil, err
	}
	if slot.OwnerUserID == bookerID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot book own slot")
	}
	if err := s.checkBookable(slot); err != nil {
		return nil, err
	}

	booking := &models.AvailabilityBooking{
		SlotID:           slot.ID,
		BookerUserID:     bookerID,
		Status:           models.BookingStatusPending,
		SelectedActivity: req.SelectedActivity,
		Notes:            req.Notes,
	}

	tx, err := s.tx.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer func() { _ = tx.Rollback() }()

	// Re-read under the transaction: the slot may have been cancelled or
	// rescheduled between the pre-checks above and the insert.
	slot, err = s.loadSlot(ctx, tx, slot.ID)
	if err != nil {
		return nil, err
	}
	if err := s.checkBookable(slot); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindActiveBySlot(ctx, tx, slot.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slot bookings")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrBusinessRule, "slot already has an active booking")
	}
	if err := s.repo.Create(ctx, tx, booking); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create booking")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit booking")
	}

	if s.notifier != nil {
		s.notifier.BookingCreated(booking, slot)
	}
	if s.metrics != nil {
		s.metrics.IncBookingCreated()
	}
	s.recordAudit(ctx, bookerID, models.AuditActionBookingCreate, booking.ID)
	return booking, nil
}

// Confirm moves a pending booking to confirmed. Only the slot owner may
// confirm; anyone else sees not-found.
func (s *BookingService) Confirm(ctx context.Context, actorID, bookingID string) (*models.AvailabilityBooking, error) {
	booking, slot, err := s.loadPair(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if slot.OwnerUserID != actorID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
	}
	if booking.Status != models.BookingStatusPending {
		return nil, appErrors.Clone(appErrors.ErrBusinessRule,
			fmt.Sprintf("only pending bookings can be confirmed, booking is %s", booking.Status))
	}

	confirmedAt := s.now()
	if err := s.repo.UpdateStatus(ctx, nil, booking.ID, models.BookingStatusConfirmed, repository.BookingStatusPatch{ConfirmedAt: &confirmedAt}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to confirm booking")
	}
	booking.Status = models.BookingStatusConfirmed
	booking.ConfirmedAt = &confirmedAt

	if s.notifier != nil {
		s.notifier.BookingConfirmed(booking, slot)
	}
	s.recordAudit(ctx, actorID, models.AuditActionBookingConfirm, booking.ID)
	return booking, nil
}

// Cancel ends an active booking, by the booker or the slot owner, provided
// the slot's cancellation-policy deadline has not elapsed.
func (s *BookingService) Cancel(ctx context.Context, actorID, bookingID string, reason string) (*models.AvailabilityBooking, error) {
	booking, slot, err := s.loadPair(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.BookerUserID != actorID && slot.OwnerUserID != actorID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	if err := s.cancelBooking(ctx, nil, booking, slot, reasonPtr); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.BookingCancelled(booking, slot)
	}
	if s.metrics != nil {
		s.metrics.IncBookingCancelled()
	}
	s.recordAudit(ctx, actorID, models.AuditActionBookingCancel, booking.ID)
	return booking, nil
}

// Complete marks a confirmed booking as done once the slot has ended. The
// slot is completed in the same step so it keeps blocking overlaps but
// drops out of availability queries.
func (s *BookingService) Complete(ctx context.Context, actorID, bookingID string) (*models.AvailabilityBooking, error) {
	booking, slot, err := s.loadPair(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.BookerUserID != actorID && slot.OwnerUserID != actorID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
	}
	if booking.Status != models.BookingStatusConfirmed {
		return nil, appErrors.Clone(appErrors.ErrBusinessRule,
			fmt.Sprintf("only confirmed bookings can be completed, booking is %s", booking.Status))
	}
	endAt, err := slot.EndAt()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve slot time")
	}
	if s.now().Before(endAt) {
		return nil, appErrors.Clone(appErrors.ErrBusinessRule, "slot has not ended yet")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.repo.UpdateStatus(ctx, tx, booking.ID, models.BookingStatusCompleted, repository.BookingStatusPatch{}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete booking")
	}
	if err := s.slots.UpdateStatus(ctx, tx, slot.ID, models.SlotStatusCompleted, nil); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete slot")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit completion")
	}

	booking.Status = models.BookingStatusCompleted
	s.recordAudit(ctx, actorID, models.AuditActionBookingDone, booking.ID)
	return booking, nil
}

// FindActiveBySlot exposes the slot's governing booking to the slot manager.
func (s *BookingService) FindActiveBySlot(ctx context.Context, exec sqlx.ExtContext, slotID string) (*models.AvailabilityBooking, error) {
	return s.repo.FindActiveBySlot(ctx, exec, slotID)
}

// CancelActiveForSlot cancels whatever active booking governs the slot, as
// part of the slot manager's cancellation transaction. Returns the
// cancelled booking, or nil when the slot was free. The caller is
// responsible for notification after its transaction commits.
func (s *BookingService) CancelActiveForSlot(ctx context.Context, exec sqlx.ExtContext, slot *models.AvailabilitySlot, actorID string, reason *string) (*models.AvailabilityBooking, error) {
	booking, err := s.repo.FindActiveBySlot(ctx, exec, slot.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slot bookings")
	}
	if booking == nil {
		return nil, nil
	}
	if err := s.cancelBooking(ctx, exec, booking, slot, reason); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncBookingCancelled()
	}
	s.recordAudit(ctx, actorID, models.AuditActionBookingCancel, booking.ID)
	return booking, nil
}

// ListForBooker returns the caller's bookings.
func (s *BookingService) ListForBooker(ctx context.Context, bookerID string) ([]models.AvailabilityBooking, error) {
	bookings, err := s.repo.ListByBooker(ctx, bookerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	return bookings, nil
}

// ListForSlot returns a slot's booking history to its owner.
func (s *BookingService) ListForSlot(ctx context.Context, ownerID, slotID string) ([]models.AvailabilityBooking, error) {
	slot, err := s.loadSlot(ctx, nil, slotID)
	if err != nil {
		return nil, err
	}
	if slot.OwnerUserID != ownerID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
	}
	bookings, err := s.repo.ListBySlot(ctx, slotID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bookings")
	}
	return bookings, nil
}

// checkBookable verifies a slot is open for a new claim.
func (s *BookingService) checkBookable(slot *models.AvailabilitySlot) error {
	if slot.Status != models.SlotStatusActive {
		return appErrors.Clone(appErrors.ErrBusinessRule, "slot is not open for booking")
	}
	startAt, err := slot.StartAt()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve slot time")
	}
	if !startAt.After(s.now()) {
		return appErrors.Clone(appErrors.ErrBusinessRule, "slot has already started")
	}
	return nil
}

func (s *BookingService) cancelBooking(ctx context.Context, exec sqlx.ExtContext, booking *models.AvailabilityBooking, slot *models.AvailabilitySlot, reason *string) error {
	if booking.Status.Terminal() {
		return appErrors.Clone(appErrors.ErrBusinessRule,
			fmt.Sprintf("cannot cancel a %s booking", booking.Status))
	}

	startAt, err := slot.StartAt()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve slot time")
	}
	deadline := startAt.Add(-slot.CancellationPolicy.NoticePeriod())
	if s.now().After(deadline) {
		return appErrors.Clone(appErrors.ErrBusinessRule, "cancellation window elapsed")
	}

	cancelledAt := s.now()
	if err := s.repo.UpdateStatus(ctx, exec, booking.ID, models.BookingStatusCancelled, repository.BookingStatusPatch{
		CancelledAt:        &cancelledAt,
		CancellationReason: reason,
	}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel booking")
	}
	booking.Status = models.BookingStatusCancelled
	booking.CancelledAt = &cancelledAt
	booking.CancellationReason = reason
	return nil
}

func (s *BookingService) loadPair(ctx context.Context, bookingID string) (*models.AvailabilityBooking, *models.AvailabilitySlot, error) {
	booking, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "booking not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booking")
	}
	slot, err := s.loadSlot(ctx, nil, booking.SlotID)
	if err != nil {
		return nil, nil, err
	}
	return booking, slot, nil
}

func (s *BookingService) loadSlot(ctx context.Context, exec sqlx.ExtContext, slotID string) (*models.AvailabilitySlot, error) {
	slot, err := s.slots.FindByID(ctx, exec, slotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}
	return slot, nil
}

func (s *BookingService) recordAudit(ctx context.Context, userID, action, resourceID string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "availability_booking",
		ResourceID: &resourceID,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
