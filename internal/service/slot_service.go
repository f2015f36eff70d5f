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
	appErrors "github.com/duetapp/duet-api/pkg/errors"
)

type slotRepository interface {
	ListBlockingByOwnerDate(ctx context.Context, exec sqlx.ExtContext, ownerID string, date time.Time) ([]models.AvailabilitySlot, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.AvailabilitySlot, error)
	Create(ctx context.Context, exec sqlx.ExtContext, slot *models.AvailabilitySlot) error
	Update(ctx context.Context, exec sqlx.ExtContext, slot *models.AvailabilitySlot) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SlotStatus, reason *string) error
	ListByOwnerFrom(ctx context.Context, ownerID string, from time.Time) ([]models.AvailabilitySlot, error)
}

type slotConflictFinder interface {
	FindConflicts(ctx context.Context, exec sqlx.ExtContext, ownerID string, date time.Time, startTime, endTime, excludeSlotID string) ([]models.AvailabilitySlot, error)
}

// bookingResolver is the slice of the booking lifecycle the slot manager
// needs: discovering the active claim on a slot and cancelling it as part
// of a slot cancellation.
type bookingResolver interface {
	FindActiveBySlot(ctx context.Context, exec sqlx.ExtContext, slotID string) (*models.AvailabilityBooking, error)
	CancelActiveForSlot(ctx context.Context, exec sqlx.ExtContext, slot *models.AvailabilitySlot, actorID string, reason *string) (*models.AvailabilityBooking, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// SlotPolicyConfig bounds slot creation and edits.
type SlotPolicyConfig struct {
	MinDuration     time.Duration
	MaxDuration     time.Duration
	MaxFutureDays   int
	DefaultTimezone string
}

// SlotService owns the availability slot lifecycle.
type SlotService struct {
	repo      slotRepository
	conflicts slotConflictFinder
	bookings  bookingResolver
	tx        txProvider
	audit     auditRecorder
	notifier  Notifier
	validator *validator.Validate
	logger    *zap.Logger
	config    SlotPolicyConfig
}

// NewSlotService wires the slot manager.
func NewSlotService(
	repo slotRepository,
	conflicts slotConflictFinder,
	bookings bookingResolver,
	tx txProvider,
	audit auditRecorder,
	notifier Notifier,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg SlotPolicyConfig,
) *SlotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = 30 * time.Minute
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 8 * time.Hour
	}
	if cfg.MaxFutureDays <= 0 {
		cfg.MaxFutureDays = 90
	}
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = "UTC"
	}
	return &SlotService{
		repo:      repo,
		conflicts: conflicts,
		bookings:  bookings,
		tx:        tx,
		audit:     audit,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
		config:    cfg,
	}
}

// Create validates the request, runs the conflict check and persists the
// slot. The conflict read and the insert share one serializable transaction
// so no overlapping slot can sneak in between check and write.
func (s *SlotService) Create(ctx context.Context, ownerID string, req dto.CreateSlotRequest) (*models.AvailabilitySlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = s.config.DefaultTimezone
	}
	date := truncateToDate(req.Date)
	if err := s.validateShape(date, req.StartTime, req.EndTime, timezone, req.CancellationPolicy); err != nil {
		return nil, err
	}

	recurrence := models.RecurrenceNone
	if req.RecurrenceType != "" {
		recurrence = models.RecurrenceType(req.RecurrenceType)
		switch recurrence {
		case models.RecurrenceNone, models.RecurrenceWeekly, models.RecurrenceCustom:
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown recurrence type")
		}
	}

	slot := &models.AvailabilitySlot{
		OwnerUserID:            ownerID,
		Date:                   date,
		StartTime:              req.StartTime,
		EndTime:                req.EndTime,
		Timezone:               timezone,
		DateType:               models.DateType(req.DateType),
		Status:                 models.SlotStatusActive,
		IsRecurring:            req.IsRecurring,
		RecurrenceType:         recurrence,
		RecurrenceEndDate:      req.RecurrenceEndDate,
		ParentSlotID:           req.ParentSlotID,
		BufferTimeMinutes:      req.BufferTimeMinutes,
		PreparationTimeMinutes: req.PreparationTimeMinutes,
		CancellationPolicy:     models.CancellationPolicy(req.CancellationPolicy),
		Title:                  req.Title,
		Notes:                  req.Notes,
		Location:               req.Location,
	}

	tx, err := s.tx.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.ensureNoConflict(ctx, tx, ownerID, date, req.StartTime, req.EndTime, ""); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, tx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create slot")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit slot")
	}

	s.recordAudit(ctx, ownerID, models.AuditActionSlotCreate, slot.ID)
	return slot, nil
}

// Update patches a slot. While an active booking governs the slot only
// title, notes and location may change; schedule fields stay locked.
func (s *SlotService) Update(ctx context.Context, slotID, ownerID string, req dto.UpdateSlotRequest) (*models.AvailabilitySlot, error) {
	slot, err := s.ownedSlot(ctx, slotID, ownerID)
	if err != nil {
		return nil, err
	}
	if slot.Status != models.SlotStatusActive {
		return nil, appErrors.Clone(appErrors.ErrBusinessRule, fmt.Sprintf("cannot update a %s slot", slot.Status))
	}

	if req.TouchesSchedule() {
		active, err := s.bookings.FindActiveBySlot(ctx, nil, slot.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check bookings")
		}
		if active != nil {
			return nil, appErrors.Clone(appErrors.ErrBusinessRule, "slot is booked; only title, notes and location may change")
		}
	}

	if req.DateType != nil {
		switch models.DateType(*req.DateType) {
		case models.DateTypeOnline, models.DateTypeOffline:
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, "date_type must be online or offline")
		}
	}

	applyPatch(slot, req)

	if !req.TouchesSchedule() {
		// Title, notes and location carry no schedule constraints, so the
		// merged slot is not re-validated. An active slot whose date has
		// passed must stay patchable.
		if err := s.repo.Update(ctx, nil, slot); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update slot")
		}
		s.recordAudit(ctx, ownerID, models.AuditActionSlotUpdate, slot.ID)
		return slot, nil
	}

	if err := s.validateShape(slot.Date, slot.StartTime, slot.EndTime, slot.Timezone, string(slot.CancellationPolicy)); err != nil {
		return nil, err
	}

	tx, err := s.tx.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.ensureNoConflict(ctx, tx, ownerID, slot.Date, slot.StartTime, slot.EndTime, slot.ID); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, tx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update slot")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit slot update")
	}

	s.recordAudit(ctx, ownerID, models.AuditActionSlotUpdate, slot.ID)
	return slot, nil
}

// Cancel terminates a slot. Any active booking is cancelled first, inside
// the same transaction, so a confirmed booking can never outlive its slot.
func (s *SlotService) Cancel(ctx context.Context, slotID, ownerID string, reason *string) (*models.AvailabilitySlot, error) {
	slot, err := s.ownedSlot(ctx, slotID, ownerID)
	if err != nil {
		return nil, err
	}
	if slot.Status != models.SlotStatusActive {
		return nil, appErrors.Clone(appErrors.ErrBusinessRule, fmt.Sprintf("cannot cancel a %s slot", slot.Status))
	}

	// Serializable so the cancellation cannot interleave with a concurrent
	// booking attempt re-reading the slot in its own transaction.
	tx, err := s.tx.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer func() { _ = tx.Rollback() }()

	cancelled, err := s.bookings.CancelActiveForSlot(ctx, tx, slot, ownerID, reason)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, tx, slot.ID, models.SlotStatusCancelled, reason); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel slot")
	}
	if err := tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit slot cancellation")
	}

	slot.Status = models.SlotStatusCancelled
	slot.CancelReason = reason
	if cancelled != nil && s.notifier != nil {
		s.notifier.BookingCancelled(cancelled, slot)
	}
	s.recordAudit(ctx, ownerID, models.AuditActionSlotCancel, slot.ID)
	return slot, nil
}

// SoftDelete hides a slot from all future queries. Refused while an active
// booking exists; booking history on the slot is kept forever.
func (s *SlotService) SoftDelete(ctx context.Context, slotID, ownerID string, reason *string) error {
	slot, err := s.ownedSlot(ctx, slotID, ownerID)
	if err != nil {
		return err
	}

	active, err := s.bookings.FindActiveBySlot(ctx, nil, slot.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check bookings")
	}
	if active != nil {
		return appErrors.Clone(appErrors.ErrBusinessRule, "cannot delete a slot with an active booking")
	}

	if err := s.repo.UpdateStatus(ctx, nil, slot.ID, models.SlotStatusDeleted, reason); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete slot")
	}
	s.recordAudit(ctx, ownerID, models.AuditActionSlotDelete, slot.ID)
	return nil
}

// Get returns one of the owner's slots.
func (s *SlotService) Get(ctx context.Context, slotID, ownerID string) (*models.AvailabilitySlot, error) {
	return s.ownedSlot(ctx, slotID, ownerID)
}

// ListMine returns the owner's upcoming slots.
func (s *SlotService) ListMine(ctx context.Context, ownerID string, from time.Time) ([]models.AvailabilitySlot, error) {
	slots, err := s.repo.ListByOwnerFrom(ctx, ownerID, truncateToDate(from))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slots")
	}
	return slots, nil
}

// ownedSlot loads a slot and checks ownership. A mismatch is reported as
// not-found so non-owners cannot probe for slot existence.
func (s *SlotService) ownedSlot(ctx context.Context, slotID, ownerID string) (*models.AvailabilitySlot, error) {
	slot, err := s.repo.FindByID(ctx, nil, slotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}
	if slot.OwnerUserID != ownerID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
	}
	return slot, nil
}

func (s *SlotService) ensureNoConflict(ctx context.Context, exec sqlx.ExtContext, ownerID string, date time.Time, startTime, endTime, excludeID string) error {
	conflicts, err := s.conflicts.FindConflicts(ctx, exec, ownerID, date, startTime, endTime, excludeID)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		first := conflicts[0]
		return appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("time range overlaps an existing slot (%s-%s)", first.StartTime, first.EndTime))
	}
	return nil
}

func (s *SlotService) validateShape(date time.Time, startTime, endTime, timezone, policy string) error {
	start, err := minutesOfDay(startTime)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "start_time must be HH:MM")
	}
	end, err := minutesOfDay(endTime)
	if err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "end_time must be HH:MM")
	}
	if start >= end {
		return appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}

	duration := time.Duration(end-start) * time.Minute
	if duration < s.config.MinDuration || duration > s.config.MaxDuration {
		return appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("slot duration must be between %s and %s", s.config.MinDuration, s.config.MaxDuration))
	}

	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return appErrors.Clone(appErrors.ErrValidation, "unknown timezone")
		}
	}

	if !models.CancellationPolicy(policy).Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown cancellation policy")
	}

	today := truncateToDate(time.Now().UTC())
	if date.Before(today) {
		return appErrors.Clone(appErrors.ErrValidation, "date must not be in the past")
	}
	if date.After(today.AddDate(0, 0, s.config.MaxFutureDays)) {
		return appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("date must be within %d days from today", s.config.MaxFutureDays))
	}
	return nil
}

func (s *SlotService) recordAudit(ctx context.Context, userID, action, resourceID string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "availability_slot",
		ResourceID: &resourceID,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func applyPatch(slot *models.AvailabilitySlot, req dto.UpdateSlotRequest) {
	if req.Date != nil {
		slot.Date = truncateToDate(*req.Date)
	}
	if req.StartTime != nil {
		slot.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		slot.EndTime = *req.EndTime
	}
	if req.Timezone != nil {
		slot.Timezone = *req.Timezone
	}
	if req.DateType != nil {
		slot.DateType = models.DateType(*req.DateType)
	}
	if req.Title != nil {
		slot.Title = *req.Title
	}
	if req.Notes != nil {
		slot.Notes = req.Notes
	}
	if req.Location != nil {
		slot.Location = req.Location
	}
	if req.CancellationPolicy != nil {
		slot.CancellationPolicy = models.CancellationPolicy(*req.CancellationPolicy)
	}
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
