package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/duetapp/duet-api/internal/dto"
	"github.com/duetapp/duet-api/internal/models"
	appErrors "github.com/duetapp/duet-api/pkg/errors"
)

type recurringSlotManager interface {
	Create(ctx context.Context, ownerID string, req dto.CreateSlotRequest) (*models.AvailabilitySlot, error)
	Cancel(ctx context.Context, slotID, ownerID string, reason *string) (*models.AvailabilitySlot, error)
	Get(ctx context.Context, slotID, ownerID string) (*models.AvailabilitySlot, error)
}

type recurringSlotLister interface {
	ListActiveByParent(ctx context.Context, parentID string) ([]models.AvailabilitySlot, error)
}

// RecurringService expands a base slot into weekly repetitions and manages
// the resulting group. Every child goes through the same validation and
// conflict checking as a hand-created slot.
type RecurringService struct {
	slots      recurringSlotManager
	repo       recurringSlotLister
	validator  *validator.Validate
	logger     *zap.Logger
	maxHorizon int
}

// NewRecurringService wires the recurring slot generator. maxFutureDays
// bounds how far ahead repetitions may reach; zero applies the default.
func NewRecurringService(slots recurringSlotManager, repo recurringSlotLister, validate *validator.Validate, logger *zap.Logger, maxFutureDays int) *RecurringService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxFutureDays <= 0 {
		maxFutureDays = 90
	}
	return &RecurringService{
		slots:      slots,
		repo:       repo,
		validator:  validate,
		logger:     logger,
		maxHorizon: maxFutureDays,
	}
}

// Generate creates weekly copies of the base slot, one per week after the
// base date, up to and including the end date. Weekend dates are dropped
// silently when skip_weekends is set; custom skip dates and conflicting
// dates are reported per attempt. A conflict aborts the run unless
// skip_conflicts is set. Each child is created in its own transaction, so
// a failure never rolls back earlier children.
func (s *RecurringService) Generate(ctx context.Context, ownerID string, req dto.GenerateRecurringRequest) (*dto.RecurringGenerationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid recurring request")
	}

	base, err := s.slots.Get(ctx, req.BaseSlotID, ownerID)
	if err != nil {
		return nil, err
	}
	if base.Status != models.SlotStatusActive {
		return nil, appErrors.Clone(appErrors.ErrBusinessRule, fmt.Sprintf("cannot repeat a %s slot", base.Status))
	}
	if base.ParentSlotID != nil {
		return nil, appErrors.Clone(appErrors.ErrBusinessRule, "a generated slot cannot be a recurrence base")
	}

	endDate := truncateToDate(req.EndDate)
	if !endDate.After(base.Date) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_date must be after the base slot date")
	}
	horizon := truncateToDate(time.Now().UTC()).AddDate(0, 0, s.maxHorizon)
	if endDate.After(horizon) {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("end_date must be within %d days from today", s.maxHorizon))
	}

	skip := make(map[string]bool, len(req.Options.CustomSkipDates))
	for _, d := range req.Options.CustomSkipDates {
		skip[truncateToDate(d).Format("2006-01-02")] = true
	}

	result := &dto.RecurringGenerationResult{ParentSlotID: base.ID}
	for date := base.Date.AddDate(0, 0, 7); !date.After(endDate); date = date.AddDate(0, 0, 7) {
		if req.Options.SkipWeekends && (date.Weekday() == time.Saturday || date.Weekday() == time.Sunday) {
			continue
		}
		if skip[date.Format("2006-01-02")] {
			result.Attempts = append(result.Attempts, dto.RecurringAttempt{
				Date:   date,
				Status: dto.AttemptSkipped,
				Reason: "custom skip date",
			})
			continue
		}

		child, err := s.slots.Create(ctx, ownerID, childRequest(base, date))
		if err != nil {
			if appErrors.HasCode(err, appErrors.ErrConflict) {
				if !req.Options.SkipConflicts {
					return nil, err
				}
				result.Attempts = append(result.Attempts, dto.RecurringAttempt{
					Date:   date,
					Status: dto.AttemptSkipped,
					Reason: "conflicts with an existing slot",
				})
				continue
			}
			s.logger.Warn("recurring child creation failed",
				zap.String("parent_slot_id", base.ID),
				zap.Time("date", date),
				zap.Error(err))
			result.Attempts = append(result.Attempts, dto.RecurringAttempt{
				Date:   date,
				Status: dto.AttemptFailed,
				Reason: appErrors.FromError(err).Message,
			})
			continue
		}

		result.Attempts = append(result.Attempts, dto.RecurringAttempt{
			Date:   date,
			Status: dto.AttemptCreated,
			SlotID: &child.ID,
		})
		result.CreatedCount++
	}

	return result, nil
}

// CancelGroup cancels all active children of a recurring base slot. The
// base slot itself is left untouched. Returns the number of children
// cancelled; individual failures are logged and skipped.
func (s *RecurringService) CancelGroup(ctx context.Context, ownerID, parentID string, reason *string) (int, error) {
	base, err := s.slots.Get(ctx, parentID, ownerID)
	if err != nil {
		return 0, err
	}

	children, err := s.repo.ListActiveByParent(ctx, base.ID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list recurring slots")
	}

	cancelled := 0
	for _, child := range children {
		if _, err := s.slots.Cancel(ctx, child.ID, ownerID, reason); err != nil {
			s.logger.Warn("failed to cancel recurring child",
				zap.String("parent_slot_id", base.ID),
				zap.String("slot_id", child.ID),
				zap.Error(err))
			continue
		}
		cancelled++
	}
	return cancelled, nil
}

func childRequest(base *models.AvailabilitySlot, date time.Time) dto.CreateSlotRequest {
	return dto.CreateSlotRequest{
		Date:                   date,
		StartTime:              base.StartTime,
		EndTime:                base.EndTime,
		Timezone:               base.Timezone,
		DateType:               string(base.DateType),
		Title:                  base.Title,
		Notes:                  base.Notes,
		Location:               base.Location,
		CancellationPolicy:     string(base.CancellationPolicy),
		BufferTimeMinutes:      base.BufferTimeMinutes,
		PreparationTimeMinutes: base.PreparationTimeMinutes,
		IsRecurring:            false,
		RecurrenceType:         string(models.RecurrenceNone),
		ParentSlotID:           &base.ID,
	}
}
