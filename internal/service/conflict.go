package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/duetapp/duet-api/internal/models"
	appErrors "github.com/duetapp/duet-api/pkg/errors"
)

// minutesOfDay parses an "HH:MM" wall-clock value into minutes since midnight.
func minutesOfDay(clock string) (int, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// rangesOverlap applies the symmetric three-clause overlap test: the new
// range starts inside the existing one, ends inside it, or fully contains
// it. Adjacent ranges (new.start == existing.end) do not overlap.
func rangesOverlap(exStart, exEnd, newStart, newEnd int) bool {
	if exStart <= newStart && newStart < exEnd {
		return true
	}
	if exStart < newEnd && newEnd <= exEnd {
		return true
	}
	return newStart <= exStart && newEnd >= exEnd
}

// FilterConflicts returns the subset of slots whose time range on the given
// date overlaps [startTime, endTime). Cancelled and deleted slots never
// block, and excludeSlotID lets an update ignore the slot being edited.
// Pure and deterministic; an empty result is the positive answer.
func FilterConflicts(slots []models.AvailabilitySlot, date time.Time, startTime, endTime string, excludeSlotID string) ([]models.AvailabilitySlot, error) {
	newStart, err := minutesOfDay(startTime)
	if err != nil {
		return nil, err
	}
	newEnd, err := minutesOfDay(endTime)
	if err != nil {
		return nil, err
	}

	var conflicts []models.AvailabilitySlot
	for _, slot := range slots {
		if slot.ID == excludeSlotID || !slot.Blocking() {
			continue
		}
		if !sameDate(slot.Date, date) {
			continue
		}
		exStart, err := minutesOfDay(slot.StartTime)
		if err != nil {
			return nil, err
		}
		exEnd, err := minutesOfDay(slot.EndTime)
		if err != nil {
			return nil, err
		}
		if rangesOverlap(exStart, exEnd, newStart, newEnd) {
			conflicts = append(conflicts, slot)
		}
	}
	return conflicts, nil
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

type conflictSlotLister interface {
	ListBlockingByOwnerDate(ctx context.Context, exec sqlx.ExtContext, ownerID string, date time.Time) ([]models.AvailabilitySlot, error)
}

// ConflictService detects time-range overlaps within one owner's slot set.
type ConflictService struct {
	slots  conflictSlotLister
	logger *zap.Logger
}

// NewConflictService constructs the service.
func NewConflictService(slots conflictSlotLister, logger *zap.Logger) *ConflictService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictService{slots: slots, logger: logger}
}

// FindConflicts loads the owner's blocking slots for the date and applies
// the overlap filter. Passing a transaction as exec makes the read part of
// the caller's check-then-act unit of work.
func (s *ConflictService) FindConflicts(ctx context.Context, exec sqlx.ExtContext, ownerID string, date time.Time, startTime, endTime, excludeSlotID string) ([]models.AvailabilitySlot, error) {
	existing, err := s.slots.ListBlockingByOwnerDate(ctx, exec, ownerID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slots for conflict check")
	}
	conflicts, err := FilterConflicts(existing, date, startTime, endTime, excludeSlotID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time range")
	}
	return conflicts, nil
}
