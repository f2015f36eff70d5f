package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/duetapp/duet-api/internal/models"
	appErrors "github.com/duetapp/duet-api/pkg/errors"
	"github.com/duetapp/duet-api/pkg/export"
)

type exportSlotRepository interface {
	ListByOwnerFrom(ctx context.Context, ownerID string, from time.Time) ([]models.AvailabilitySlot, error)
}

type exportBookingRepository interface {
	ListActiveBySlots(ctx context.Context, slotIDs []string) ([]models.AvailabilityBooking, error)
}

// ExportService renders an owner's upcoming schedule as CSV or PDF.
type ExportService struct {
	slots    exportSlotRepository
	bookings exportBookingRepository
	logger   *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(slots exportSlotRepository, bookings exportBookingRepository, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{slots: slots, bookings: bookings, logger: logger}
}

var scheduleColumns = []string{"Date", "Start", "End", "Timezone", "Type", "Title", "Status", "Booked", "Location"}

// ScheduleCSV renders the owner's schedule from the given date as CSV.
func (s *ExportService) ScheduleCSV(ctx context.Context, ownerID string, from time.Time) ([]byte, error) {
	table, err := s.scheduleTable(ctx, ownerID, from)
	if err != nil {
		return nil, err
	}
	payload, err := export.CSV(table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return payload, nil
}

// SchedulePDF renders the owner's schedule from the given date as PDF.
func (s *ExportService) SchedulePDF(ctx context.Context, ownerID string, from time.Time) ([]byte, error) {
	table, err := s.scheduleTable(ctx, ownerID, from)
	if err != nil {
		return nil, err
	}
	payload, err := export.PDF(table)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}
	return payload, nil
}

func (s *ExportService) scheduleTable(ctx context.Context, ownerID string, from time.Time) (export.Table, error) {
	slots, err := s.slots.ListByOwnerFrom(ctx, ownerID, truncateToDate(from))
	if err != nil {
		return export.Table{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slots")
	}

	booked := make(map[string]bool)
	if len(slots) > 0 {
		ids := make([]string, len(slots))
		for i, slot := range slots {
			ids[i] = slot.ID
		}
		active, err := s.bookings.ListActiveBySlots(ctx, ids)
		if err != nil {
			return export.Table{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bookings")
		}
		for _, b := range active {
			booked[b.SlotID] = true
		}
	}

	rows := make([][]string, 0, len(slots))
	for _, slot := range slots {
		location := ""
		if slot.Location != nil {
			location = *slot.Location
		}
		rows = append(rows, []string{
			slot.Date.Format("2006-01-02"),
			slot.StartTime,
			slot.EndTime,
			slot.Timezone,
			string(slot.DateType),
			slot.Title,
			string(slot.Status),
			boolLabel(booked[slot.ID]),
			location,
		})
	}

	return export.Table{
		Title:   fmt.Sprintf("Availability schedule from %s", from.Format("2006-01-02")),
		Columns: scheduleColumns,
		Rows:    rows,
	}, nil
}

func boolLabel(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
