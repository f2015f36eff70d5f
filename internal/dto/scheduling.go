package dto

import (
	"time"

	"github.com/duetapp/duet-api/internal/models"
)

// CreateSlotRequest describes a new availability slot.
type CreateSlotRequest struct {
	Date                   time.Time  `json:"date" validate:"required"`
	StartTime              string     `json:"start_time" validate:"required"`
	EndTime                string     `json:"end_time" validate:"required"`
	Timezone               string     `json:"timezone"`
	DateType               string     `json:"date_type" validate:"required,oneof=online offline"`
	Title                  string     `json:"title" validate:"required"`
	Notes                  *string    `json:"notes"`
	Location               *string    `json:"location"`
	CancellationPolicy     string     `json:"cancellation_policy" validate:"required"`
	BufferTimeMinutes      int        `json:"buffer_time_minutes" validate:"gte=0"`
	PreparationTimeMinutes int        `json:"preparation_time_minutes" validate:"gte=0"`
	IsRecurring            bool       `json:"is_recurring"`
	RecurrenceType         string     `json:"recurrence_type"`
	RecurrenceEndDate      *time.Time `json:"recurrence_end_date"`

	// ParentSlotID is set internally by the recurring generator, never by clients.
	ParentSlotID *string `json:"-"`
}

// UpdateSlotRequest patches an existing slot. Nil fields are left untouched.
type UpdateSlotRequest struct {
	Date               *time.Time `json:"date"`
	StartTime          *string    `json:"start_time"`
	EndTime            *string    `json:"end_time"`
	Timezone           *string    `json:"timezone"`
	DateType           *string    `json:"date_type"`
	Title              *string    `json:"title"`
	Notes              *string    `json:"notes"`
	Location           *string    `json:"location"`
	CancellationPolicy *string    `json:"cancellation_policy"`
}

// TouchesSchedule reports whether the patch modifies fields that are
// locked while the slot has an active booking.
func (r UpdateSlotRequest) TouchesSchedule() bool {
	return r.Date != nil || r.StartTime != nil || r.EndTime != nil ||
		r.Timezone != nil || r.DateType != nil || r.CancellationPolicy != nil
}

// BulkCreateRequest creates several slots in one call. Each slot is its
// own atomic unit; there is no cross-slot transaction.
type BulkCreateRequest struct {
	Slots []CreateSlotRequest `json:"slots" validate:"required,min=1,dive"`
}

// BulkSkip records a slot that could not be created.
type BulkSkip struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BulkCreateResult summarises a bulk create call.
type BulkCreateResult struct {
	TotalRequested int                       `json:"total_requested"`
	Created        []models.AvailabilitySlot `json:"created"`
	Skipped        []BulkSkip                `json:"skipped"`
	Errors         int                       `json:"errors"`
}

// RecurringOptions control recurring slot expansion.
type RecurringOptions struct {
	SkipWeekends    bool        `json:"skip_weekends"`
	SkipConflicts   bool        `json:"skip_conflicts"`
	CustomSkipDates []time.Time `json:"custom_skip_dates"`
}

// GenerateRecurringRequest expands a base slot into weekly repetitions.
type GenerateRecurringRequest struct {
	BaseSlotID string           `json:"base_slot_id" validate:"required"`
	EndDate    time.Time        `json:"end_date" validate:"required"`
	Options    RecurringOptions `json:"options"`
}

// Recurring attempt outcomes.
const (
	AttemptCreated = "created"
	AttemptSkipped = "skipped"
	AttemptFailed  = "failed"
)

// RecurringAttempt reports the outcome for one candidate date.
type RecurringAttempt struct {
	Date   time.Time `json:"date"`
	Status string    `json:"status"`
	SlotID *string   `json:"slot_id,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

// RecurringGenerationResult is the full per-attempt report.
type RecurringGenerationResult struct {
	ParentSlotID string             `json:"parent_slot_id"`
	Attempts     []RecurringAttempt `json:"attempts"`
	CreatedCount int                `json:"created_count"`
}

// ConflictCheckRequest probes a time range before submission.
type ConflictCheckRequest struct {
	Date          time.Time `json:"date" validate:"required"`
	StartTime     string    `json:"start_time" validate:"required"`
	EndTime       string    `json:"end_time" validate:"required"`
	ExcludeSlotID string    `json:"exclude_slot_id"`
}

// ConflictCheckResult lists conflicting slots, if any.
type ConflictCheckResult struct {
	HasConflict bool                      `json:"has_conflict"`
	Conflicts   []models.AvailabilitySlot `json:"conflicts"`
}

// SearchAvailableRequest filters bookable slots across users.
type SearchAvailableRequest struct {
	DateFrom  *time.Time `json:"date_from"`
	DateTo    *time.Time `json:"date_to"`
	StartTime string     `json:"start_time"`
	EndTime   string     `json:"end_time"`
	DateType  string     `json:"date_type"`
	Page      int        `json:"page"`
	PageSize  int        `json:"page_size"`
}

// AvailableUser groups a candidate's open slots for search results.
type AvailableUser struct {
	UserID      string                    `json:"user_id"`
	DisplayName string                    `json:"display_name"`
	Slots       []models.AvailabilitySlot `json:"slots"`
	Score       float64                   `json:"score"`
}

// BookSlotRequest claims a slot.
type BookSlotRequest struct {
	SlotID           string  `json:"slot_id" validate:"required"`
	SelectedActivity *string `json:"selected_activity"`
	Notes            *string `json:"notes"`
}

// CancelBookingRequest carries the cancellation reason.
type CancelBookingRequest struct {
	Reason string `json:"reason"`
}
