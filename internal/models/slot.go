package models

import (
	"fmt"
	"time"
)

// SlotStatus tracks the lifecycle of an availability slot.
type SlotStatus string

const (
	SlotStatusActive    SlotStatus = "active"
	SlotStatusCancelled SlotStatus = "cancelled"
	SlotStatusCompleted SlotStatus = "completed"
	SlotStatusDeleted   SlotStatus = "deleted"
)

// DateType distinguishes online and in-person dates.
type DateType string

const (
	DateTypeOnline  DateType = "online"
	DateTypeOffline DateType = "offline"
)

// RecurrenceType describes how a slot repeats.
type RecurrenceType string

const (
	RecurrenceNone   RecurrenceType = "none"
	RecurrenceWeekly RecurrenceType = "weekly"
	RecurrenceCustom RecurrenceType = "custom"
)

// CancellationPolicy is the minimum lead time before slot start within
// which a booking may no longer be cancelled.
type CancellationPolicy string

const (
	PolicyFlexible CancellationPolicy = "flexible"
	Policy24Hours  CancellationPolicy = "24_hours"
	Policy48Hours  CancellationPolicy = "48_hours"
	PolicyStrict   CancellationPolicy = "strict"
)

// NoticePeriod returns the required cancellation lead time for the policy.
func (p CancellationPolicy) NoticePeriod() time.Duration {
	switch p {
	case PolicyFlexible:
		return time.Hour
	case Policy24Hours:
		return 24 * time.Hour
	case Policy48Hours:
		return 48 * time.Hour
	case PolicyStrict:
		return 72 * time.Hour
	default:
		return time.Hour
	}
}

// Valid reports whether the policy is one of the known values.
func (p CancellationPolicy) Valid() bool {
	switch p {
	case PolicyFlexible, Policy24Hours, Policy48Hours, PolicyStrict:
		return true
	}
	return false
}

// AvailabilitySlot is a span of time a user offers for a date.
// Start and end times are same-day wall-clock values ("15:04") interpreted
// in the slot's timezone.
type AvailabilitySlot struct {
	ID                     string             `db:"id" json:"id"`
	OwnerUserID            string             `db:"owner_user_id" json:"owner_user_id"`
	Date                   time.Time          `db:"date" json:"date"`
	StartTime              string             `db:"start_time" json:"start_time"`
	EndTime                string             `db:"end_time" json:"end_time"`
	Timezone               string             `db:"timezone" json:"timezone"`
	DateType               DateType           `db:"date_type" json:"date_type"`
	Status                 SlotStatus         `db:"status" json:"status"`
	IsRecurring            bool               `db:"is_recurring" json:"is_recurring"`
	RecurrenceType         RecurrenceType     `db:"recurrence_type" json:"recurrence_type"`
	RecurrenceEndDate      *time.Time         `db:"recurrence_end_date" json:"recurrence_end_date,omitempty"`
	ParentSlotID           *string            `db:"parent_slot_id" json:"parent_slot_id,omitempty"`
	BufferTimeMinutes      int                `db:"buffer_time_minutes" json:"buffer_time_minutes"`
	PreparationTimeMinutes int                `db:"preparation_time_minutes" json:"preparation_time_minutes"`
	CancellationPolicy     CancellationPolicy `db:"cancellation_policy" json:"cancellation_policy"`
	Title                  string             `db:"title" json:"title"`
	Notes                  *string            `db:"notes" json:"notes,omitempty"`
	Location               *string            `db:"location" json:"location,omitempty"`
	CancelReason           *string            `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt              time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time          `db:"updated_at" json:"updated_at"`
}

// Blocking reports whether the slot participates in conflict detection.
// Cancelled and deleted slots never block new slots.
func (s *AvailabilitySlot) Blocking() bool {
	return s.Status == SlotStatusActive || s.Status == SlotStatusCompleted
}

// StartAt resolves the slot's start as an absolute instant in its timezone.
func (s *AvailabilitySlot) StartAt() (time.Time, error) {
	return s.at(s.StartTime)
}

// EndAt resolves the slot's end as an absolute instant in its timezone.
func (s *AvailabilitySlot) EndAt() (time.Time, error) {
	return s.at(s.EndTime)
}

func (s *AvailabilitySlot) at(clock string) (time.Time, error) {
	loc := time.UTC
	if s.Timezone != "" {
		parsed, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("load timezone %q: %w", s.Timezone, err)
		}
		loc = parsed
	}
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	return time.Date(s.Date.Year(), s.Date.Month(), s.Date.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}

// SlotSearchFilter narrows down available slots for partner search.
type SlotSearchFilter struct {
	ExcludeOwnerID string
	DateFrom       *time.Time
	DateTo         *time.Time
	StartTime      string
	EndTime        string
	DateType       *DateType
	Page           int
	PageSize       int
}
