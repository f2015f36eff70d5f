package models

import "time"

// BookingStatus tracks the booking state machine. Transitions are
// monotonic: pending -> confirmed|cancelled, confirmed -> cancelled|completed.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

// Active reports whether the booking currently claims its slot.
func (s BookingStatus) Active() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

// Terminal reports whether no further transitions are permitted.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusCompleted
}

// AvailabilityBooking is one user's claim on a slot. Bookings are
// append-only; they are never physically deleted.
type AvailabilityBooking struct {
	ID                 string        `db:"id" json:"id"`
	SlotID             string        `db:"slot_id" json:"slot_id"`
	BookerUserID       string        `db:"booker_user_id" json:"booker_user_id"`
	Status             BookingStatus `db:"status" json:"status"`
	SelectedActivity   *string       `db:"selected_activity" json:"selected_activity,omitempty"`
	Notes              *string       `db:"notes" json:"notes,omitempty"`
	CancellationReason *string       `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	ConfirmedAt        *time.Time    `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CancelledAt        *time.Time    `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}
