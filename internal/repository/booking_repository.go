package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/duetapp/duet-api/internal/models"
)

const bookingColumns = `id, slot_id, booker_user_id, status, selected_activity, notes,
	cancellation_reason, confirmed_at, cancelled_at, created_at, updated_at`

// BookingRepository manages persistence for slot bookings. Rows are
// append-only; state changes go through UpdateStatus and nothing is deleted.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository constructs a BookingRepository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) execer(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec == nil {
		return r.db
	}
	return exec
}

// Create inserts a new booking. The availability_bookings table carries a
// partial unique index on slot_id WHERE status IN ('pending','confirmed'),
// so a concurrent second claim on the same slot fails here even if the
// in-transaction existence check raced.
func (r *BookingRepository) Create(ctx context.Context, exec sqlx.ExtContext, booking *models.AvailabilityBooking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now

	const query = `INSERT INTO availability_bookings (id, slot_id, booker_user_id, status, selected_activity, notes,
			cancellation_reason, confirmed_at, cancelled_at, created_at, updated_at)
		VALUES (:id, :slot_id, :booker_user_id, :status, :selected_activity, :notes,
			:cancellation_reason, :confirmed_at, :cancelled_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.execer(exec), query, booking); err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

// FindByID fetches a booking by ID.
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*models.AvailabilityBooking, error) {
	query := fmt.Sprintf(`SELECT %s FROM availability_bookings WHERE id = $1`, bookingColumns)
	var booking models.AvailabilityBooking
	if err := r.db.GetContext(ctx, &booking, query, id); err != nil {
		return nil, err
	}
	return &booking, nil
}

// FindActiveBySlot returns the pending or confirmed booking governing the
// slot, or nil when the slot is free.
func (r *BookingRepository) FindActiveBySlot(ctx context.Context, exec sqlx.ExtContext, slotID string) (*models.AvailabilityBooking, error) {
	query := fmt.Sprintf(`SELECT %s FROM availability_bookings
		WHERE slot_id = $1 AND status IN ('pending', 'confirmed') LIMIT 1`, bookingColumns)
	var booking models.AvailabilityBooking
	if err := sqlx.GetContext(ctx, r.execer(exec), &booking, query, slotID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active booking: %w", err)
	}
	return &booking, nil
}

// BookingStatusPatch carries the timestamps and reason for a transition.
type BookingStatusPatch struct {
	ConfirmedAt        *time.Time
	CancelledAt        *time.Time
	CancellationReason *string
}

// UpdateStatus transitions a booking to the given status.
func (r *BookingRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.BookingStatus, patch BookingStatusPatch) error {
	const query = `UPDATE availability_bookings SET status = $2,
		confirmed_at = COALESCE($3, confirmed_at),
		cancelled_at = COALESCE($4, cancelled_at),
		cancellation_reason = COALESCE($5, cancellation_reason),
		updated_at = $6
		WHERE id = $1`
	if _, err := r.execer(exec).ExecContext(ctx, query, id, status, patch.ConfirmedAt, patch.CancelledAt, patch.CancellationReason, time.Now().UTC()); err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	return nil
}

// ListByBooker returns all bookings made by a user, newest first.
func (r *BookingRepository) ListByBooker(ctx context.Context, bookerID string) ([]models.AvailabilityBooking, error) {
	query := fmt.Sprintf(`SELECT %s FROM availability_bookings
		WHERE booker_user_id = $1 ORDER BY created_at DESC`, bookingColumns)
	var bookings []models.AvailabilityBooking
	if err := r.db.SelectContext(ctx, &bookings, query, bookerID); err != nil {
		return nil, fmt.Errorf("list bookings by booker: %w", err)
	}
	return bookings, nil
}

// ListBySlot returns the full booking history of a slot, oldest first.
func (r *BookingRepository) ListBySlot(ctx context.Context, slotID string) ([]models.AvailabilityBooking, error) {
	query := fmt.Sprintf(`SELECT %s FROM availability_bookings
		WHERE slot_id = $1 ORDER BY created_at`, bookingColumns)
	var bookings []models.AvailabilityBooking
	if err := r.db.SelectContext(ctx, &bookings, query, slotID); err != nil {
		return nil, fmt.Errorf("list bookings by slot: %w", err)
	}
	return bookings, nil
}

// ListActiveBySlots returns the active bookings for a set of slots.
func (r *BookingRepository) ListActiveBySlots(ctx context.Context, slotIDs []string) ([]models.AvailabilityBooking, error) {
	if len(slotIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf(`SELECT %s FROM availability_bookings
		WHERE slot_id IN (?) AND status IN ('pending', 'confirmed')`, bookingColumns), slotIDs)
	if err != nil {
		return nil, fmt.Errorf("build active bookings query: %w", err)
	}
	query = r.db.Rebind(query)
	var bookings []models.AvailabilityBooking
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("list active bookings: %w", err)
	}
	return bookings, nil
}
