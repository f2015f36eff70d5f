package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/duetapp/duet-api/internal/models"
)

const slotColumns = `id, owner_user_id, date, start_time, end_time, timezone, date_type, status,
	is_recurring, recurrence_type, recurrence_end_date, parent_slot_id,
	buffer_time_minutes, preparation_time_minutes, cancellation_policy,
	title, notes, location, cancel_reason, created_at, updated_at`

// SlotRepository manages persistence for availability slots.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository constructs a SlotRepository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

func (r *SlotRepository) execer(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec == nil {
		return r.db
	}
	return exec
}

// ListBlockingByOwnerDate returns the owner's slots on the given date that
// participate in conflict detection. Passing a transaction as exec composes
// the read into the caller's check-then-act unit of work.
func (r *SlotRepository) ListBlockingByOwnerDate(ctx context.Context, exec sqlx.ExtContext, ownerID string, date time.Time) ([]models.AvailabilitySlot, error) {
	query := fmt.Sprintf(`SELECT %s FROM availability_slots
		WHERE owner_user_id = $1 AND date = $2 AND status IN ('active', 'completed')
		ORDER BY start_time`, slotColumns)
	var slots []models.AvailabilitySlot
	if err := sqlx.SelectContext(ctx, r.execer(exec), &slots, query, ownerID, date); err != nil {
		return nil, fmt.Errorf("list blocking slots: %w", err)
	}
	return slots, nil
}

// FindByID fetches a slot by ID. Soft-deleted slots are not returned.
// Passing a transaction as exec lets callers re-read the slot inside
// their own unit of work.
func (r *SlotRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.AvailabilitySlot, error) {
	query := fmt.Sprintf(`SELECT %s FROM availability_slots WHERE id = $1 AND status <> 'deleted'`, slotColumns)
	var slot models.AvailabilitySlot
	if err := sqlx.GetContext(ctx, r.execer(exec), &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// Create inserts a new slot record.
func (r *SlotRepository) Create(ctx context.Context, exec sqlx.ExtContext, slot *models.AvailabilitySlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now

	const query = `INSERT INTO availability_slots (id, owner_user_id, date, start_time, end_time, timezone, date_type, status,
			is_recurring, recurrence_type, recurrence_end_date, parent_slot_id,
			buffer_time_minutes, preparation_time_minutes, cancellation_policy,
			title, notes, location, cancel_reason, created_at, updated_at)
		VALUES (:id, :owner_user_id, :date, :start_time, :end_time, :timezone, :date_type, :status,
			:is_recurring, :recurrence_type, :recurrence_end_date, :parent_slot_id,
			:buffer_time_minutes, :preparation_time_minutes, :cancellation_policy,
			:title, :notes, :location, :cancel_reason, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.execer(exec), query, slot); err != nil {
		return fmt.Errorf("create slot: %w", err)
	}
	return nil
}

// Update rewrites the mutable columns of an existing slot.
func (r *SlotRepository) Update(ctx context.Context, exec sqlx.ExtContext, slot *models.AvailabilitySlot) error {
	slot.UpdatedAt = time.Now().UTC()
	const query = `UPDATE availability_slots SET date = :date, start_time = :start_time, end_time = :end_time,
		timezone = :timezone, date_type = :date_type, cancellation_policy = :cancellation_policy,
		title = :title, notes = :notes, location = :location, updated_at = :updated_at
		WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.execer(exec), query, slot); err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	return nil
}

// UpdateStatus transitions a slot's lifecycle status, optionally recording a reason.
func (r *SlotRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SlotStatus, reason *string) error {
	const query = `UPDATE availability_slots SET status = $2, cancel_reason = COALESCE($3, cancel_reason), updated_at = $4 WHERE id = $1`
	if _, err := r.execer(exec).ExecContext(ctx, query, id, status, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("update slot status: %w", err)
	}
	return nil
}

// ListActiveByParent returns the still-active members of a recurrence group.
func (r *SlotRepository) ListActiveByParent(ctx context.Context, parentID string) ([]models.AvailabilitySlot, error) {
	query := fmt.Sprintf(`SELECT %s FROM availability_slots
		WHERE parent_slot_id = $1 AND status = 'active' ORDER BY date`, slotColumns)
	var slots []models.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, parentID); err != nil {
		return nil, fmt.Errorf("list recurrence group: %w", err)
	}
	return slots, nil
}

// ListByOwnerFrom returns the owner's non-deleted slots on or after the given date.
func (r *SlotRepository) ListByOwnerFrom(ctx context.Context, ownerID string, from time.Time) ([]models.AvailabilitySlot, error) {
	query := fmt.Sprintf(`SELECT %s FROM availability_slots
		WHERE owner_user_id = $1 AND date >= $2 AND status <> 'deleted'
		ORDER BY date, start_time`, slotColumns)
	var slots []models.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, ownerID, from); err != nil {
		return nil, fmt.Errorf("list owner slots: %w", err)
	}
	return slots, nil
}

// SearchAvailable returns active slots with no active booking, matching the
// filter, along with the total count. The NOT EXISTS clause leans on the
// partial unique index over active bookings as the storage-level backstop
// against double-booking races.
func (r *SlotRepository) SearchAvailable(ctx context.Context, filter models.SlotSearchFilter) ([]models.AvailabilitySlot, int, error) {
	base := `FROM availability_slots s
		WHERE s.status = 'active'
		AND NOT EXISTS (
			SELECT 1 FROM availability_bookings b
			WHERE b.slot_id = s.id AND b.status IN ('pending', 'confirmed')
		)`
	var conditions []string
	var args []interface{}

	if filter.ExcludeOwnerID != "" {
		conditions = append(conditions, fmt.Sprintf("s.owner_user_id <> $%d", len(args)+1))
		args = append(args, filter.ExcludeOwnerID)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("s.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("s.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	if filter.StartTime != "" {
		conditions = append(conditions, fmt.Sprintf("s.start_time >= $%d", len(args)+1))
		args = append(args, filter.StartTime)
	}
	if filter.EndTime != "" {
		conditions = append(conditions, fmt.Sprintf("s.end_time <= $%d", len(args)+1))
		args = append(args, filter.EndTime)
	}
	if filter.DateType != nil {
		conditions = append(conditions, fmt.Sprintf("s.date_type = $%d", len(args)+1))
		args = append(args, *filter.DateType)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY s.date, s.start_time LIMIT %d OFFSET %d",
		prefixColumns("s"), base, size, offset)
	var slots []models.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, 0, fmt.Errorf("search available slots: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count available slots: %w", err)
	}

	return slots, total, nil
}

func prefixColumns(alias string) string {
	parts := strings.Split(slotColumns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
