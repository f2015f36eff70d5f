package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/duetapp/duet-api/internal/models"
)

func bookingRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "slot_id", "booker_user_id", "status", "selected_activity", "notes",
		"cancellation_reason", "confirmed_at", "cancelled_at", "created_at", "updated_at",
	})
}

func TestBookingRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBookingRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO availability_bookings")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	booking := &models.AvailabilityBooking{
		SlotID:       "slot-1",
		BookerUserID: "booker-1",
		Status:       models.BookingStatusPending,
	}
	require.NoError(t, repo.Create(context.Background(), nil, booking))
	require.NotEmpty(t, booking.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryFindActiveBySlot(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBookingRepository(db)
	now := time.Now()
	rows := bookingRows().AddRow("b1", "slot-1", "booker-1", "pending", nil, nil, nil, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM availability_bookings")).
		WithArgs("slot-1").
		WillReturnRows(rows)

	booking, err := repo.FindActiveBySlot(context.Background(), nil, "slot-1")
	require.NoError(t, err)
	require.NotNil(t, booking)
	require.Equal(t, models.BookingStatusPending, booking.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryFindActiveBySlotNone(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBookingRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM availability_bookings")).
		WithArgs("slot-free").
		WillReturnRows(bookingRows())

	booking, err := repo.FindActiveBySlot(context.Background(), nil, "slot-free")
	require.NoError(t, err)
	require.Nil(t, booking, "a free slot yields nil without an error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBookingRepository(db)
	cancelledAt := time.Now().UTC()
	reason := "change of plans"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE availability_bookings SET status = $2")).
		WithArgs("b1", models.BookingStatusCancelled, nil, cancelledAt, "change of plans", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), nil, "b1", models.BookingStatusCancelled, BookingStatusPatch{
		CancelledAt:        &cancelledAt,
		CancellationReason: &reason,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryListActiveBySlots(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBookingRepository(db)
	now := time.Now()
	rows := bookingRows().
		AddRow("b1", "slot-1", "booker-1", "pending", nil, nil, nil, nil, nil, now, now).
		AddRow("b2", "slot-2", "booker-2", "confirmed", nil, nil, nil, now, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("slot_id IN")).
		WithArgs("slot-1", "slot-2").
		WillReturnRows(rows)

	bookings, err := repo.ListActiveBySlots(context.Background(), []string{"slot-1", "slot-2"})
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryListActiveBySlotsEmpty(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewBookingRepository(db)
	bookings, err := repo.ListActiveBySlots(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, bookings)
}
