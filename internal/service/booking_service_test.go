package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duetapp/duet-api/internal/dto"
	"github.com/duetapp/duet-api/internal/models"
	"github.com/duetapp/duet-api/internal/repository"
	appErrors "github.com/duetapp/duet-api/pkg/errors"
)

type bookingRepoStub struct {
	byID        map[string]*models.AvailabilityBooking
	activeBySlot map[string]*models.AvailabilityBooking
	created     []*models.AvailabilityBooking
	createErr   error
	transitions []bookingTransition
	statusErr   error
	byBooker    []models.AvailabilityBooking
	bySlot      []models.AvailabilityBooking
}

type bookingTransition struct {
	id     string
	status models.BookingStatus
	patch  repository.BookingStatusPatch
}

func (s *bookingRepoStub) Create(ctx context.Context, exec sqlx.ExtContext, booking *models.AvailabilityBooking) error {
	if s.createErr != nil {
		return s.createErr
	}
	booking.ID = "booking-created"
	s.created = append(s.created, booking)
	return nil
}

func (s *bookingRepoStub) FindByID(ctx context.Context, id string) (*models.AvailabilityBooking, error) {
	if b, ok := s.byID[id]; ok {
		copied := *b
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *bookingRepoStub) FindActiveBySlot(ctx context.Context, exec sqlx.ExtContext, slotID string) (*models.AvailabilityBooking, error) {
	return s.activeBySlot[slotID], nil
}

func (s *bookingRepoStub) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.BookingStatus, patch repository.BookingStatusPatch) error {
	if s.statusErr != nil {
		return s.statusErr
	}
	s.transitions = append(s.transitions, bookingTransition{id: id, status: status, patch: patch})
	return nil
}

func (s *bookingRepoStub) ListByBooker(ctx context.Context, bookerID string) ([]models.AvailabilityBooking, error) {
	return s.byBooker, nil
}

func (s *bookingRepoStub) ListBySlot(ctx context.Context, slotID string) ([]models.AvailabilityBooking, error) {
	return s.bySlot, nil
}

type bookingSlotReaderStub struct {
	byID        map[string]*models.AvailabilitySlot
	statusCalls []statusCall
	reads       int
	onRead      func(reads int, stored *models.AvailabilitySlot)
}

func (s *bookingSlotReaderStub) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.AvailabilitySlot, error) {
	slot, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	s.reads++
	copied := *slot
	if s.onRead != nil {
		s.onRead(s.reads, slot)
	}
	return &copied, nil
}

func (s *bookingSlotReaderStub) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SlotStatus, reason *string) error {
	s.statusCalls = append(s.statusCalls, statusCall{id: id, status: status, reason: reason})
	return nil
}

type bookingFixture struct {
	svc      *BookingService
	repo     *bookingRepoStub
	slots    *bookingSlotReaderStub
	notifier *notifierStub
	audit    *auditStub
}

func newBookingFixture(t *testing.T, slots map[string]*models.AvailabilitySlot, bookings map[string]*models.AvailabilityBooking) (*bookingFixture, func(time.Time)) {
	tx, mock := newTxProviderMock(t)
	mock.MatchExpectationsInOrder(false)
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	repo := &bookingRepoStub{byID: bookings, activeBySlot: map[string]*models.AvailabilityBooking{}}
	slotReader := &bookingSlotReaderStub{byID: slots}
	notifier := &notifierStub{}
	audit := &auditStub{}
	svc := NewBookingService(repo, slotReader, tx, audit, notifier, nil, nil, nil)

	setNow := func(now time.Time) {
		svc.now = func() time.Time { return now }
	}
	return &bookingFixture{svc: svc, repo: repo, slots: slotReader, notifier: notifier, audit: audit}, setNow
}

func bookableSlot(policy models.CancellationPolicy) *models.AvailabilitySlot {
	return &models.AvailabilitySlot{
		ID:                 "slot-1",
		OwnerUserID:        "owner-1",
		Date:               futureDate(7),
		StartTime:          "10:00",
		EndTime:            "11:00",
		Timezone:           "UTC",
		Status:             models.SlotStatusActive,
		CancellationPolicy: policy,
		Title:              "Dinner",
	}
}

func TestBookingServiceBookSuccess(t *testing.T) {
	f, _ := newBookingFixture(t, map[string]*models.AvailabilitySlot{"slot-1": bookableSlot(models.Policy24Hours)}, nil)

	booking, err := f.svc.Book(context.Background(), "booker-1", dto.BookSlotRequest{SlotID: "slot-1"})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, booking.Status)
	assert.Equal(t, "booker-1", booking.BookerUserID)
	assert.Equal(t, []string{"booking-created"}, f.notifier.created)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionBookingCreate, f.audit.logs[0].Action)
}

func TestBookingServiceBookOwnSlot(t *testing.T) {
	f, _ := newBookingFixture(t, map[string]*models.AvailabilitySlot{"slot-1": bookableSlot(models.Policy24Hours)}, nil)

	_, err := f.svc.Book(context.Background(), "owner-1", dto.BookSlotRequest{SlotID: "slot-1"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
	assert.Empty(t, f.repo.created)
}

func TestBookingServiceBookAlreadyClaimed(t *testing.T) {
	f, _ := newBookingFixture(t, map[string]*models.AvailabilitySlot{"slot-1": bookableSlot(models.Policy24Hours)}, nil)
	f.repo.activeBySlot["slot-1"] = &models.AvailabilityBooking{ID: "b-prior", Status: models.BookingStatusPending}

	_, err := f.svc.Book(context.Background(), "booker-1", dto.BookSlotRequest{SlotID: "slot-1"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrBusinessRule))
	assert.Empty(t, f.repo.created)
}

func TestBookingServiceBookSlotCancelledMidFlight(t *testing.T) {
	f, _ := newBookingFixture(t, map[string]*models.AvailabilitySlot{"slot-1": bookableSlot(models.Policy24Hours)}, nil)

	// An owner cancellation commits between the pre-check read and the
	// transactional re-read. The re-read must see the cancelled slot.
	f.slots.onRead = func(reads int, stored *models.AvailabilitySlot) {
		if reads == 1 {
			stored.Status = models.SlotStatusCancelled
		}
	}

	_, err := f.svc.Book(context.Background(), "booker-1", dto.BookSlotRequest{SlotID: "slot-1"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrBusinessRule))
	assert.Equal(t, 2, f.slots.reads)
	assert.Empty(t, f.repo.created)
	assert.Empty(t, f.notifier.created)
}

func TestBookingServiceBookInactiveSlot(t *testing.T) {
	slot := bookableSlot(models.Policy24Hours)
	slot.Status = models.SlotStatusCancelled
	f, _ := newBookingFixture(t, map[string]*models.AvailabilitySlot{"slot-1": slot}, nil)

	_, err := f.svc.Book(context.Background(), "booker-1", dto.BookSlotRequest{SlotID: "slot-1"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrBusinessRule))
}

func TestBookingServiceBookStartedSlot(t *testing.T) {
	slot := bookableSlot(models.Policy24Hours)
	f, setNow := newBookingFixture(t, map[string]*models.AvailabilitySlot{"slot-1": slot}, nil)
	startAt, err := slot.StartAt()
	require.NoError(t, err)
	setNow(startAt.Add(time.Minute))

	_, err = f.svc.Book(context.Background(), "booker-1", dto.BookSlotRequest{SlotID: "slot-1"})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrBusinessRule))
}

func TestBookingServiceConfirm(t *testing.T) {
	bookings := map[string]*models.AvailabilityBooking{
		"b1": {ID: "b1", SlotID: "slot-1", BookerUserID: "booker-1", Status: models.BookingStatusPending},
	}
	f, _ := newBookingFixture(t, map[string]*models.AvailabilitySlot{"slot-1": bookableSlot(models.Policy24Hours)}, bookings)

	booking, err := f.svc.Confirm(context.Background(), "owner-1", "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
	require.NotNil(t, booking.ConfirmedAt)
	assert.Equal(t, []string{"b1"}, f.notifier.confirmed)
}

func TestBookingServiceConfirmNotOwner(t *testing.T) {
	bookings := map[string]*models.AvailabilityBooking{
		"b1": {ID: "b1", SlotID: "slot-1", BookerUserID: "booker-1", Status: models.BookingStatusPending},
	}
	f, _ := newBookingFixture(t, map[string]*models.AvailabilitySlot{"slot-1": bookableSlot(models.Policy24Hours)}, bookings)

	// Even the booker cannot confirm; only the slot owner can.
	_, err := f.svc.Confirm(context.Background(), "booker-1", "b1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}

func TestBookingServiceConfirmNonPending(t *testing.T) {
	bookings := map[string]*models.AvailabilityBooking{
		"b1": {ID: "b1", SlotID: "slot-1", BookerUserID: "booker-1", Status: models.BookingStatusCancelled},
	}
	f, _ := newBookingFixture(t, map[string]*models.AvailabilitySlot{"slot-1": bookableSlot(models.Policy24Hours)}, bookings)

	_, err := f.svc.Confirm(context.Background(), "owner-1", "b1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrBusinessRule))
}

func TestBookingServiceCancelWindow(t *testing.T) {
	slot := bookableSlot(models.Policy48Hours)
	bookings := map[string]*models.AvailabilityBooking{
		"b1": {ID: "b1", SlotID: "slot-1", BookerUserID: "booker-1", Status: models.BookingStatusConfirmed},
	}
	f, setNow := newBookingFixture(t, map[string]*models.AvailabilitySlot{"slot-1": slot}, bookings)
	startAt, err := slot.StartAt()
	require.NoError(t, err)

	// 47 hours before start is inside the 48 hour window.
	setNow(startAt.Add(-47 * time.Hour))
	_, err = f.svc.Cancel(context.Background(), "booker-1", "b1", "change of plans")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrBusinessRule))
	assert.Empty(t, f.repo.transitions)

	// 49 hours before start is allowed.
	setNow(startAt.Add(-49 * time.Hour))
	booking, err := f.svc.Cancel(context.Background(), "booker-1", "b1", "change of plans")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, booking.Status)
	require.NotNil(t, booking.CancellationReason)
	assert.Equal(t, "change of plans", *booking.CancellationReason)
	assert.Equal(t, []string{"b1"}, f.notifier.cancelled)
}

func TestBookingServiceCancelByOwner(t *testing.T) {
	slot := bookableSlot(models.PolicyFlexible)
	bookings := map[string]*models.AvailabilityBooking{
		"b1": {ID: "b1", SlotID: "slot-1", BookerUserID: "booker-1", Status: models.BookingStatusPending},
	}
	f, _ := newBookingFixture(t, map[string]*models.AvailabilitySlot{"slot-1": slot}, bookings)

	booking, err := f.svc.Cancel(context.Background(), "owner-1", "b1", "")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, booking.Status)
}

func TestBookingServiceCancelByStranger(t *testing.T) {
	bookings := map[string]*models.AvailabilityBooking{
		"b1": {ID: "b1", SlotID: "slot-1", BookerUserID: "booker-1", Status: models.BookingStatusPending},
	}
	f, _ := newBookingFixture(t, map[string]*models.AvailabilitySlot{"slot-1": bookableSlot(models.PolicyFlexible)}, bookings)

	_, err := f.svc.Cancel(context.Background(), "stranger", "b1", "")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}

func TestBookingServiceCancelTerminal(t *testing.T) {
	bookings := map[string]*models.AvailabilityBooking{
		"b1": {ID: "b1", SlotID: "slot-1", BookerUserID: "booker-1", Status: models.BookingStatusCompleted},
	}
	f, _ := newBookingFixture(t, map[string]*models.AvailabilitySlot{"slot-1": bookableSlot(models.PolicyFlexible)}, bookings)

	_, err := f.svc.Cancel(context.Background(), "booker-1", "b1", "")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrBusinessRule))
}

func TestBookingServiceComplete(t *testing.T) {
	slot := bookableSlot(models.Policy24Hours)
	bookings := map[string]*models.AvailabilityBooking{
		"b1": {ID: "b1", SlotID: "slot-1", BookerUserID: "booker-1", Status: models.BookingStatusConfirmed},
	}
	f, setNow := newBookingFixture(t, map[string]*models.AvailabilitySlot{"slot-1": slot}, bookings)
	endAt, err := slot.EndAt()
	require.NoError(t, err)

	// Before the slot ends completion is refused.
	setNow(endAt.Add(-time.Minute))
	_, err = f.svc.Complete(context.Background(), "owner-1", "b1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrBusinessRule))

	setNow(endAt.Add(time.Minute))
	booking, err := f.svc.Complete(context.Background(), "owner-1", "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCompleted, booking.Status)
	require.Len(t, f.slots.statusCalls, 1)
	assert.Equal(t, models.SlotStatusCompleted, f.slots.statusCalls[0].status)
}

func TestBookingServiceCompleteNonConfirmed(t *testing.T) {
	bookings := map[string]*models.AvailabilityBooking{
		"b1": {ID: "b1", SlotID: "slot-1", BookerUserID: "booker-1", Status: models.BookingStatusPending},
	}
	f, _ := newBookingFixture(t, map[string]*models.AvailabilitySlot{"slot-1": bookableSlot(models.Policy24Hours)}, bookings)

	_, err := f.svc.Complete(context.Background(), "owner-1", "b1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrBusinessRule))
}

func TestBookingServiceCancelActiveForSlot(t *testing.T) {
	slot := bookableSlot(models.PolicyFlexible)
	f, _ := newBookingFixture(t, map[string]*models.AvailabilitySlot{"slot-1": slot}, nil)

	// No active booking: nothing to do.
	cancelled, err := f.svc.CancelActiveForSlot(context.Background(), nil, slot, "owner-1", nil)
	require.NoError(t, err)
	assert.Nil(t, cancelled)

	f.repo.activeBySlot["slot-1"] = &models.AvailabilityBooking{ID: "b1", SlotID: "slot-1", BookerUserID: "booker-1", Status: models.BookingStatusConfirmed}
	cancelled, err = f.svc.CancelActiveForSlot(context.Background(), nil, slot, "owner-1", nil)
	require.NoError(t, err)
	require.NotNil(t, cancelled)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)
	// Notification is the slot manager's job after its transaction commits.
	assert.Empty(t, f.notifier.cancelled)
}
