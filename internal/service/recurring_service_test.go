package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duetapp/duet-api/internal/dto"
	"github.com/duetapp/duet-api/internal/models"
	appErrors "github.com/duetapp/duet-api/pkg/errors"
)

type recurringSlotManagerStub struct {
	base         *models.AvailabilitySlot
	created      []dto.CreateSlotRequest
	conflictDates map[string]bool
	failDates    map[string]bool
	cancelCalls  []string
	cancelErrIDs map[string]bool
	nextID       int
}

func (s *recurringSlotManagerStub) Get(ctx context.Context, slotID, ownerID string) (*models.AvailabilitySlot, error) {
	if s.base != nil && s.base.ID == slotID && s.base.OwnerUserID == ownerID {
		copied := *s.base
		return &copied, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
}

func (s *recurringSlotManagerStub) Create(ctx context.Context, ownerID string, req dto.CreateSlotRequest) (*models.AvailabilitySlot, error) {
	key := req.Date.Format("2006-01-02")
	if s.conflictDates[key] {
		return nil, appErrors.Clone(appErrors.ErrConflict, "time range overlaps an existing slot")
	}
	if s.failDates[key] {
		return nil, appErrors.Clone(appErrors.ErrInternal, "storage unavailable")
	}
	s.created = append(s.created, req)
	s.nextID++
	return &models.AvailabilitySlot{
		ID:           req.Date.Format("child-2006-01-02"),
		OwnerUserID:  ownerID,
		Date:         req.Date,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		ParentSlotID: req.ParentSlotID,
	}, nil
}

func (s *recurringSlotManagerStub) Cancel(ctx context.Context, slotID, ownerID string, reason *string) (*models.AvailabilitySlot, error) {
	if s.cancelErrIDs[slotID] {
		return nil, appErrors.Clone(appErrors.ErrBusinessRule, "cannot cancel")
	}
	s.cancelCalls = append(s.cancelCalls, slotID)
	return &models.AvailabilitySlot{ID: slotID, Status: models.SlotStatusCancelled}, nil
}

type recurringListerStub struct {
	children []models.AvailabilitySlot
}

func (s recurringListerStub) ListActiveByParent(ctx context.Context, parentID string) ([]models.AvailabilitySlot, error) {
	return s.children, nil
}

// nextMonday returns the first Monday at least seven days out, keeping
// generated dates inside the scheduling horizon.
func nextMonday() time.Time {
	d := truncateToDate(time.Now().UTC()).AddDate(0, 0, 7)
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func recurringBase(date time.Time) *models.AvailabilitySlot {
	return &models.AvailabilitySlot{
		ID:                 "base-1",
		OwnerUserID:        "owner-1",
		Date:               date,
		StartTime:          "10:00",
		EndTime:            "11:00",
		Timezone:           "UTC",
		Status:             models.SlotStatusActive,
		CancellationPolicy: models.Policy24Hours,
		Title:              "Weekly walk",
	}
}

func TestRecurringServiceGenerateWeekly(t *testing.T) {
	base := nextMonday()
	mgr := &recurringSlotManagerStub{base: recurringBase(base)}
	svc := NewRecurringService(mgr, recurringListerStub{}, nil, nil, 90)

	result, err := svc.Generate(context.Background(), "owner-1", dto.GenerateRecurringRequest{
		BaseSlotID: "base-1",
		EndDate:    base.AddDate(0, 0, 28),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, result.CreatedCount)
	require.Len(t, mgr.created, 4)
	for i, req := range mgr.created {
		assert.Equal(t, base.AddDate(0, 0, 7*(i+1)), req.Date)
		assert.Equal(t, "10:00", req.StartTime)
		require.NotNil(t, req.ParentSlotID)
		assert.Equal(t, "base-1", *req.ParentSlotID)
		assert.False(t, req.IsRecurring)
	}
	for _, attempt := range result.Attempts {
		assert.Equal(t, dto.AttemptCreated, attempt.Status)
	}
}

func TestRecurringServiceGenerateCustomSkipDates(t *testing.T) {
	base := nextMonday()
	skipped := base.AddDate(0, 0, 14)
	mgr := &recurringSlotManagerStub{base: recurringBase(base)}
	svc := NewRecurringService(mgr, recurringListerStub{}, nil, nil, 90)

	result, err := svc.Generate(context.Background(), "owner-1", dto.GenerateRecurringRequest{
		BaseSlotID: "base-1",
		EndDate:    base.AddDate(0, 0, 28),
		Options:    dto.RecurringOptions{CustomSkipDates: []time.Time{skipped}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.CreatedCount)

	var skipCount int
	for _, attempt := range result.Attempts {
		if attempt.Status == dto.AttemptSkipped {
			skipCount++
			assert.Equal(t, skipped, attempt.Date)
			assert.Equal(t, "custom skip date", attempt.Reason)
		}
	}
	assert.Equal(t, 1, skipCount)
}

func TestRecurringServiceGenerateSkipWeekends(t *testing.T) {
	base := truncateToDate(time.Now().UTC()).AddDate(0, 0, 7)
	for base.Weekday() != time.Saturday {
		base = base.AddDate(0, 0, 1)
	}
	mgr := &recurringSlotManagerStub{base: recurringBase(base)}
	svc := NewRecurringService(mgr, recurringListerStub{}, nil, nil, 90)

	result, err := svc.Generate(context.Background(), "owner-1", dto.GenerateRecurringRequest{
		BaseSlotID: "base-1",
		EndDate:    base.AddDate(0, 0, 21),
		Options:    dto.RecurringOptions{SkipWeekends: true},
	})
	require.NoError(t, err)
	// Weekly repeats of a Saturday slot are all weekend dates and are
	// dropped silently, without skip attempts.
	assert.Zero(t, result.CreatedCount)
	assert.Empty(t, result.Attempts)
}

func TestRecurringServiceGenerateConflictSkipped(t *testing.T) {
	base := nextMonday()
	conflictDate := base.AddDate(0, 0, 7)
	mgr := &recurringSlotManagerStub{
		base:          recurringBase(base),
		conflictDates: map[string]bool{conflictDate.Format("2006-01-02"): true},
	}
	svc := NewRecurringService(mgr, recurringListerStub{}, nil, nil, 90)

	result, err := svc.Generate(context.Background(), "owner-1", dto.GenerateRecurringRequest{
		BaseSlotID: "base-1",
		EndDate:    base.AddDate(0, 0, 21),
		Options:    dto.RecurringOptions{SkipConflicts: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.CreatedCount)
	require.Len(t, result.Attempts, 3)
	assert.Equal(t, dto.AttemptSkipped, result.Attempts[0].Status)
}

func TestRecurringServiceGenerateConflictAborts(t *testing.T) {
	base := nextMonday()
	conflictDate := base.AddDate(0, 0, 14)
	mgr := &recurringSlotManagerStub{
		base:          recurringBase(base),
		conflictDates: map[string]bool{conflictDate.Format("2006-01-02"): true},
	}
	svc := NewRecurringService(mgr, recurringListerStub{}, nil, nil, 90)

	_, err := svc.Generate(context.Background(), "owner-1", dto.GenerateRecurringRequest{
		BaseSlotID: "base-1",
		EndDate:    base.AddDate(0, 0, 21),
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict))
	// The first child was already created; per-child atomicity means it stays.
	assert.Len(t, mgr.created, 1)
}

func TestRecurringServiceGenerateInfraFailureRecorded(t *testing.T) {
	base := nextMonday()
	failDate := base.AddDate(0, 0, 14)
	mgr := &recurringSlotManagerStub{
		base:      recurringBase(base),
		failDates: map[string]bool{failDate.Format("2006-01-02"): true},
	}
	svc := NewRecurringService(mgr, recurringListerStub{}, nil, nil, 90)

	result, err := svc.Generate(context.Background(), "owner-1", dto.GenerateRecurringRequest{
		BaseSlotID: "base-1",
		EndDate:    base.AddDate(0, 0, 21),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.CreatedCount)

	var failed int
	for _, attempt := range result.Attempts {
		if attempt.Status == dto.AttemptFailed {
			failed++
			assert.Equal(t, failDate, attempt.Date)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestRecurringServiceGenerateGuards(t *testing.T) {
	base := nextMonday()

	t.Run("end date before base", func(t *testing.T) {
		mgr := &recurringSlotManagerStub{base: recurringBase(base)}
		svc := NewRecurringService(mgr, recurringListerStub{}, nil, nil, 90)
		_, err := svc.Generate(context.Background(), "owner-1", dto.GenerateRecurringRequest{
			BaseSlotID: "base-1",
			EndDate:    base.AddDate(0, 0, -7),
		})
		require.Error(t, err)
		assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
	})

	t.Run("beyond horizon", func(t *testing.T) {
		mgr := &recurringSlotManagerStub{base: recurringBase(base)}
		svc := NewRecurringService(mgr, recurringListerStub{}, nil, nil, 90)
		_, err := svc.Generate(context.Background(), "owner-1", dto.GenerateRecurringRequest{
			BaseSlotID: "base-1",
			EndDate:    truncateToDate(time.Now().UTC()).AddDate(0, 0, 120),
		})
		require.Error(t, err)
		assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation))
	})

	t.Run("generated child cannot be a base", func(t *testing.T) {
		parent := "elsewhere"
		child := recurringBase(base)
		child.ParentSlotID = &parent
		mgr := &recurringSlotManagerStub{base: child}
		svc := NewRecurringService(mgr, recurringListerStub{}, nil, nil, 90)
		_, err := svc.Generate(context.Background(), "owner-1", dto.GenerateRecurringRequest{
			BaseSlotID: "base-1",
			EndDate:    base.AddDate(0, 0, 21),
		})
		require.Error(t, err)
		assert.True(t, appErrors.HasCode(err, appErrors.ErrBusinessRule))
	})
}

func TestRecurringServiceCancelGroup(t *testing.T) {
	base := nextMonday()
	mgr := &recurringSlotManagerStub{
		base:         recurringBase(base),
		cancelErrIDs: map[string]bool{"c2": true},
	}
	lister := recurringListerStub{children: []models.AvailabilitySlot{
		{ID: "c1"}, {ID: "c2"}, {ID: "c3"},
	}}
	svc := NewRecurringService(mgr, lister, nil, nil, 90)

	cancelled, err := svc.CancelGroup(context.Background(), "owner-1", "base-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, cancelled)
	assert.Equal(t, []string{"c1", "c3"}, mgr.cancelCalls)
}
