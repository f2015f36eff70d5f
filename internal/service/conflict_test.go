package service

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duetapp/duet-api/internal/models"
)

func TestRangesOverlap(t *testing.T) {
	cases := []struct {
		name                           string
		exStart, exEnd, newStart, newEnd int
		want                           bool
	}{
		{"identical", 600, 660, 600, 660, true},
		{"new starts inside existing", 600, 660, 630, 720, true},
		{"new ends inside existing", 600, 660, 540, 630, true},
		{"new contains existing", 600, 660, 540, 720, true},
		{"existing contains new", 600, 720, 630, 660, true},
		{"adjacent before", 600, 660, 540, 600, false},
		{"adjacent after", 600, 660, 660, 720, false},
		{"disjoint before", 600, 660, 400, 500, false},
		{"disjoint after", 600, 660, 700, 800, false},
		{"one minute overlap", 600, 660, 659, 720, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, rangesOverlap(tc.exStart, tc.exEnd, tc.newStart, tc.newEnd))
		})
	}
}

func TestRangesOverlapSymmetry(t *testing.T) {
	pairs := [][4]int{
		{600, 660, 630, 720},
		{600, 660, 540, 630},
		{600, 660, 540, 720},
		{600, 660, 660, 720},
		{600, 660, 400, 500},
	}
	for _, p := range pairs {
		a := rangesOverlap(p[0], p[1], p[2], p[3])
		b := rangesOverlap(p[2], p[3], p[0], p[1])
		assert.Equal(t, a, b, "overlap must be symmetric for %v", p)
	}
}

func TestFilterConflicts(t *testing.T) {
	date := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	slots := []models.AvailabilitySlot{
		{ID: "s1", Date: date, StartTime: "10:00", EndTime: "11:00", Status: models.SlotStatusActive},
		{ID: "s2", Date: date, StartTime: "12:00", EndTime: "13:00", Status: models.SlotStatusCancelled},
		{ID: "s3", Date: date.AddDate(0, 0, 1), StartTime: "10:00", EndTime: "11:00", Status: models.SlotStatusActive},
		{ID: "s4", Date: date, StartTime: "14:00", EndTime: "15:00", Status: models.SlotStatusCompleted},
	}

	t.Run("overlap with active slot", func(t *testing.T) {
		conflicts, err := FilterConflicts(slots, date, "10:30", "11:30", "")
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.Equal(t, "s1", conflicts[0].ID)
	})

	t.Run("cancelled slots never block", func(t *testing.T) {
		conflicts, err := FilterConflicts(slots, date, "12:00", "13:00", "")
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})

	t.Run("completed slots still block", func(t *testing.T) {
		conflicts, err := FilterConflicts(slots, date, "14:30", "15:30", "")
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.Equal(t, "s4", conflicts[0].ID)
	})

	t.Run("other dates ignored", func(t *testing.T) {
		conflicts, err := FilterConflicts(slots, date, "09:00", "10:00", "")
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})

	t.Run("excluded slot ignored", func(t *testing.T) {
		conflicts, err := FilterConflicts(slots, date, "10:00", "11:00", "s1")
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})

	t.Run("adjacent slot is not a conflict", func(t *testing.T) {
		conflicts, err := FilterConflicts(slots, date, "11:00", "12:00", "")
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})

	t.Run("bad clock rejected", func(t *testing.T) {
		_, err := FilterConflicts(slots, date, "25:00", "26:00", "")
		require.Error(t, err)
	})
}

type conflictListerStub struct {
	slots []models.AvailabilitySlot
	err   error
}

func (s conflictListerStub) ListBlockingByOwnerDate(ctx context.Context, exec sqlx.ExtContext, ownerID string, date time.Time) ([]models.AvailabilitySlot, error) {
	return s.slots, s.err
}

func TestConflictServiceFindConflicts(t *testing.T) {
	date := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	svc := NewConflictService(conflictListerStub{slots: []models.AvailabilitySlot{
		{ID: "s1", Date: date, StartTime: "10:00", EndTime: "11:00", Status: models.SlotStatusActive},
	}}, nil)

	conflicts, err := svc.FindConflicts(context.Background(), nil, "owner-1", date, "10:30", "11:30", "")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	conflicts, err = svc.FindConflicts(context.Background(), nil, "owner-1", date, "11:00", "12:00", "")
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}
