package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealroute/delivery-engine/calendar"
	"github.com/mealroute/delivery-engine/capacity"
	"github.com/mealroute/delivery-engine/scheduling"
	"github.com/mealroute/delivery-engine/store/memory"
)

func TestCapacitySweeper_RunNow(t *testing.T) {
	// GIVEN: A full Monday, a cached expansion that has expired, and a sweeper
	// pinned to that Monday
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.SaveWeeklyDefaults(ctx, capacity.UniformDefaults(10)))
	require.NoError(t, store.SetDailyOverride(ctx, "2025-09-01", 1))
	_, err := store.CreateOccurrence(ctx, scheduling.OccurrenceFields{
		ClientID:   "c1",
		Day:        calendar.MustParseKey("2025-09-01"),
		Recurrence: calendar.None,
	})
	require.NoError(t, err)

	now := time.Date(2025, 9, 1, 6, 0, 0, 0, calendar.Eastern)
	expander := calendar.NewExpander()
	expander.Cache = calendar.NewExpansionCache(time.Minute, func() time.Time { return now })
	_, err = expander.Expand(calendar.Rule{Kind: calendar.None, Start: calendar.MustParseKey("2025-09-01")})
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)

	svc := scheduling.NewService(store, scheduling.Options{Expander: expander})
	sweeper := NewCapacitySweeper(svc, nil, "0 6 * * *", 7)
	sweeper.Today = func() calendar.Day { return calendar.MustParseKey("2025-09-01") }

	// WHEN: Sweeping
	report, err := sweeper.RunNow(ctx)

	// THEN: The expired entry is purged and only the Monday is flagged
	require.NoError(t, err)
	assert.Equal(t, "2025-09-07", report.To.Key())
	assert.Equal(t, 1, report.Purged)
	require.Len(t, report.Flagged, 1)
	assert.Equal(t, "2025-09-01", report.Flagged[0].Day.Key())
	assert.Equal(t, capacity.StatusAt, report.Flagged[0].Status)
}

func TestCapacitySweeper_StartRejectsBadSpec(t *testing.T) {
	svc := scheduling.NewService(memory.New(), scheduling.Options{})
	sweeper := NewCapacitySweeper(svc, nil, "whenever", 7)

	err := sweeper.Start(context.Background())
	assert.Error(t, err)

	// Stop on a sweeper that never started is a no-op.
	sweeper.Stop()
}

func TestCapacitySweeper_StartStop(t *testing.T) {
	svc := scheduling.NewService(memory.New(), scheduling.Options{})
	sweeper := NewCapacitySweeper(svc, nil, "@every 1h", 7)

	require.NoError(t, sweeper.Start(context.Background()))
	require.NoError(t, sweeper.Start(context.Background()), "second start is a no-op")
	sweeper.Stop()
	sweeper.Stop()
}
