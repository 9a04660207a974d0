package capacity_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealroute/delivery-engine/calendar"
	"github.com/mealroute/delivery-engine/capacity"
)

func day(key string) calendar.Day { return calendar.MustParseKey(key) }

// weekdayDefaults: Sunday closed, weekdays 60, Friday 60, Saturday 30.
func weekdayDefaults() capacity.WeeklyDefaults {
	return capacity.WeeklyDefaults{0, 60, 60, 60, 60, 60, 30}
}

// =============================================================================
// RESOLVER
// =============================================================================

func TestResolveLimit_OverrideWins(t *testing.T) {
	overrides := capacity.Overrides{"2025-08-01": 25}
	assert.Equal(t, 25, capacity.ResolveLimit(day("2025-08-01"), weekdayDefaults(), overrides))
	assert.Equal(t, 60, capacity.ResolveLimit(day("2025-08-08"), weekdayDefaults(), overrides))
}

func TestOverridesFrom_LaterEntryWins(t *testing.T) {
	overrides := capacity.OverridesFrom([]capacity.Override{
		{Day: day("2025-08-01"), Limit: 25},
		{Day: day("2025-08-02"), Limit: 0},
		{Day: day("2025-08-01"), Limit: 12},
	})
	assert.Equal(t, capacity.Overrides{"2025-08-01": 12, "2025-08-02": 0}, overrides)
	assert.Equal(t, 0, capacity.ResolveLimit(day("2025-08-02"), weekdayDefaults(), overrides), "zero override closes the day")
	assert.Empty(t, capacity.OverridesFrom(nil))
}

func TestResolveLimit_WeekdayDefault(t *testing.T) {
	assert.Equal(t, 30, capacity.ResolveLimit(day("2025-08-02"), weekdayDefaults(), nil)) // Saturday
	assert.Equal(t, 0, capacity.ResolveLimit(day("2025-08-03"), weekdayDefaults(), nil))  // Sunday
}

func TestResolveLimit_MalformedDefaultsFallBack(t *testing.T) {
	short := capacity.WeeklyDefaults{10, 10}
	assert.Equal(t, capacity.FallbackLimit, capacity.ResolveLimit(day("2025-08-01"), short, nil))
	assert.Equal(t, 10, capacity.ResolveLimit(day("2025-08-04"), short, nil)) // Monday present

	negative := capacity.WeeklyDefaults{1, 1, 1, 1, 1, -5, 1}
	assert.Equal(t, capacity.FallbackLimit, capacity.ResolveLimit(day("2025-08-01"), negative, nil))

	assert.Equal(t, capacity.FallbackLimit, capacity.ResolveLimit(day("2025-08-01"), nil, nil))
}

func TestWeeklyDefaults_Normalized(t *testing.T) {
	got := capacity.WeeklyDefaults{5, -1}.Normalized()
	require.Len(t, got, 7)
	assert.True(t, got.Valid())
	assert.Equal(t, 5, got[time.Sunday])
	assert.Equal(t, capacity.FallbackLimit, got[time.Monday])
	assert.False(t, capacity.WeeklyDefaults{5, -1}.Valid())
}

// =============================================================================
// CLASSIFIER
// =============================================================================

func TestClassify_Bands(t *testing.T) {
	cases := []struct {
		count, limit int
		want         capacity.Status
	}{
		{60, 60, capacity.StatusAt},
		{61, 60, capacity.StatusOver},
		{48, 60, capacity.StatusNear},
		{47, 60, capacity.StatusNormal},
		{0, 60, capacity.StatusNormal},
		{0, 0, capacity.StatusNormal},
		{1, 0, capacity.StatusOver},
		{3, -2, capacity.StatusOver},
		{4, 5, capacity.StatusNear},
	}
	for _, c := range cases {
		if got := capacity.Classify(c.count, c.limit); got != c.want {
			t.Errorf("Classify(%d, %d) = %s, want %s", c.count, c.limit, got, c.want)
		}
	}
}

func TestClassify_CustomRatio(t *testing.T) {
	half := decimal.RequireFromString("0.5")
	assert.Equal(t, capacity.StatusNear, capacity.ClassifyWithRatio(30, 60, half))
	assert.Equal(t, capacity.StatusNormal, capacity.ClassifyWithRatio(29, 60, half))
}

func TestStatusDisplay(t *testing.T) {
	at := capacity.StatusAt.Display()
	assert.Equal(t, "FULL", at.Label)
	assert.True(t, at.Emphasis)

	assert.Empty(t, capacity.StatusNear.Display().Label)
	assert.False(t, capacity.StatusNormal.Display().Emphasis)
	assert.True(t, capacity.StatusOver.Display().Emphasis)
	assert.Equal(t, capacity.StatusNormal.Display(), capacity.Status("bogus").Display())
}

// =============================================================================
// PROJECTION
// =============================================================================

func TestProject_SingleAddReachesLimit(t *testing.T) {
	// GIVEN: Friday 2025-08-01 has 59 of 60 deliveries
	// WHEN: One more is proposed
	// THEN: Exactly one warning, status "at"
	warnings := capacity.Project(capacity.ProjectionInput{
		Deltas:   map[string]int{"2025-08-01": 1},
		Existing: map[string]int{"2025-08-01": 59},
		Defaults: weekdayDefaults(),
	})

	require.Len(t, warnings, 1)
	w := warnings[0]
	assert.Equal(t, "2025-08-01", w.Key())
	assert.Equal(t, 60, w.ProjectedCount)
	assert.Equal(t, 60, w.Limit)
	assert.Equal(t, capacity.StatusAt, w.Status)
	assert.Contains(t, w.Message(), "FULL")
	assert.Contains(t, w.Message(), "Friday")
}

func TestProject_SortedAndFiltered(t *testing.T) {
	warnings := capacity.Project(capacity.ProjectionInput{
		Deltas: map[string]int{
			"2025-08-08": 1,  // 60/60 at
			"2025-08-01": 1,  // 50/60 near
			"2025-08-04": 1,  // 10/60 normal, dropped
			"2025-08-05": 0,  // zero delta, dropped
			"bogus":      5,  // malformed, skipped
			"2025-08-02": 2,  // 31/30 over (Saturday)
		},
		Existing: map[string]int{
			"2025-08-08": 59,
			"2025-08-01": 49,
			"2025-08-04": 9,
			"2025-08-05": 100,
			"2025-08-02": 29,
		},
		Defaults: weekdayDefaults(),
	})

	var got []string
	for _, w := range warnings {
		got = append(got, w.Key()+":"+string(w.Status))
	}
	assert.Equal(t, []string{"2025-08-01:near", "2025-08-02:over", "2025-08-08:at"}, got)
}

func TestProject_ClampToZero(t *testing.T) {
	// Sunday has no capacity. Removing more than exists would go negative;
	// clamped it stays 0 and is normal, unclamped it is negative and normal too.
	in := capacity.ProjectionInput{
		Deltas:      map[string]int{"2025-08-03": -3},
		Existing:    map[string]int{"2025-08-03": 1},
		Defaults:    weekdayDefaults(),
		ClampToZero: true,
	}
	assert.Empty(t, capacity.Project(in))

	// Removal that still leaves the day over its override.
	in = capacity.ProjectionInput{
		Deltas:      map[string]int{"2025-08-01": -1},
		Existing:    map[string]int{"2025-08-01": 12},
		Overrides:   capacity.Overrides{"2025-08-01": 10},
		ClampToZero: true,
	}
	warnings := capacity.Project(in)
	require.Len(t, warnings, 1)
	assert.Equal(t, 11, warnings[0].ProjectedCount)
	assert.Equal(t, capacity.StatusOver, warnings[0].Status)
}

func TestProject_NoDeltasNoWarnings(t *testing.T) {
	assert.Empty(t, capacity.Project(capacity.ProjectionInput{}))
}

func TestDeltaKeys_Sorted(t *testing.T) {
	got := capacity.DeltaKeys(map[string]int{"2025-09-08": 1, "2025-09-01": -1})
	assert.Equal(t, []string{"2025-09-01", "2025-09-08"}, got)
}
