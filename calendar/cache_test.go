package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealroute/delivery-engine/calendar"
)

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time          { return c.now }
func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestExpansionCache_ExpiresOnInjectedClock(t *testing.T) {
	clock := &manualClock{now: time.Date(2025, time.September, 1, 9, 0, 0, 0, time.UTC)}
	cache := calendar.NewExpansionCache(time.Minute, clock.Now)

	cache.Set("k", []calendar.Day{day("2025-09-01")})

	got, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, []string{"2025-09-01"}, keys(got))

	clock.Advance(59 * time.Second)
	_, ok = cache.Get("k")
	assert.True(t, ok, "entry should still be fresh")

	clock.Advance(time.Second)
	_, ok = cache.Get("k")
	assert.False(t, ok, "entry should have expired at the TTL")
	assert.Equal(t, 0, cache.Len())
}

func TestExpansionCache_ReturnsCopies(t *testing.T) {
	cache := calendar.NewExpansionCache(time.Minute, nil)
	in := []calendar.Day{day("2025-09-01")}
	cache.Set("k", in)
	in[0] = day("2000-01-01")

	got, _ := cache.Get("k")
	got[0] = day("2001-01-01")

	again, _ := cache.Get("k")
	assert.Equal(t, "2025-09-01", again[0].Key())
}

func TestExpansionCache_Purge(t *testing.T) {
	clock := &manualClock{now: time.Date(2025, time.September, 1, 9, 0, 0, 0, time.UTC)}
	cache := calendar.NewExpansionCache(time.Minute, clock.Now)

	cache.Set("old", nil)
	clock.Advance(30 * time.Second)
	cache.Set("new", nil)
	clock.Advance(45 * time.Second)

	assert.Equal(t, 1, cache.Purge())
	assert.Equal(t, 1, cache.Len())
}

func TestExpander_UsesCache(t *testing.T) {
	clock := &manualClock{now: time.Date(2025, time.September, 1, 9, 0, 0, 0, time.UTC)}
	cache := calendar.NewExpansionCache(time.Minute, clock.Now)
	e := &calendar.Expander{Cache: cache}

	rule := calendar.Rule{Kind: calendar.Weekly, Start: day("2025-09-01"), End: day("2025-09-15")}
	first, err := e.Expand(rule)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	cached, ok := cache.Get(rule.Fingerprint())
	require.True(t, ok)
	assert.Equal(t, keys(first), keys(cached))

	// Errors are not cached.
	_, err = e.Expand(calendar.Rule{Kind: calendar.Weekly, Start: day("2025-09-01")})
	assert.ErrorIs(t, err, calendar.ErrInvalidRule)
	assert.Equal(t, 1, cache.Len())
}

func TestRule_FingerprintDistinguishesCustomDates(t *testing.T) {
	a := calendar.Rule{Kind: calendar.Custom, Dates: []calendar.Day{day("2025-09-01")}}
	b := calendar.Rule{Kind: calendar.Custom, Dates: []calendar.Day{day("2025-09-02")}}
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}
