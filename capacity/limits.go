/*
Package capacity answers "how many deliveries can this day take, and how full
is it?".

PURPOSE:
  Daily capacity is advisory. Nothing here blocks a delivery; the output is a
  status band and warning text shown to the operator before they commit.

KEY CONCEPTS:
  - WeeklyDefaults: one limit per weekday, Sunday first
  - Overrides:      per-date limits keyed by calendar.Key()
  - ResolveLimit:   override -> weekday default -> FallbackLimit
  - Classify:       count vs limit -> normal / near / at / over
  - Project:        signed per-date deltas -> sorted warnings

All functions are pure. Defaults and overrides are snapshots the caller has
already fetched.

SEE ALSO:
  - status.go: Status bands and display metadata
  - projection.go: Projected impact of a proposed change
*/
package capacity

import (
	"time"

	"github.com/mealroute/delivery-engine/calendar"
)

// FallbackLimit applies when weekday data is missing or malformed.
const FallbackLimit = 60

// =============================================================================
// WEEKLY DEFAULTS
// =============================================================================

// WeeklyDefaults holds one limit per weekday, indexed by time.Weekday
// (Sunday = 0). Short slices and negative entries are treated as missing.
type WeeklyDefaults []int

// UniformDefaults returns defaults with the same limit every day.
func UniformDefaults(limit int) WeeklyDefaults {
	return WeeklyDefaults{limit, limit, limit, limit, limit, limit, limit}
}

// For returns the default for a weekday and whether it was usable.
func (w WeeklyDefaults) For(wd time.Weekday) (int, bool) {
	i := int(wd)
	if i < 0 || i >= len(w) || w[i] < 0 {
		return 0, false
	}
	return w[i], true
}

// Valid reports whether all seven weekdays carry a usable limit.
func (w WeeklyDefaults) Valid() bool {
	if len(w) != 7 {
		return false
	}
	for _, v := range w {
		if v < 0 {
			return false
		}
	}
	return true
}

// Normalized returns a seven-entry copy with missing entries set to
// FallbackLimit.
func (w WeeklyDefaults) Normalized() WeeklyDefaults {
	out := make(WeeklyDefaults, 7)
	for i := range out {
		if v, ok := w.For(time.Weekday(i)); ok {
			out[i] = v
		} else {
			out[i] = FallbackLimit
		}
	}
	return out
}

// =============================================================================
// OVERRIDES
// =============================================================================

// Override is an operator-set limit for one date.
type Override struct {
	Day   calendar.Day
	Limit int
}

// Overrides maps calendar.Key() to limit.
type Overrides map[string]int

// OverridesFrom indexes a list of overrides by key. Later entries win.
func OverridesFrom(list []Override) Overrides {
	out := make(Overrides, len(list))
	for _, o := range list {
		out[o.Day.Key()] = o.Limit
	}
	return out
}

// =============================================================================
// RESOLVER
// =============================================================================

// ResolveLimit returns the effective limit for day: exact override first,
// then the weekday default, then FallbackLimit.
func ResolveLimit(day calendar.Day, defaults WeeklyDefaults, overrides Overrides) int {
	if limit, ok := overrides[day.Key()]; ok {
		return limit
	}
	if limit, ok := defaults.For(day.Weekday()); ok {
		return limit
	}
	return FallbackLimit
}
