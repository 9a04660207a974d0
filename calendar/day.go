/*
Package calendar provides the date primitives of the delivery scheduler.

PURPOSE:
  Every date the scheduler touches is a calendar day in the US Eastern zone.
  This package is the ONLY place that performs zone conversion. Everything
  downstream compares and keys days through Day and Key().

KEY CONCEPTS IN THIS FILE (day.go):
  - Day: an Eastern calendar day, anchored at local noon
  - Normalizer: turns any date-like input into a Day (never fails)
  - Key: the canonical YYYY-MM-DD string used as map key everywhere

NOON ANCHOR:
  A day is stored as 12:00 America/New_York. Serializing through formats that
  drop the zone (UTC strings, Unix millis) can shift the instant by up to
  five hours, which never crosses a day boundary from noon. Midnight would.

SEE ALSO:
  - recurrence.go: Expands rules into []Day
  - cache.go: Memoizes expansions
*/
package calendar

import (
	"strings"
	"time"
	_ "time/tzdata"
)

// KeyLayout is the layout of Key().
const KeyLayout = "2006-01-02"

// Eastern is the single zone the scheduler operates in.
var Eastern = mustLoadEastern()

func mustLoadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic("calendar: cannot load America/New_York: " + err.Error())
	}
	return loc
}

// =============================================================================
// DAY - Eastern calendar day
// =============================================================================

// Day is an immutable Eastern calendar day. The zero value is "no day".
type Day struct {
	t time.Time
}

// NewDay builds a Day from calendar components. Out-of-range components are
// normalized the way time.Date does (Feb 30 -> Mar 2).
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 12, 0, 0, 0, Eastern)}
}

// FromTime reinterprets an instant in the Eastern zone and returns its day.
func FromTime(t time.Time) Day {
	e := t.In(Eastern)
	return NewDay(e.Year(), e.Month(), e.Day())
}

// Time returns the native value: noon Eastern on this day.
func (d Day) Time() time.Time { return d.t }

// Key returns the canonical YYYY-MM-DD key.
func (d Day) Key() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(KeyLayout)
}

func (d Day) String() string { return d.Key() }

// Key is the function form of Day.Key.
func Key(d Day) string { return d.Key() }

func (d Day) IsZero() bool { return d.t.IsZero() }
func (d Day) Year() int { return d.t.Year() }
func (d Day) Month() time.Month { return d.t.Month() }
func (d Day) DayOfMonth() int { return d.t.Day() }
func (d Day) Weekday() time.Weekday { return d.t.Weekday() }
func (d Day) AddDays(n int) Day { return NewDay(d.Year(), d.Month(), d.DayOfMonth()+n) }
func (d Day) Equal(other Day) bool { return d.Key() == other.Key() }
func (d Day) Before(other Day) bool { return d.Key() < other.Key() }
func (d Day) After(other Day) bool { return d.Key() > other.Key() }
func (d Day) BeforeOrEqual(o Day) bool { return !d.After(o) }
func (d Day) AfterOrEqual(o Day) bool { return !d.Before(o) }

// Compare returns -1, 0 or +1. Suitable for slices.SortFunc.
func (d Day) Compare(other Day) int {
	return strings.Compare(d.Key(), other.Key())
}

// WeekOfMonth returns which occurrence of its weekday this day is in its
// month (1 for the first Monday, 2 for the second, ...).
func (d Day) WeekOfMonth() int {
	return (d.DayOfMonth()-1)/7 + 1
}

// DaysInMonth returns the number of days in the day's month.
func (d Day) DaysInMonth() int {
	return time.Date(d.Year(), d.Month()+1, 0, 12, 0, 0, 0, Eastern).Day()
}

// MarshalText encodes the day as its key.
func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.Key()), nil
}

// UnmarshalText accepts any input Normalize accepts. Empty text yields the
// zero Day.
func (d *Day) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*d = Day{}
		return nil
	}
	parsed, ok := parseString(s)
	if !ok {
		return &ParseError{Input: s}
	}
	*d = parsed
	return nil
}

// ParseKey parses a YYYY-MM-DD key. It is strict: anything else fails.
func ParseKey(key string) (Day, bool) {
	t, err := time.ParseInLocation(KeyLayout, key, Eastern)
	if err != nil {
		return Day{}, false
	}
	return NewDay(t.Year(), t.Month(), t.Day()), true
}

// MustParseKey is ParseKey for literals in tests and seed data.
func MustParseKey(key string) Day {
	d, ok := ParseKey(key)
	if !ok {
		panic("calendar: invalid day key " + key)
	}
	return d
}

// =============================================================================
// NORMALIZER
// =============================================================================

// Clock returns the current instant.
type Clock func() time.Time

// Normalizer canonicalizes date-like input. The zero value uses the system
// clock for its "today" fallback.
type Normalizer struct {
	Clock Clock
}

// Today returns the current Eastern day.
func (n Normalizer) Today() Day {
	if n.Clock == nil {
		return FromTime(time.Now())
	}
	return FromTime(n.Clock())
}

// Normalize converts v to a Day. Absent or unparseable input yields Today().
//
// Accepted: Day, *Day, time.Time, *time.Time, string (YYYY-MM-DD or an
// RFC 3339 instant), int64/int Unix milliseconds, and anything with a
// Time() time.Time method.
func (n Normalizer) Normalize(v any) Day {
	d, ok := normalize(v)
	if !ok || d.IsZero() {
		return n.Today()
	}
	return d
}

var systemNormalizer Normalizer

// Normalize uses the system clock. See Normalizer.Normalize.
func Normalize(v any) Day { return systemNormalizer.Normalize(v) }

// Today returns the current Eastern day from the system clock.
func Today() Day { return systemNormalizer.Today() }

// Parse is Normalize without the fallback: ok is false for absent or
// unparseable input.
func Parse(v any) (Day, bool) {
	d, ok := normalize(v)
	if !ok || d.IsZero() {
		return Day{}, false
	}
	return d, true
}

func normalize(v any) (Day, bool) {
	switch x := v.(type) {
	case nil:
		return Day{}, false
	case Day:
		return x, !x.IsZero()
	case *Day:
		if x == nil {
			return Day{}, false
		}
		return *x, !x.IsZero()
	case time.Time:
		if x.IsZero() {
			return Day{}, false
		}
		return FromTime(x), true
	case *time.Time:
		if x == nil || x.IsZero() {
			return Day{}, false
		}
		return FromTime(*x), true
	case string:
		return parseString(x)
	case int64:
		return FromTime(time.UnixMilli(x)), true
	case int:
		return FromTime(time.UnixMilli(int64(x))), true
	case interface{ Time() time.Time }:
		t := x.Time()
		if t.IsZero() {
			return Day{}, false
		}
		return FromTime(t), true
	default:
		return Day{}, false
	}
}

var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseString(s string) (Day, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Day{}, false
	}
	// A bare date names an Eastern calendar day, not UTC midnight.
	if d, ok := ParseKey(s); ok {
		return d, true
	}
	for _, layout := range instantLayouts {
		if t, err := time.ParseInLocation(layout, s, Eastern); err == nil {
			return FromTime(t), true
		}
	}
	return Day{}, false
}
