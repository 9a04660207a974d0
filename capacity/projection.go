/*
projection.go - Projected capacity impact of a proposed change

PURPOSE:
  Before a create/edit/delete is committed the operator sees which days it
  would push into near/at/over. The change is expressed as signed per-date
  deltas (+1 per added occurrence, -1 per removed one).

PROCESS:
  For every date with a non-zero delta:
    1. projected = existing[date] + delta (floored at 0 when ClampToZero)
    2. limit     = ResolveLimit(date, defaults, overrides)
    3. status    = ClassifyWithRatio(projected, limit, ratio)
    4. keep it only if status != normal

ORDERING:
  Warnings are sorted ascending by date key. Warning text is rendered in
  that order, so callers and tests rely on it.

PROJECTION vs COMMIT:
  Nothing is written here. The planner decides what to mutate; this only
  answers "what would the calendar look like?".

SEE ALSO:
  - limits.go: ResolveLimit
  - status.go: Classify
  - scheduling/planner.go: Builds the deltas
*/
package capacity

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mealroute/delivery-engine/calendar"
)

// Warning is a derived, never-persisted capacity warning.
type Warning struct {
	Day            calendar.Day
	ProjectedCount int
	Limit          int
	Status         Status
}

// Key is the warning's date key.
func (w Warning) Key() string { return w.Day.Key() }

// Message renders the advisory line shown next to "Continue anyway".
func (w Warning) Message() string {
	label := w.Status.Display().Label
	if label == "" {
		label = string(w.Status)
	}
	return fmt.Sprintf("%s (%s): %d of %d deliveries [%s]",
		w.Day.Key(), w.Day.Weekday(), w.ProjectedCount, w.Limit, label)
}

// ProjectionInput contains all inputs of a projection.
type ProjectionInput struct {
	// Deltas are signed occurrence changes keyed by calendar.Key().
	Deltas map[string]int

	// Existing is the current whole-day occupancy (all clients).
	Existing map[string]int

	Defaults  WeeklyDefaults
	Overrides Overrides

	// ClampToZero floors projected counts at 0 (simulating deletions).
	ClampToZero bool

	// NearRatio defaults to DefaultNearRatio when zero.
	NearRatio decimal.Decimal
}

// Project returns warnings for the dates whose projected status is not
// normal, sorted by date key. Keys that are not YYYY-MM-DD are skipped.
func Project(in ProjectionInput) []Warning {
	ratio := in.NearRatio
	if ratio.IsZero() {
		ratio = DefaultNearRatio
	}

	warnings := make([]Warning, 0)
	for key, delta := range in.Deltas {
		if delta == 0 {
			continue
		}
		d, ok := calendar.ParseKey(key)
		if !ok {
			continue
		}

		projected := in.Existing[key] + delta
		if in.ClampToZero && projected < 0 {
			projected = 0
		}

		limit := ResolveLimit(d, in.Defaults, in.Overrides)
		status := ClassifyWithRatio(projected, limit, ratio)
		if !status.IsWarning() {
			continue
		}

		warnings = append(warnings, Warning{
			Day:            d,
			ProjectedCount: projected,
			Limit:          limit,
			Status:         status,
		})
	}

	sort.Slice(warnings, func(i, j int) bool {
		return warnings[i].Key() < warnings[j].Key()
	})
	return warnings
}

// DeltaKeys returns the keys of deltas in ascending order.
func DeltaKeys(deltas map[string]int) []string {
	out := make([]string, 0, len(deltas))
	for k := range deltas {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
