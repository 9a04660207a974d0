/*
Package scheduling plans and commits changes to a client's delivery calendar.

PURPOSE:
  A delivery series is stored as one record per occurrence sharing a
  recurrence id. Creating, moving or deleting deliveries is done in two
  phases: build a Plan (expanded days, capacity deltas, warnings, mutations)
  without touching storage, then commit it once the operator has seen any
  warnings (see gate.go).

KEY CONCEPTS IN THIS FILE (types.go):
  - Occurrence:       one scheduled delivery on one day
  - OccurrenceFields: the writable part of an occurrence
  - MembershipWindow: the days a client may receive deliveries
  - Scope:            "this event" vs "this and following events"

SEE ALSO:
  - store.go: Storage collaborator contract
  - planner.go: Series Edit Planner
  - gate.go: Two-phase confirmation
  - service.go: Wires the flow end to end
*/
package scheduling

import (
	"fmt"
	"time"

	"github.com/mealroute/delivery-engine/calendar"
)

// =============================================================================
// OCCURRENCE
// =============================================================================

// Occurrence is one concrete delivery. RecurrenceID is empty for one-offs
// and is never changed once written.
type Occurrence struct {
	ID       string
	ClientID string
	Day      calendar.Day

	RecurrenceID    string
	SeriesStartDate calendar.Day  // set on the first occurrence of a series
	Recurrence      calendar.Kind // kind of the series it belongs to
	SeriesEnd       calendar.Day  // end date of that series, zero if none

	Notes     string
	CreatedAt time.Time
}

// Fields returns the writable part of o.
func (o Occurrence) Fields() OccurrenceFields {
	return OccurrenceFields{
		ClientID:        o.ClientID,
		Day:             o.Day,
		RecurrenceID:    o.RecurrenceID,
		SeriesStartDate: o.SeriesStartDate,
		Recurrence:      o.Recurrence,
		SeriesEnd:       o.SeriesEnd,
		Notes:           o.Notes,
	}
}

// IsSeriesStart reports whether o is the first occurrence of its series.
func (o Occurrence) IsSeriesStart() bool {
	return !o.SeriesStartDate.IsZero() && o.SeriesStartDate.Equal(o.Day)
}

// OccurrenceFields is what CreateOccurrence and UpdateOccurrence write.
type OccurrenceFields struct {
	ClientID        string
	Day             calendar.Day
	RecurrenceID    string
	SeriesStartDate calendar.Day
	Recurrence      calendar.Kind
	SeriesEnd       calendar.Day
	Notes           string
}

// Build turns fields into an Occurrence with the given id and creation time.
// Stores use it so every backend fills the same fields.
func (f OccurrenceFields) Build(id string, createdAt time.Time) Occurrence {
	return Occurrence{
		ID:              id,
		ClientID:        f.ClientID,
		Day:             f.Day,
		RecurrenceID:    f.RecurrenceID,
		SeriesStartDate: f.SeriesStartDate,
		Recurrence:      f.Recurrence,
		SeriesEnd:       f.SeriesEnd,
		Notes:           f.Notes,
		CreatedAt:       createdAt,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// MembershipWindow bounds the days a client may receive deliveries. End is
// inclusive and optional.
type MembershipWindow struct {
	Start calendar.Day
	End   calendar.Day
}

// Contains reports whether d is inside the window.
func (w MembershipWindow) Contains(d calendar.Day) bool {
	if !w.Start.IsZero() && d.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && d.After(w.End) {
		return false
	}
	return true
}

// Client is the part of a client record the scheduler needs.
type Client struct {
	ID     string
	Name   string
	Window MembershipWindow
}

// =============================================================================
// SCOPE / OPERATION
// =============================================================================

// Scope selects how far an edit or delete propagates through a series.
type Scope string

const (
	ScopeThisEvent        Scope = "this"
	ScopeThisAndFollowing Scope = "following"
)

// ParseScope accepts "this" and "following"; empty means this event.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeThisEvent:
		return ScopeThisEvent, nil
	case ScopeThisAndFollowing:
		return ScopeThisAndFollowing, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, s)
	}
}

// Operation names the kind of change a plan makes.
type Operation string

const (
	OpCreate Operation = "create"
	OpEdit   Operation = "edit"
	OpDelete Operation = "delete"
)
