/*
store.go - Storage collaborator contract

PURPOSE:
  The scheduler never talks to a database directly. It calls these
  interfaces; store/memory, store/sqlite and store/mongo implement them.

CONTRACT:
  - Every call is all-or-nothing on its own.
  - No cross-call transactions are assumed. The planner orders its calls
    (reads, then deletes, then creates) instead.
  - Errors are passed back to the caller unchanged apart from wrapping
    (see errors.go StorageError). No retries happen in the scheduler.
  - Lookups of unknown ids return ErrOccurrenceNotFound / ErrClientNotFound.

SEE ALSO:
  - store/memory/memory.go: In-memory implementation for tests and dev
  - store/sqlite/sqlite.go: SQLite implementation
  - store/mongo/mongo.go:   MongoDB implementation
*/
package scheduling

import (
	"context"

	"github.com/mealroute/delivery-engine/calendar"
	"github.com/mealroute/delivery-engine/capacity"
)

// OccurrenceStore persists delivery occurrences.
type OccurrenceStore interface {
	// GetOccurrence returns ErrOccurrenceNotFound for unknown ids.
	GetOccurrence(ctx context.Context, id string) (*Occurrence, error)

	// ListOccurrences returns occurrences in [from, to] ordered by day.
	ListOccurrences(ctx context.Context, from, to calendar.Day) ([]Occurrence, error)

	// FetchOccurrencesBySeries returns the client's occurrences with the given
	// recurrence id dated on or after from, ordered by day.
	FetchOccurrencesBySeries(ctx context.Context, recurrenceID, clientID string, from calendar.Day) ([]Occurrence, error)

	// FetchOccupancyCounts returns whole-day occurrence counts (all clients)
	// for the given keys. Keys with no deliveries may be absent.
	FetchOccupancyCounts(ctx context.Context, keys []string) (map[string]int, error)

	CreateOccurrence(ctx context.Context, fields OccurrenceFields) (Occurrence, error)
	UpdateOccurrence(ctx context.Context, id string, fields OccurrenceFields) error
	DeleteOccurrence(ctx context.Context, id string) error
}

// CapacityStore persists capacity configuration.
type CapacityStore interface {
	// FetchWeeklyDefaults may return nil when nothing is configured.
	FetchWeeklyDefaults(ctx context.Context) (capacity.WeeklyDefaults, error)
	SaveWeeklyDefaults(ctx context.Context, defaults capacity.WeeklyDefaults) error

	// FetchDailyOverride reports found=false when the date has no override.
	FetchDailyOverride(ctx context.Context, key string) (limit int, found bool, err error)
	SetDailyOverride(ctx context.Context, key string, limit int) error
}

// ClientStore exposes client membership windows.
type ClientStore interface {
	// FetchClientMembershipWindow returns ErrClientNotFound for unknown ids.
	FetchClientMembershipWindow(ctx context.Context, clientID string) (MembershipWindow, error)
	GetClient(ctx context.Context, id string) (*Client, error)
	SaveClient(ctx context.Context, c Client) error
}

// Store is everything the scheduler needs.
type Store interface {
	OccurrenceStore
	CapacityStore
	ClientStore
}
