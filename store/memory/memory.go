// Package memory provides an in-memory scheduling.Store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mealroute/delivery-engine/calendar"
	"github.com/mealroute/delivery-engine/capacity"
	"github.com/mealroute/delivery-engine/scheduling"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	occurrences map[string]scheduling.Occurrence
	byDay       map[string]map[string]struct{} // day key -> occurrence ids
	clients     map[string]scheduling.Client
	defaults    capacity.WeeklyDefaults
	overrides   map[string]int

	// NewID and Now can be replaced by tests.
	NewID func() string
	Now   func() time.Time
}

var _ scheduling.Store = (*Memory)(nil)

func New() *Memory {
	return &Memory{
		occurrences: make(map[string]scheduling.Occurrence),
		byDay:       make(map[string]map[string]struct{}),
		clients:     make(map[string]scheduling.Client),
		overrides:   make(map[string]int),
		NewID:       uuid.NewString,
		Now:         time.Now,
	}
}

// =============================================================================
// OCCURRENCES
// =============================================================================

func (m *Memory) GetOccurrence(_ context.Context, id string) (*scheduling.Occurrence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	occ, ok := m.occurrences[id]
	if !ok {
		return nil, scheduling.ErrOccurrenceNotFound
	}
	return &occ, nil
}

func (m *Memory) ListOccurrences(_ context.Context, from, to calendar.Day) ([]scheduling.Occurrence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []scheduling.Occurrence
	for _, occ := range m.occurrences {
		if occ.Day.AfterOrEqual(from) && occ.Day.BeforeOrEqual(to) {
			out = append(out, occ)
		}
	}
	sortOccurrences(out)
	return out, nil
}

func (m *Memory) FetchOccurrencesBySeries(_ context.Context, recurrenceID, clientID string, from calendar.Day) ([]scheduling.Occurrence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []scheduling.Occurrence
	for _, occ := range m.occurrences {
		if occ.RecurrenceID == recurrenceID && occ.ClientID == clientID && occ.Day.AfterOrEqual(from) {
			out = append(out, occ)
		}
	}
	sortOccurrences(out)
	return out, nil
}

func (m *Memory) FetchOccupancyCounts(_ context.Context, keys []string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int, len(keys))
	for _, k := range keys {
		if n := len(m.byDay[k]); n > 0 {
			counts[k] = n
		}
	}
	return counts, nil
}

func (m *Memory) CreateOccurrence(_ context.Context, fields scheduling.OccurrenceFields) (scheduling.Occurrence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	occ := fields.Build(m.NewID(), m.Now())
	m.putLocked(occ)
	return occ, nil
}

func (m *Memory) UpdateOccurrence(_ context.Context, id string, fields scheduling.OccurrenceFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.occurrences[id]
	if !ok {
		return scheduling.ErrOccurrenceNotFound
	}
	m.removeLocked(old)
	m.putLocked(fields.Build(id, old.CreatedAt))
	return nil
}

func (m *Memory) DeleteOccurrence(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	occ, ok := m.occurrences[id]
	if !ok {
		return scheduling.ErrOccurrenceNotFound
	}
	m.removeLocked(occ)
	return nil
}

func (m *Memory) putLocked(occ scheduling.Occurrence) {
	m.occurrences[occ.ID] = occ
	k := occ.Day.Key()
	if m.byDay[k] == nil {
		m.byDay[k] = make(map[string]struct{})
	}
	m.byDay[k][occ.ID] = struct{}{}
}

func (m *Memory) removeLocked(occ scheduling.Occurrence) {
	delete(m.occurrences, occ.ID)
	k := occ.Day.Key()
	delete(m.byDay[k], occ.ID)
	if len(m.byDay[k]) == 0 {
		delete(m.byDay, k)
	}
}

func sortOccurrences(list []scheduling.Occurrence) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].Day.Equal(list[j].Day) {
			return list[i].Day.Before(list[j].Day)
		}
		return list[i].ID < list[j].ID
	})
}

// =============================================================================
// CAPACITY
// =============================================================================

func (m *Memory) FetchWeeklyDefaults(_ context.Context) (capacity.WeeklyDefaults, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.defaults == nil {
		return nil, nil
	}
	return append(capacity.WeeklyDefaults(nil), m.defaults...), nil
}

func (m *Memory) SaveWeeklyDefaults(_ context.Context, defaults capacity.WeeklyDefaults) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults = append(capacity.WeeklyDefaults(nil), defaults...)
	return nil
}

func (m *Memory) FetchDailyOverride(_ context.Context, key string) (int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limit, ok := m.overrides[key]
	return limit, ok, nil
}

func (m *Memory) SetDailyOverride(_ context.Context, key string, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[key] = limit
	return nil
}

// =============================================================================
// CLIENTS
// =============================================================================

func (m *Memory) FetchClientMembershipWindow(_ context.Context, clientID string) (scheduling.MembershipWindow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[clientID]
	if !ok {
		return scheduling.MembershipWindow{}, scheduling.ErrClientNotFound
	}
	return c.Window, nil
}

func (m *Memory) GetClient(_ context.Context, id string) (*scheduling.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, scheduling.ErrClientNotFound
	}
	return &c, nil
}

func (m *Memory) SaveClient(_ context.Context, c scheduling.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ID] = c
	return nil
}

// Reset clears all data (for testing/demo).
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.occurrences = make(map[string]scheduling.Occurrence)
	m.byDay = make(map[string]map[string]struct{})
	m.clients = make(map[string]scheduling.Client)
	m.defaults = nil
	m.overrides = make(map[string]int)
	return nil
}
