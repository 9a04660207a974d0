package scheduling_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mealroute/delivery-engine/calendar"
	"github.com/mealroute/delivery-engine/capacity"
	"github.com/mealroute/delivery-engine/scheduling"
	"github.com/mealroute/delivery-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var errBoom = errors.New("boom")

func day(key string) calendar.Day { return calendar.MustParseKey(key) }

func keys(days []calendar.Day) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, d.Key())
	}
	return out
}

func occurrenceKeys(list []scheduling.Occurrence) []string {
	out := make([]string, 0, len(list))
	for _, o := range list {
		out = append(out, o.Day.Key())
	}
	return out
}

// spyStore records every call that reaches storage and can fail on one.
type spyStore struct {
	scheduling.Store
	calls  []string
	failOn string
}

func (s *spyStore) record(name string) error {
	s.calls = append(s.calls, name)
	if s.failOn == name {
		return errBoom
	}
	return nil
}

func (s *spyStore) reset() { s.calls = nil }

func (s *spyStore) count(name string) int {
	n := 0
	for _, c := range s.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (s *spyStore) mutations() int {
	return s.count("DeleteOccurrence") + s.count("CreateOccurrence") + s.count("UpdateOccurrence")
}

func (s *spyStore) GetOccurrence(ctx context.Context, id string) (*scheduling.Occurrence, error) {
	if err := s.record("GetOccurrence"); err != nil {
		return nil, err
	}
	return s.Store.GetOccurrence(ctx, id)
}

func (s *spyStore) FetchClientMembershipWindow(ctx context.Context, id string) (scheduling.MembershipWindow, error) {
	if err := s.record("FetchClientMembershipWindow"); err != nil {
		return scheduling.MembershipWindow{}, err
	}
	return s.Store.FetchClientMembershipWindow(ctx, id)
}

func (s *spyStore) FetchOccurrencesBySeries(ctx context.Context, rid, cid string, from calendar.Day) ([]scheduling.Occurrence, error) {
	if err := s.record("FetchOccurrencesBySeries"); err != nil {
		return nil, err
	}
	return s.Store.FetchOccurrencesBySeries(ctx, rid, cid, from)
}

func (s *spyStore) FetchOccupancyCounts(ctx context.Context, keys []string) (map[string]int, error) {
	if err := s.record("FetchOccupancyCounts"); err != nil {
		return nil, err
	}
	return s.Store.FetchOccupancyCounts(ctx, keys)
}

func (s *spyStore) CreateOccurrence(ctx context.Context, f scheduling.OccurrenceFields) (scheduling.Occurrence, error) {
	if err := s.record("CreateOccurrence"); err != nil {
		return scheduling.Occurrence{}, err
	}
	return s.Store.CreateOccurrence(ctx, f)
}

func (s *spyStore) UpdateOccurrence(ctx context.Context, id string, f scheduling.OccurrenceFields) error {
	if err := s.record("UpdateOccurrence"); err != nil {
		return err
	}
	return s.Store.UpdateOccurrence(ctx, id, f)
}

func (s *spyStore) DeleteOccurrence(ctx context.Context, id string) error {
	if err := s.record("DeleteOccurrence"); err != nil {
		return err
	}
	return s.Store.DeleteOccurrence(ctx, id)
}

type fixture struct {
	ctx  context.Context
	mem  *memory.Memory
	spy  *spyStore
	svc  *scheduling.Service
	rids int
}

// newFixture: client c1 active from 2025-08-01, Sunday closed, weekdays 60,
// Saturday 30.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{ctx: context.Background(), mem: memory.New()}
	require.NoError(t, f.mem.SaveWeeklyDefaults(f.ctx, capacity.WeeklyDefaults{0, 60, 60, 60, 60, 60, 30}))
	require.NoError(t, f.mem.SaveClient(f.ctx, scheduling.Client{
		ID:     "c1",
		Name:   "Ada",
		Window: scheduling.MembershipWindow{Start: day("2025-08-01")},
	}))
	f.spy = &spyStore{Store: f.mem}
	f.svc = scheduling.NewService(f.spy, scheduling.Options{
		NewID: func() string {
			f.rids++
			return fmt.Sprintf("series-%d", f.rids)
		},
	})
	return f
}

// seedWeekly commits a weekly series for c1 and returns its occurrences.
func (f *fixture) seedWeekly(t *testing.T, start, end string) []scheduling.Occurrence {
	t.Helper()
	out, err := f.svc.Create(f.ctx, scheduling.CreateRequest{
		ClientID: "c1",
		Rule:     calendar.Rule{Kind: calendar.Weekly, Start: day(start), End: day(end)},
	}, nil)
	require.NoError(t, err)
	require.True(t, out.Committed)
	f.spy.reset()
	return out.Result.Created
}

func (f *fixture) setWindow(t *testing.T, start, end string) {
	t.Helper()
	w := scheduling.MembershipWindow{Start: day(start)}
	if end != "" {
		w.End = day(end)
	}
	require.NoError(t, f.mem.SaveClient(f.ctx, scheduling.Client{ID: "c1", Name: "Ada", Window: w}))
}

func (f *fixture) listAll(t *testing.T) []scheduling.Occurrence {
	t.Helper()
	list, err := f.mem.ListOccurrences(f.ctx, day("2025-01-01"), day("2026-12-31"))
	require.NoError(t, err)
	return list
}
