/*
service.go - Scheduling service

PURPOSE:
  The entry point the HTTP layer (and any other caller) uses. It chains
  planner -> gate -> commit and answers capacity questions for the
  calendar view.

FLOW:
  Create/Edit/Delete(req, ack)
    1. plan  := Planner.PlanX(req)          (reads only)
    2. gate  := NewGate(plan.Key)
       ack != nil -> gate.Resume(ack)        (stale ack = not yet warned)
    3. gate.ShouldPause(plan.HasWarnings())  -> Outcome{Paused: true}
    4. Commit(plan)                          -> Outcome{Committed: true}

SEE ALSO:
  - planner.go, gate.go, executor.go
  - api/handlers.go: HTTP mapping of Outcome
*/
package scheduling

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mealroute/delivery-engine/calendar"
	"github.com/mealroute/delivery-engine/capacity"
)

// MaxRangeDays bounds calendar range queries.
const MaxRangeDays = 366

// Options configures a Service. Zero values pick defaults.
type Options struct {
	Expander  *calendar.Expander
	NearRatio decimal.Decimal
	NewID     func() string
	Logger    *zap.Logger
}

// Service wires planning, confirmation and commit.
type Service struct {
	store     Store
	planner   *Planner
	nearRatio decimal.Decimal
	logger    *zap.Logger
}

// NewService creates a service over store.
func NewService(store Store, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	planner := NewPlanner(store, logger.Named("planner"))
	if opts.Expander != nil {
		planner.Expander = opts.Expander
	}
	if !opts.NearRatio.IsZero() {
		planner.NearRatio = opts.NearRatio
	}
	if opts.NewID != nil {
		planner.NewID = opts.NewID
	}
	return &Service{
		store:     store,
		planner:   planner,
		nearRatio: planner.NearRatio,
		logger:    logger,
	}
}

// Planner exposes the planner for previews.
func (s *Service) Planner() *Planner { return s.planner }

// Store exposes the underlying store.
func (s *Service) Store() Store { return s.store }

// PurgeExpansionCache drops expired expansion cache entries, if a cache is
// configured.
func (s *Service) PurgeExpansionCache() int {
	if s.planner.Expander == nil || s.planner.Expander.Cache == nil {
		return 0
	}
	return s.planner.Expander.Cache.Purge()
}

// =============================================================================
// SUBMIT
// =============================================================================

// Outcome is the result of a submission.
type Outcome struct {
	Plan      *Plan
	Paused    bool
	Committed bool
	Result    CommitResult

	// StaleAck is set when an acknowledgment was supplied for a different
	// proposal and therefore ignored.
	StaleAck bool
}

// Submit runs a plan through the confirmation gate and commits it when the
// gate allows. ack is the key the caller confirmed, if any.
func (s *Service) Submit(ctx context.Context, plan *Plan, ack *EditKey) (*Outcome, error) {
	out := &Outcome{Plan: plan}
	gate := NewGate(plan.Key)
	if ack != nil {
		if err := gate.Resume(*ack); err != nil {
			out.StaleAck = errors.Is(err, ErrStaleWarningState)
			s.logger.Info("ignoring stale confirmation",
				zap.String("acknowledged", ack.String()),
				zap.String("current", plan.Key.String()),
			)
		}
	}

	if gate.Check(plan.Key, plan.HasWarnings()) {
		out.Paused = true
		s.logger.Info("paused for capacity warnings",
			zap.String("operation", string(plan.Operation)),
			zap.String("key", plan.Key.String()),
			zap.Strings("warnings", plan.WarningMessages()),
		)
		return out, nil
	}

	res, err := Commit(ctx, s.store, plan)
	out.Result = res
	if err != nil {
		s.logger.Error("commit failed",
			zap.String("operation", string(plan.Operation)),
			zap.String("key", plan.Key.String()),
			zap.Int("deleted", res.Deleted),
			zap.Int("created", len(res.Created)),
			zap.Int("updated", res.Updated),
			zap.Error(err),
		)
		return out, err
	}

	out.Committed = true
	s.logger.Info("committed",
		zap.String("operation", string(plan.Operation)),
		zap.String("scope", string(plan.Scope)),
		zap.String("client_id", plan.ClientID),
		zap.Int("deleted", res.Deleted),
		zap.Int("created", len(res.Created)),
		zap.Int("updated", res.Updated),
		zap.Bool("had_warnings", plan.HasWarnings()),
	)
	return out, nil
}

// Create plans and submits a new schedule.
func (s *Service) Create(ctx context.Context, req CreateRequest, ack *EditKey) (*Outcome, error) {
	plan, err := s.planner.PlanCreate(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, plan, ack)
}

// Edit plans and submits an edit.
func (s *Service) Edit(ctx context.Context, req EditRequest, ack *EditKey) (*Outcome, error) {
	plan, err := s.planner.PlanEdit(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, plan, ack)
}

// Delete plans and submits a delete.
func (s *Service) Delete(ctx context.Context, req DeleteRequest, ack *EditKey) (*Outcome, error) {
	plan, err := s.planner.PlanDelete(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, plan, ack)
}

// =============================================================================
// CAPACITY QUERIES
// =============================================================================

// DayCapacity is the calendar view of one day.
type DayCapacity struct {
	Day        calendar.Day
	Count      int
	Limit      int
	Overridden bool
	Status     capacity.Status
}

// DayCapacity returns the capacity state of one day.
func (s *Service) DayCapacity(ctx context.Context, day calendar.Day) (DayCapacity, error) {
	out, err := s.Range(ctx, day, day)
	if err != nil {
		return DayCapacity{}, err
	}
	return out[0], nil
}

// Range returns the capacity state of every day in [from, to].
func (s *Service) Range(ctx context.Context, from, to calendar.Day) ([]DayCapacity, error) {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, ErrInvalidRange
	}
	days := []calendar.Day{}
	for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
		if len(days) == MaxRangeDays {
			return nil, ErrInvalidRange
		}
		days = append(days, d)
	}

	keys := make([]string, len(days))
	for i, d := range days {
		keys[i] = d.Key()
	}
	counts, err := s.store.FetchOccupancyCounts(ctx, keys)
	if err != nil {
		return nil, storageErr("fetch occupancy", err)
	}
	defaults, err := s.store.FetchWeeklyDefaults(ctx)
	if err != nil {
		return nil, storageErr("fetch weekly defaults", err)
	}

	var pinned []capacity.Override
	for _, d := range days {
		limit, found, err := s.store.FetchDailyOverride(ctx, d.Key())
		if err != nil {
			return nil, storageErr("fetch daily override", err)
		}
		if found {
			pinned = append(pinned, capacity.Override{Day: d, Limit: limit})
		}
	}
	overrides := capacity.OverridesFrom(pinned)

	out := make([]DayCapacity, 0, len(days))
	for _, d := range days {
		_, found := overrides[d.Key()]
		resolved := capacity.ResolveLimit(d, defaults, overrides)
		count := counts[d.Key()]
		out = append(out, DayCapacity{
			Day:        d,
			Count:      count,
			Limit:      resolved,
			Overridden: found,
			Status:     capacity.ClassifyWithRatio(count, resolved, s.nearRatio),
		})
	}
	return out, nil
}

// =============================================================================
// CAPACITY CONFIGURATION
// =============================================================================

// SetDailyOverride pins the limit of one date.
func (s *Service) SetDailyOverride(ctx context.Context, day calendar.Day, limit int) error {
	if day.IsZero() || limit < 0 {
		return ErrInvalidLimit
	}
	if err := s.store.SetDailyOverride(ctx, day.Key(), limit); err != nil {
		return storageErr("set daily override", err)
	}
	s.logger.Info("daily override set", zap.String("date", day.Key()), zap.Int("limit", limit))
	return nil
}

// WeeklyDefaults returns the configured defaults with gaps filled.
func (s *Service) WeeklyDefaults(ctx context.Context) (capacity.WeeklyDefaults, error) {
	w, err := s.store.FetchWeeklyDefaults(ctx)
	if err != nil {
		return nil, storageErr("fetch weekly defaults", err)
	}
	return w.Normalized(), nil
}

// SetWeeklyDefaults replaces the weekday defaults. All seven must be given.
func (s *Service) SetWeeklyDefaults(ctx context.Context, w capacity.WeeklyDefaults) error {
	if !w.Valid() {
		return ErrInvalidLimit
	}
	if err := s.store.SaveWeeklyDefaults(ctx, w); err != nil {
		return storageErr("save weekly defaults", err)
	}
	s.logger.Info("weekly defaults saved", zap.Ints("limits", w))
	return nil
}

// =============================================================================
// READS
// =============================================================================

// Occurrence returns one occurrence.
func (s *Service) Occurrence(ctx context.Context, id string) (*Occurrence, error) {
	occ, err := s.store.GetOccurrence(ctx, id)
	if err != nil {
		return nil, storageErr("get occurrence", err)
	}
	return occ, nil
}

// Occurrences lists occurrences in [from, to].
func (s *Service) Occurrences(ctx context.Context, from, to calendar.Day) ([]Occurrence, error) {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, ErrInvalidRange
	}
	list, err := s.store.ListOccurrences(ctx, from, to)
	if err != nil {
		return nil, storageErr("list occurrences", err)
	}
	return list, nil
}

// SaveClient creates or replaces a client record.
func (s *Service) SaveClient(ctx context.Context, c Client) error {
	if err := s.store.SaveClient(ctx, c); err != nil {
		return storageErr("save client", err)
	}
	return nil
}

// Client returns one client.
func (s *Service) Client(ctx context.Context, id string) (*Client, error) {
	c, err := s.store.GetClient(ctx, id)
	if err != nil {
		return nil, storageErr("get client", err)
	}
	return c, nil
}
