/*
planner.go - Series Edit Planner

PURPOSE:
  Turns an operator request (create a schedule, move/edit a delivery, delete
  a delivery) into a Plan: the resulting days, per-date capacity deltas,
  projected warnings and the exact storage mutations. Building a plan only
  reads from storage.

THIS AND FOLLOWING (the interesting case):
  1. Anchor = requested date (defaults to the occurrence's own date).
     Reject if it precedes the client's start date.
  2. Re-expand with the anchor, the (possibly new) kind and end date.
  3. Make sure the anchor is the first day of the new set.
  4. Clamp to the membership window and the series end date.
  5. Empty after clamping -> reject. Nothing has been fetched or written.
  6. Fetch the series' occurrences dated on or after the edited one.
  7. Deltas = new day counts - old day counts, then project.
  8. Mutations: delete every fetched occurrence, create one per new day,
     all sharing the original recurrence id.

  Example: weekly series 09-01..09-29, anchor moved 09-01 -> 09-08.
    old  {09-01, 09-08, 09-15, 09-22, 09-29}
    new  {09-08, 09-15, 09-22, 09-29}
    delta {09-01: -1}
    5 deletes, 4 creates

SEE ALSO:
  - calendar/recurrence.go: Expansion
  - capacity/projection.go: Warnings
  - executor.go: Applies a plan's mutations
*/
package scheduling

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mealroute/delivery-engine/calendar"
	"github.com/mealroute/delivery-engine/capacity"
)

// =============================================================================
// PLAN
// =============================================================================

// Update replaces the fields of an existing occurrence.
type Update struct {
	ID     string
	Fields OccurrenceFields
}

// Plan is a proposed change. It is computed without side effects and
// committed later by Commit.
type Plan struct {
	Operation Operation
	Scope     Scope
	Key       EditKey
	ClientID  string

	Days    []calendar.Day // resulting occurrence days, ascending
	Dropped []calendar.Day // days removed by clamping

	Deltas      map[string]int
	Existing    map[string]int
	Warnings    []capacity.Warning
	ClampToZero bool

	Deletes []string
	Creates []OccurrenceFields
	Updates []Update
}

// HasWarnings reports whether the projection produced any warning.
func (p *Plan) HasWarnings() bool { return len(p.Warnings) > 0 }

// WarningMessages renders the warnings in date order.
func (p *Plan) WarningMessages() []string {
	out := make([]string, 0, len(p.Warnings))
	for _, w := range p.Warnings {
		out = append(out, w.Message())
	}
	return out
}

// MutationCount is the number of storage writes Commit will issue.
func (p *Plan) MutationCount() int {
	return len(p.Deletes) + len(p.Creates) + len(p.Updates)
}

// =============================================================================
// REQUESTS
// =============================================================================

// CreateRequest schedules new deliveries for a client.
type CreateRequest struct {
	ClientID string
	Rule     calendar.Rule
	Notes    string
}

// EditRequest moves or changes an existing delivery.
type EditRequest struct {
	OccurrenceID string
	Scope        Scope

	// Date is the new anchor. Zero keeps the occurrence's date.
	Date calendar.Day

	// Kind, End, Limit and Dates only apply to ScopeThisAndFollowing.
	// Zero values keep what the series already has.
	Kind  calendar.Kind
	End   calendar.Day
	Limit int
	Dates []calendar.Day

	// Notes replaces the notes when non-nil.
	Notes *string
}

// DeleteRequest removes one delivery or the rest of its series.
type DeleteRequest struct {
	OccurrenceID string
	Scope        Scope
}

// =============================================================================
// PLANNER
// =============================================================================

// Planner builds plans against a Store.
type Planner struct {
	Store     Store
	Expander  *calendar.Expander
	NearRatio decimal.Decimal

	// NewID generates recurrence ids for new series. Defaults to uuid.
	NewID  func() string
	Logger *zap.Logger
}

// NewPlanner returns a planner with a default expander and uuid ids.
func NewPlanner(store Store, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		Store:     store,
		Expander:  calendar.NewExpander(),
		NearRatio: capacity.DefaultNearRatio,
		NewID:     uuid.NewString,
		Logger:    logger,
	}
}

func (p *Planner) expander() *calendar.Expander {
	if p.Expander == nil {
		p.Expander = calendar.NewExpander()
	}
	return p.Expander
}

func (p *Planner) newID() string {
	if p.NewID == nil {
		return uuid.NewString()
	}
	return p.NewID()
}

func (p *Planner) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// =============================================================================
// CREATE
// =============================================================================

// PlanCreate expands req.Rule, clamps it to the client's membership window
// and plans one create per remaining day.
func (p *Planner) PlanCreate(ctx context.Context, req CreateRequest) (*Plan, error) {
	window, err := p.Store.FetchClientMembershipWindow(ctx, req.ClientID)
	if err != nil {
		return nil, storageErr("fetch membership window", err)
	}

	days, err := p.expander().Expand(req.Rule)
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, ErrNothingToSchedule
	}

	kept, dropped := clamp(days, window, calendar.Day{})
	if len(kept) == 0 {
		return nil, &ClampError{
			ClientID:    req.ClientID,
			Anchor:      days[0],
			ClientStart: window.Start,
			EndFilter:   window.End,
		}
	}

	kind := req.Rule.Kind
	if kind == "" {
		kind = calendar.None
	}
	recurrenceID := ""
	if kind.IsRecurring() {
		recurrenceID = p.newID()
	}
	seriesEnd := seriesEndFor(kind, req.Rule.End, kept)

	plan := &Plan{
		Operation: OpCreate,
		Scope:     ScopeThisEvent,
		ClientID:  req.ClientID,
		Key: EditKey{
			Target:     "client:" + req.ClientID,
			Scope:      ScopeThisEvent,
			Date:       req.Rule.Start.Key(),
			Recurrence: recurrenceKey(kind, req.Rule.Dates),
			EndDate:    req.Rule.End.Key(),
			Limit:      req.Rule.Limit,
		},
		Days:    kept,
		Dropped: dropped,
		Deltas:  make(map[string]int, len(kept)),
	}
	for i, d := range kept {
		fields := OccurrenceFields{
			ClientID:     req.ClientID,
			Day:          d,
			RecurrenceID: recurrenceID,
			Recurrence:   kind,
			SeriesEnd:    seriesEnd,
			Notes:        req.Notes,
		}
		if recurrenceID != "" && i == 0 {
			fields.SeriesStartDate = d
		}
		plan.Creates = append(plan.Creates, fields)
		plan.Deltas[d.Key()]++
	}

	if err := p.project(ctx, plan); err != nil {
		return nil, err
	}
	p.logger().Debug("planned create",
		zap.String("client_id", req.ClientID),
		zap.String("kind", string(kind)),
		zap.Int("days", len(kept)),
		zap.Int("dropped", len(dropped)),
		zap.Int("warnings", len(plan.Warnings)),
	)
	return plan, nil
}

// =============================================================================
// EDIT
// =============================================================================

// PlanEdit plans a move or change of one occurrence, or of it and every
// later occurrence of its series.
func (p *Planner) PlanEdit(ctx context.Context, req EditRequest) (*Plan, error) {
	scope, err := ParseScope(string(req.Scope))
	if err != nil {
		return nil, err
	}

	occ, err := p.Store.GetOccurrence(ctx, req.OccurrenceID)
	if err != nil {
		return nil, storageErr("get occurrence", err)
	}

	anchor := req.Date
	if anchor.IsZero() {
		anchor = occ.Day
	}

	window, err := p.Store.FetchClientMembershipWindow(ctx, occ.ClientID)
	if err != nil {
		return nil, storageErr("fetch membership window", err)
	}
	if !window.Start.IsZero() && anchor.Before(window.Start) {
		return nil, &ClampError{ClientID: occ.ClientID, Anchor: anchor, ClientStart: window.Start}
	}

	var plan *Plan
	if scope == ScopeThisEvent {
		plan, err = p.planEditThis(ctx, occ, anchor, window, req)
	} else {
		plan, err = p.planEditFollowing(ctx, occ, anchor, window, req)
	}
	if err != nil {
		return nil, err
	}

	p.logger().Debug("planned edit",
		zap.String("occurrence_id", occ.ID),
		zap.String("scope", string(scope)),
		zap.String("from", occ.Day.Key()),
		zap.String("to", anchor.Key()),
		zap.Int("mutations", plan.MutationCount()),
		zap.Int("warnings", len(plan.Warnings)),
	)
	return plan, nil
}

func (p *Planner) planEditThis(ctx context.Context, occ *Occurrence, anchor calendar.Day, window MembershipWindow, req EditRequest) (*Plan, error) {
	if !window.Contains(anchor) {
		return nil, &ClampError{ClientID: occ.ClientID, Anchor: anchor, ClientStart: window.Start, EndFilter: window.End}
	}

	fields := occ.Fields()
	fields.Day = anchor
	if occ.IsSeriesStart() {
		fields.SeriesStartDate = anchor
	}
	if req.Notes != nil {
		fields.Notes = *req.Notes
	}

	plan := &Plan{
		Operation: OpEdit,
		Scope:     ScopeThisEvent,
		ClientID:  occ.ClientID,
		Key: EditKey{
			Target:     occ.ID,
			Scope:      ScopeThisEvent,
			Date:       anchor.Key(),
			Recurrence: string(occ.Recurrence),
			EndDate:    occ.SeriesEnd.Key(),
		},
		Days:    []calendar.Day{anchor},
		Deltas:  map[string]int{},
		Updates: []Update{{ID: occ.ID, Fields: fields}},
	}
	if !anchor.Equal(occ.Day) {
		plan.Deltas[occ.Day.Key()]--
		plan.Deltas[anchor.Key()]++
	}

	if err := p.project(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (p *Planner) planEditFollowing(ctx context.Context, occ *Occurrence, anchor calendar.Day, window MembershipWindow, req EditRequest) (*Plan, error) {
	kind := req.Kind
	if kind == "" {
		kind = occ.Recurrence
	}
	if kind == "" {
		kind = calendar.None
	}
	end := req.End
	if end.IsZero() {
		end = occ.SeriesEnd
	}

	var (
		old     []Occurrence
		fetched bool
		err     error
	)
	rule := calendar.Rule{Kind: kind, Start: anchor, End: end, Limit: req.Limit}
	if kind == calendar.Custom {
		rule.End = calendar.Day{}
		dates := req.Dates
		if dates == nil && occ.Recurrence == calendar.Custom {
			// Keep the remaining custom dates when none are supplied.
			if old, err = p.seriesFrom(ctx, occ); err != nil {
				return nil, err
			}
			fetched = true
			for _, o := range old {
				if o.ID != occ.ID {
					dates = append(dates, o.Day)
				}
			}
		}
		for _, d := range dates {
			if d.AfterOrEqual(anchor) {
				rule.Dates = append(rule.Dates, d)
			}
		}
	}

	days, err := p.expander().Expand(rule)
	if err != nil {
		return nil, err
	}
	if len(days) == 0 || !days[0].Equal(anchor) {
		days = append([]calendar.Day{anchor}, days...)
	}

	endFilter := calendar.Day{}
	if rule.HasEnd() {
		endFilter = rule.End
	}
	kept, dropped := clamp(days, window, endFilter)
	if len(kept) == 0 {
		filter := window.End
		if filter.IsZero() || (!endFilter.IsZero() && endFilter.Before(filter)) {
			filter = endFilter
		}
		return nil, &ClampError{ClientID: occ.ClientID, Anchor: anchor, ClientStart: window.Start, EndFilter: filter}
	}

	if !fetched {
		if old, err = p.seriesFrom(ctx, occ); err != nil {
			return nil, err
		}
	}

	recurrenceID := occ.RecurrenceID
	newSeries := recurrenceID == ""
	if newSeries && kind.IsRecurring() {
		recurrenceID = p.newID()
	}
	notes := occ.Notes
	if req.Notes != nil {
		notes = *req.Notes
	}
	seriesEnd := seriesEndFor(kind, rule.End, kept)

	plan := &Plan{
		Operation: OpEdit,
		Scope:     ScopeThisAndFollowing,
		ClientID:  occ.ClientID,
		Key: EditKey{
			Target:     occ.ID,
			Scope:      ScopeThisAndFollowing,
			Date:       anchor.Key(),
			Recurrence: recurrenceKey(kind, rule.Dates),
			EndDate:    rule.End.Key(),
			Limit:      rule.Limit,
		},
		Days:    kept,
		Dropped: dropped,
		Deltas:  map[string]int{},
	}

	for _, o := range old {
		plan.Deletes = append(plan.Deletes, o.ID)
		plan.Deltas[o.Day.Key()]--
	}
	for i, d := range kept {
		fields := OccurrenceFields{
			ClientID:     occ.ClientID,
			Day:          d,
			RecurrenceID: recurrenceID,
			Recurrence:   kind,
			SeriesEnd:    seriesEnd,
			Notes:        notes,
		}
		if i == 0 && recurrenceID != "" && (newSeries || occ.IsSeriesStart()) {
			fields.SeriesStartDate = d
		}
		plan.Creates = append(plan.Creates, fields)
		plan.Deltas[d.Key()]++
	}

	if err := p.project(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// =============================================================================
// DELETE
// =============================================================================

// PlanDelete plans removal of one occurrence, or of it and every later
// occurrence of its series. Projections floor at zero.
func (p *Planner) PlanDelete(ctx context.Context, req DeleteRequest) (*Plan, error) {
	scope, err := ParseScope(string(req.Scope))
	if err != nil {
		return nil, err
	}

	occ, err := p.Store.GetOccurrence(ctx, req.OccurrenceID)
	if err != nil {
		return nil, storageErr("get occurrence", err)
	}

	targets := []Occurrence{*occ}
	if scope == ScopeThisAndFollowing {
		if targets, err = p.seriesFrom(ctx, occ); err != nil {
			return nil, err
		}
	}

	plan := &Plan{
		Operation: OpDelete,
		Scope:     scope,
		ClientID:  occ.ClientID,
		Key: EditKey{
			Target:     occ.ID,
			Scope:      scope,
			Date:       occ.Day.Key(),
			Recurrence: string(OpDelete),
		},
		Deltas:      map[string]int{},
		ClampToZero: true,
	}
	for _, o := range targets {
		plan.Deletes = append(plan.Deletes, o.ID)
		plan.Deltas[o.Day.Key()]--
	}

	if err := p.project(ctx, plan); err != nil {
		return nil, err
	}
	p.logger().Debug("planned delete",
		zap.String("occurrence_id", occ.ID),
		zap.String("scope", string(scope)),
		zap.Int("deletes", len(plan.Deletes)),
	)
	return plan, nil
}

// =============================================================================
// PROJECTION
// =============================================================================

// project drops zero deltas, reads occupancy and limits for the touched
// dates and fills plan.Warnings.
func (p *Planner) project(ctx context.Context, plan *Plan) error {
	for k, v := range plan.Deltas {
		if v == 0 {
			delete(plan.Deltas, k)
		}
	}
	plan.Warnings = []capacity.Warning{}
	if len(plan.Deltas) == 0 {
		plan.Existing = map[string]int{}
		return nil
	}

	keys := capacity.DeltaKeys(plan.Deltas)
	existing, err := p.Store.FetchOccupancyCounts(ctx, keys)
	if err != nil {
		return storageErr("fetch occupancy", err)
	}
	defaults, err := p.Store.FetchWeeklyDefaults(ctx)
	if err != nil {
		return storageErr("fetch weekly defaults", err)
	}
	overrides := capacity.Overrides{}
	for _, k := range keys {
		limit, found, err := p.Store.FetchDailyOverride(ctx, k)
		if err != nil {
			return storageErr("fetch daily override", err)
		}
		if found {
			overrides[k] = limit
		}
	}

	plan.Existing = existing
	plan.Warnings = capacity.Project(capacity.ProjectionInput{
		Deltas:      plan.Deltas,
		Existing:    existing,
		Defaults:    defaults,
		Overrides:   overrides,
		ClampToZero: plan.ClampToZero,
		NearRatio:   p.NearRatio,
	})
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// clamp splits days into those inside the membership window (and on or
// before endFilter, when set) and those dropped.
func clamp(days []calendar.Day, window MembershipWindow, endFilter calendar.Day) (kept, dropped []calendar.Day) {
	kept = make([]calendar.Day, 0, len(days))
	for _, d := range days {
		if !window.Contains(d) || (!endFilter.IsZero() && d.After(endFilter)) {
			dropped = append(dropped, d)
			continue
		}
		kept = append(kept, d)
	}
	return kept, dropped
}

// seriesEndFor is the end date stored on each occurrence. Open-ended
// series store their last generated day so later edits stay bounded.
func seriesEndFor(kind calendar.Kind, end calendar.Day, days []calendar.Day) calendar.Day {
	switch kind {
	case calendar.Weekly, calendar.TwiceMonthly, calendar.Monthly:
		if !end.IsZero() {
			return end
		}
		return days[len(days)-1]
	default:
		return calendar.Day{}
	}
}

func recurrenceKey(kind calendar.Kind, dates []calendar.Day) string {
	if kind != calendar.Custom {
		return string(kind)
	}
	keys := make([]string, 0, len(dates))
	for _, d := range dates {
		keys = append(keys, d.Key())
	}
	sort.Strings(keys)
	return string(kind) + ":" + strings.Join(keys, ",")
}

// seriesFrom returns occ and every later occurrence of its series. A one-off
// is its own series.
func (p *Planner) seriesFrom(ctx context.Context, occ *Occurrence) ([]Occurrence, error) {
	if occ.RecurrenceID == "" {
		return []Occurrence{*occ}, nil
	}
	list, err := p.Store.FetchOccurrencesBySeries(ctx, occ.RecurrenceID, occ.ClientID, occ.Day)
	if err != nil {
		return nil, storageErr("fetch series", err)
	}
	if !containsOccurrence(list, occ.ID) {
		list = append(list, *occ)
	}
	return list, nil
}

func containsOccurrence(list []Occurrence, id string) bool {
	for _, o := range list {
		if o.ID == id {
			return true
		}
	}
	return false
}
