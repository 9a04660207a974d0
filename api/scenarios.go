/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	delivery data for demos and manual testing of the calendar view. Each
	scenario creates clients, capacity settings and delivery series that
	demonstrate a specific feature.

AVAILABLE SCENARIOS:

	steady-week:    Weekly, twice-monthly and monthly series, all in capacity
	holiday-crunch: Reduced capacity on two days pushes them near and over
	late-joiner:    A series that starts before the client's membership
	series-split:   A weekly series moved to Wednesdays part way through

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Save weekly capacity defaults and any overrides
 3. Create clients
 4. Plan and commit delivery series through the planner

Dates are relative to the Monday after today, so the calendar view always
has something to show.

Loaders commit plans directly and never pause for confirmation. Warnings a
scenario is meant to produce are the point of loading it.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "holiday-crunch"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Delivery endpoints the scenarios exercise
  - scheduling/planner.go: Plans the scenarios commit
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mealroute/delivery-engine/calendar"
	"github.com/mealroute/delivery-engine/capacity"
	"github.com/mealroute/delivery-engine/scheduling"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "steady-week",
		Name:        "Steady Week",
		Description: "Three clients on weekly, twice-monthly and monthly schedules, all within capacity",
		Category:    "series",
	},
	{
		ID:          "holiday-crunch",
		Name:        "Holiday Crunch",
		Description: "Reduced driver capacity leaves Thursday over and Friday near capacity",
		Category:    "capacity",
	},
	{
		ID:          "late-joiner",
		Name:        "Late Joiner",
		Description: "A weekly series requested before the client's start date is clamped to the membership window",
		Category:    "membership",
	},
	{
		ID:          "series-split",
		Name:        "Series Split",
		Description: "A Tuesday series moved to Wednesdays from its third delivery onward",
		Category:    "series",
	},
}

// standardWeek is Sunday closed, weekdays 60, Saturday 30.
var standardWeek = capacity.WeeklyDefaults{0, 60, 60, 60, 60, 60, 30}

type resetter interface {
	Reset(ctx context.Context) error
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the store and loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	loader, ok := h.scenarioLoaders()[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	store, ok := h.Service.Store().(resetter)
	if !ok {
		writeError(w, http.StatusNotImplemented, "Store does not support reset", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := store.Reset(ctx); err != nil {
		h.Logger.Error("scenario reset failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""

	anchor := nextMonday(h.today())
	clients, err := loader(ctx, anchor)
	if err != nil {
		h.Logger.Error("scenario load failed", zap.String("scenario", req.ScenarioID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	list, err := h.Service.Occurrences(ctx, anchor.AddDays(-31), anchor.AddDays(365))
	if err != nil {
		h.writeServiceError(w, "Failed to count deliveries", err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.Logger.Info("scenario loaded",
		zap.String("scenario", req.ScenarioID),
		zap.String("anchor", anchor.Key()),
		zap.Int("deliveries", len(list)),
	)
	writeJSON(w, http.StatusOK, LoadScenarioResponse{
		Status:     "loaded",
		Scenario:   req.ScenarioID,
		Anchor:     anchor.Key(),
		Clients:    clients,
		Deliveries: len(list),
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// scenarioLoader seeds the store around anchor (a Monday) and returns the
// number of clients created.
type scenarioLoader func(ctx context.Context, anchor calendar.Day) (int, error)

func (h *Handler) scenarioLoaders() map[string]scenarioLoader {
	return map[string]scenarioLoader{
		"steady-week":    h.loadSteadyWeekScenario,
		"holiday-crunch": h.loadHolidayCrunchScenario,
		"late-joiner":    h.loadLateJoinerScenario,
		"series-split":   h.loadSeriesSplitScenario,
	}
}

func (h *Handler) loadSteadyWeekScenario(ctx context.Context, anchor calendar.Day) (int, error) {
	if err := h.Service.SetWeeklyDefaults(ctx, standardWeek); err != nil {
		return 0, err
	}
	clients := []string{"ada", "ben", "cruz"}
	for _, id := range clients {
		if err := h.seedClient(ctx, id, anchor.AddDays(-7)); err != nil {
			return 0, err
		}
	}

	// Ada: every Monday for eight weeks
	if err := h.seedSchedule(ctx, "ada", calendar.Rule{
		Kind: calendar.Weekly, Start: anchor, End: anchor.AddDays(49),
	}, "ring twice"); err != nil {
		return 0, err
	}

	// Ben: twice a month, four deliveries
	if err := h.seedSchedule(ctx, "ben", calendar.Rule{
		Kind: calendar.TwiceMonthly, Start: anchor.AddDays(1), Limit: 4,
	}, ""); err != nil {
		return 0, err
	}

	// Cruz: monthly, three deliveries
	if err := h.seedSchedule(ctx, "cruz", calendar.Rule{
		Kind: calendar.Monthly, Start: anchor.AddDays(2), Limit: 3,
	}, "low sodium"); err != nil {
		return 0, err
	}
	return len(clients), nil
}

func (h *Handler) loadHolidayCrunchScenario(ctx context.Context, anchor calendar.Day) (int, error) {
	if err := h.Service.SetWeeklyDefaults(ctx, standardWeek); err != nil {
		return 0, err
	}
	thursday, friday := anchor.AddDays(3), anchor.AddDays(4)
	if err := h.Service.SetDailyOverride(ctx, thursday, 2); err != nil {
		return 0, err
	}
	if err := h.Service.SetDailyOverride(ctx, friday, 5); err != nil {
		return 0, err
	}

	clients := []string{"dana", "eli", "fay", "gus"}
	for i, id := range clients {
		if err := h.seedClient(ctx, id, anchor.AddDays(-14)); err != nil {
			return 0, err
		}
		// Three on Thursday (over), four on Friday (near)
		if i < 3 {
			if err := h.seedSchedule(ctx, id, calendar.Rule{Kind: calendar.None, Start: thursday}, "holiday box"); err != nil {
				return 0, err
			}
		}
		if err := h.seedSchedule(ctx, id, calendar.Rule{Kind: calendar.None, Start: friday}, ""); err != nil {
			return 0, err
		}
	}
	return len(clients), nil
}

func (h *Handler) loadLateJoinerScenario(ctx context.Context, anchor calendar.Day) (int, error) {
	if err := h.Service.SetWeeklyDefaults(ctx, standardWeek); err != nil {
		return 0, err
	}
	// Membership starts two weeks after the requested series does
	if err := h.seedClient(ctx, "hana", anchor.AddDays(14)); err != nil {
		return 0, err
	}
	if err := h.seedSchedule(ctx, "hana", calendar.Rule{
		Kind: calendar.Weekly, Start: anchor, End: anchor.AddDays(42),
	}, ""); err != nil {
		return 0, err
	}
	return 1, nil
}

func (h *Handler) loadSeriesSplitScenario(ctx context.Context, anchor calendar.Day) (int, error) {
	if err := h.Service.SetWeeklyDefaults(ctx, standardWeek); err != nil {
		return 0, err
	}
	if err := h.seedClient(ctx, "ivan", anchor.AddDays(-7)); err != nil {
		return 0, err
	}

	tuesday := anchor.AddDays(1)
	created, err := h.commitCreate(ctx, scheduling.CreateRequest{
		ClientID: "ivan",
		Rule:     calendar.Rule{Kind: calendar.Weekly, Start: tuesday, End: tuesday.AddDays(35)},
	})
	if err != nil {
		return 0, err
	}
	if len(created) < 3 {
		return 0, fmt.Errorf("series-split: expected at least 3 deliveries, got %d", len(created))
	}

	// Move the third delivery and everything after it to Wednesday
	plan, err := h.Service.Planner().PlanEdit(ctx, scheduling.EditRequest{
		OccurrenceID: created[2].ID,
		Scope:        scheduling.ScopeThisAndFollowing,
		Date:         created[2].Day.AddDays(1),
	})
	if err != nil {
		return 0, err
	}
	if _, err := scheduling.Commit(ctx, h.Service.Store(), plan); err != nil {
		return 0, err
	}
	return 1, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) seedClient(ctx context.Context, id string, start calendar.Day) error {
	return h.Service.SaveClient(ctx, scheduling.Client{
		ID:     id,
		Name:   id,
		Window: scheduling.MembershipWindow{Start: start},
	})
}

func (h *Handler) seedSchedule(ctx context.Context, clientID string, rule calendar.Rule, notes string) error {
	_, err := h.commitCreate(ctx, scheduling.CreateRequest{ClientID: clientID, Rule: rule, Notes: notes})
	return err
}

func (h *Handler) commitCreate(ctx context.Context, req scheduling.CreateRequest) ([]scheduling.Occurrence, error) {
	plan, err := h.Service.Planner().PlanCreate(ctx, req)
	if err != nil {
		return nil, err
	}
	res, err := scheduling.Commit(ctx, h.Service.Store(), plan)
	if err != nil {
		return nil, err
	}
	return res.Created, nil
}

// nextMonday returns the first Monday strictly after d.
func nextMonday(d calendar.Day) calendar.Day {
	d = d.AddDays(1)
	for d.Weekday() != time.Monday {
		d = d.AddDays(1)
	}
	return d
}
