/*
handlers.go - HTTP API handlers for the delivery scheduling engine

PURPOSE:
  Exposes the scheduling service via REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to scheduling.Service.

ENDPOINTS:
  Calendar:
    GET    /api/calendar?from=&to=        Per-day count, limit and status
    GET    /api/capacity/defaults         Weekly default limits
    PUT    /api/capacity/defaults         Replace weekly default limits
    GET    /api/capacity/{date}           Capacity state of one day
    PUT    /api/capacity/{date}           Set a daily override

  Recurrence:
    POST   /api/recurrence/expand         Preview the dates of a rule

  Clients:
    POST   /api/clients                   Create or replace a client
    GET    /api/clients/{id}              Get a client

  Scenarios:
    GET    /api/scenarios                 List demo scenarios
    GET    /api/scenarios/current         Currently loaded scenario
    POST   /api/scenarios/load            Reset and load a demo scenario

  Deliveries:
    GET    /api/deliveries?from=&to=      List deliveries
    GET    /api/deliveries/{id}           Get a delivery
    POST   /api/deliveries                Schedule a delivery or series
    PUT    /api/deliveries/{id}           Edit (scope: this | following)
    DELETE /api/deliveries/{id}           Delete (?scope=&acknowledged=)

CONFIRMATION FLOW:
  A mutation whose projection crosses a capacity band is not committed on
  the first submission. The handler answers 409 with the warnings and the
  plan key. The client shows the warnings and resubmits the same request
  with "acknowledged" set to that key. A changed request produces a
  different key, so stale acknowledgments pause again.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid rules, dates outside the client window
  - 404: Delivery or client not found
  - 409: Paused for capacity confirmation
  - 500: Storage failures

SECURITY NOTE:
  No authentication. The service is expected to sit behind the intake
  application's gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scenarios.go: Demo scenario loaders
  - scheduling/service.go: Planner -> gate -> commit
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mealroute/delivery-engine/calendar"
	"github.com/mealroute/delivery-engine/capacity"
	"github.com/mealroute/delivery-engine/scheduling"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Service *scheduling.Service
	Logger  *zap.Logger

	// DefaultSpanDays is the calendar span when "to" is omitted.
	DefaultSpanDays int

	// Today anchors default ranges and demo scenarios.
	Today func() calendar.Day

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(svc *scheduling.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Service:         svc,
		Logger:          logger,
		DefaultSpanDays: 28,
		Today:           calendar.Today,
		validate:        newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("calendarday", validateCalendarDay)
	return v
}

func validateCalendarDay(fl validator.FieldLevel) bool {
	_, ok := calendar.Parse(fl.Field().String())
	return ok
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// =============================================================================
// CALENDAR / CAPACITY
// =============================================================================

// GetCalendar returns the capacity state of each day in a range.
// GET /api/calendar?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.parseRange(w, r)
	if !ok {
		return
	}

	days, err := h.Service.Range(r.Context(), from, to)
	if err != nil {
		h.writeServiceError(w, "Failed to load calendar", err)
		return
	}

	resp := CalendarResponse{
		From: from.Key(),
		To:   to.Key(),
		Days: make([]DayCapacityDTO, 0, len(days)),
	}
	for _, d := range days {
		resp.Days = append(resp.Days, toDayCapacityDTO(d))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetDayCapacity returns the capacity state of one day.
// GET /api/capacity/{date}
func (h *Handler) GetDayCapacity(w http.ResponseWriter, r *http.Request) {
	day, ok := calendar.Parse(chi.URLParam(r, "date"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid date", nil)
		return
	}

	c, err := h.Service.DayCapacity(r.Context(), day)
	if err != nil {
		h.writeServiceError(w, "Failed to load capacity", err)
		return
	}
	writeJSON(w, http.StatusOK, toDayCapacityDTO(c))
}

// SetDailyOverride pins the limit of one day.
// PUT /api/capacity/{date}
func (h *Handler) SetDailyOverride(w http.ResponseWriter, r *http.Request) {
	day, ok := calendar.Parse(chi.URLParam(r, "date"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid date", nil)
		return
	}

	var req DailyOverrideRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.Service.SetDailyOverride(r.Context(), day, *req.Limit); err != nil {
		h.writeServiceError(w, "Failed to set daily override", err)
		return
	}

	c, err := h.Service.DayCapacity(r.Context(), day)
	if err != nil {
		h.writeServiceError(w, "Failed to load capacity", err)
		return
	}
	writeJSON(w, http.StatusOK, toDayCapacityDTO(c))
}

// GetWeeklyDefaults returns the weekday default limits.
// GET /api/capacity/defaults
func (h *Handler) GetWeeklyDefaults(w http.ResponseWriter, r *http.Request) {
	defaults, err := h.Service.WeeklyDefaults(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to load weekly defaults", err)
		return
	}
	writeJSON(w, http.StatusOK, WeeklyDefaultsDTO{Limits: defaults})
}

// SetWeeklyDefaults replaces the weekday default limits.
// PUT /api/capacity/defaults
func (h *Handler) SetWeeklyDefaults(w http.ResponseWriter, r *http.Request) {
	var req WeeklyDefaultsDTO
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.Service.SetWeeklyDefaults(r.Context(), capacity.WeeklyDefaults(req.Limits)); err != nil {
		h.writeServiceError(w, "Failed to save weekly defaults", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// =============================================================================
// RECURRENCE
// =============================================================================

// ExpandRule previews the dates a rule produces without touching storage.
// POST /api/recurrence/expand
func (h *Handler) ExpandRule(w http.ResponseWriter, r *http.Request) {
	var req ExpandRequest
	if !h.decode(w, r, &req) {
		return
	}

	rule, err := toRule(req.Rule)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule", err)
		return
	}

	expander := h.Service.Planner().Expander
	if expander == nil {
		expander = calendar.NewExpander()
	}
	days, err := expander.Expand(rule)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule", err)
		return
	}
	writeJSON(w, http.StatusOK, ExpandResponse{Dates: dayKeys(days)})
}

// =============================================================================
// CLIENTS
// =============================================================================

// SaveClient creates or replaces a client's membership window.
// POST /api/clients
func (h *Handler) SaveClient(w http.ResponseWriter, r *http.Request) {
	var req ClientRequest
	if !h.decode(w, r, &req) {
		return
	}

	c := scheduling.Client{ID: req.ID, Name: req.Name}
	c.Window.Start, _ = calendar.Parse(req.StartDate)
	if req.EndDate != "" {
		c.Window.End, _ = calendar.Parse(req.EndDate)
		if c.Window.End.Before(c.Window.Start) {
			writeError(w, http.StatusBadRequest, "End date is before start date", nil)
			return
		}
	}

	if err := h.Service.SaveClient(r.Context(), c); err != nil {
		h.writeServiceError(w, "Failed to save client", err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(c))
}

// GetClient returns one client.
// GET /api/clients/{id}
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.Client(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Failed to load client", err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(*c))
}

// =============================================================================
// DELIVERIES
// =============================================================================

// ListDeliveries lists deliveries in a range.
// GET /api/deliveries?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.parseRange(w, r)
	if !ok {
		return
	}

	list, err := h.Service.Occurrences(r.Context(), from, to)
	if err != nil {
		h.writeServiceError(w, "Failed to list deliveries", err)
		return
	}
	writeJSON(w, http.StatusOK, toDeliveryDTOs(list))
}

// GetDelivery returns one delivery.
// GET /api/deliveries/{id}
func (h *Handler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	occ, err := h.Service.Occurrence(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "Failed to load delivery", err)
		return
	}
	writeJSON(w, http.StatusOK, toDeliveryDTO(*occ))
}

// CreateDelivery schedules a one-off delivery or a series.
// POST /api/deliveries
func (h *Handler) CreateDelivery(w http.ResponseWriter, r *http.Request) {
	var req CreateDeliveryRequest
	if !h.decode(w, r, &req) {
		return
	}

	rule, err := toRule(req.Rule)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule", err)
		return
	}

	out, err := h.Service.Create(r.Context(), scheduling.CreateRequest{
		ClientID: req.ClientID,
		Rule:     rule,
		Notes:    req.Notes,
	}, parseAck(req.Acknowledged))
	if err != nil {
		h.writeServiceError(w, "Failed to schedule delivery", err)
		return
	}
	h.writeOutcome(w, out, http.StatusCreated)
}

// EditDelivery moves or changes a delivery.
// PUT /api/deliveries/{id}
func (h *Handler) EditDelivery(w http.ResponseWriter, r *http.Request) {
	var req EditDeliveryRequest
	if !h.decode(w, r, &req) {
		return
	}

	scope, err := scheduling.ParseScope(req.Scope)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid scope", err)
		return
	}
	kind, ok := calendar.ParseKind(req.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid recurrence kind", nil)
		return
	}
	if req.Kind == "" {
		// keep the series kind
		kind = ""
	}

	edit := scheduling.EditRequest{
		OccurrenceID: chi.URLParam(r, "id"),
		Scope:        scope,
		Kind:         kind,
		Limit:        req.Limit,
		Notes:        req.Notes,
	}
	edit.Date, _ = calendar.Parse(req.Date)
	edit.End, _ = calendar.Parse(req.End)
	edit.Dates = parseDays(req.Dates)

	out, err := h.Service.Edit(r.Context(), edit, parseAck(req.Acknowledged))
	if err != nil {
		h.writeServiceError(w, "Failed to edit delivery", err)
		return
	}
	h.writeOutcome(w, out, http.StatusOK)
}

// DeleteDelivery removes a delivery or the rest of its series.
// DELETE /api/deliveries/{id}?scope=this|following&acknowledged=KEY
func (h *Handler) DeleteDelivery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	scope, err := scheduling.ParseScope(q.Get("scope"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid scope", err)
		return
	}

	out, err := h.Service.Delete(r.Context(), scheduling.DeleteRequest{
		OccurrenceID: chi.URLParam(r, "id"),
		Scope:        scope,
	}, parseAck(q.Get("acknowledged")))
	if err != nil {
		h.writeServiceError(w, "Failed to delete delivery", err)
		return
	}
	h.writeOutcome(w, out, http.StatusOK)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Namespace()] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Validation failed",
				Code:    "validation",
				Details: fields,
			})
			return false
		}
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func (h *Handler) today() calendar.Day {
	if h.Today == nil {
		return calendar.Today()
	}
	return h.Today()
}

// parseRange reads from/to. from defaults to today, to to from plus the
// default span.
func (h *Handler) parseRange(w http.ResponseWriter, r *http.Request) (calendar.Day, calendar.Day, bool) {
	q := r.URL.Query()

	from := h.today()
	if v := q.Get("from"); v != "" {
		d, ok := calendar.Parse(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid from date", nil)
			return calendar.Day{}, calendar.Day{}, false
		}
		from = d
	}

	span := h.DefaultSpanDays
	if span <= 0 {
		span = 28
	}
	to := from.AddDays(span - 1)
	if v := q.Get("to"); v != "" {
		d, ok := calendar.Parse(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid to date", nil)
			return calendar.Day{}, calendar.Day{}, false
		}
		to = d
	}
	return from, to, true
}

// writeOutcome answers a submission. Paused submissions get 409 so clients
// cannot mistake them for success.
func (h *Handler) writeOutcome(w http.ResponseWriter, out *scheduling.Outcome, committedStatus int) {
	resp := SubmitResponse{
		Plan:     toPlanDTO(out.Plan),
		StaleAck: out.StaleAck,
	}
	if out.Paused {
		resp.Status = "paused"
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	resp.Status = "committed"
	resp.Created = toDeliveryDTOs(out.Result.Created)
	writeJSON(w, committedStatus, resp)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, message string, err error) {
	switch {
	case scheduling.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: message, Code: "not_found", Details: err.Error()})
	case scheduling.IsClientError(err):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: message, Code: errorCode(err), Details: err.Error()})
	default:
		h.Logger.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, calendar.ErrInvalidRule):
		return "invalid_rule"
	case errors.Is(err, scheduling.ErrBeforeClientStart):
		return "before_client_start"
	case errors.Is(err, scheduling.ErrNothingToSchedule):
		return "nothing_to_schedule"
	case errors.Is(err, scheduling.ErrInvalidScope):
		return "invalid_scope"
	case errors.Is(err, scheduling.ErrInvalidLimit):
		return "invalid_limit"
	case errors.Is(err, scheduling.ErrInvalidRange):
		return "invalid_range"
	default:
		return ""
	}
}

// parseAck returns nil for an absent or malformed key; either way the
// submission is treated as unconfirmed.
func parseAck(s string) *scheduling.EditKey {
	if s == "" {
		return nil
	}
	k, err := scheduling.ParseEditKey(s)
	if err != nil {
		return nil
	}
	return &k
}

func toRule(dto RuleDTO) (calendar.Rule, error) {
	kind, ok := calendar.ParseKind(dto.Kind)
	if !ok {
		return calendar.Rule{}, &calendar.RuleError{Kind: calendar.Kind(dto.Kind), Reason: "unknown kind"}
	}
	rule := calendar.Rule{Kind: kind, Limit: dto.Limit, Dates: parseDays(dto.Dates)}
	rule.Start, _ = calendar.Parse(dto.Start)
	rule.End, _ = calendar.Parse(dto.End)
	return rule, nil
}

func parseDays(keys []string) []calendar.Day {
	if len(keys) == 0 {
		return nil
	}
	out := make([]calendar.Day, 0, len(keys))
	for _, k := range keys {
		if d, ok := calendar.Parse(k); ok {
			out = append(out, d)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
