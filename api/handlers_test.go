/*
handlers_test.go - Tests for API handlers

Tests for:
- Confirmation flow (409 pause, acknowledged resubmission, stale keys)
- Error mapping (validation, invalid rules, clamping, not found)
- Calendar, capacity configuration and rule preview endpoints
- Edit and delete of series through the HTTP surface
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealroute/delivery-engine/calendar"
	"github.com/mealroute/delivery-engine/capacity"
	"github.com/mealroute/delivery-engine/scheduling"
	"github.com/mealroute/delivery-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testAPI struct {
	router *chi.Mux
	store  *memory.Memory
	svc    *scheduling.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	require.NoError(t, store.SaveWeeklyDefaults(ctx, capacity.WeeklyDefaults{0, 60, 60, 60, 60, 60, 30}))
	require.NoError(t, store.SaveClient(ctx, scheduling.Client{
		ID:     "c1",
		Name:   "Ada",
		Window: scheduling.MembershipWindow{Start: calendar.MustParseKey("2025-08-01")},
	}))

	svc := scheduling.NewService(store, scheduling.Options{})
	h := NewHandler(svc, nil)
	return &testAPI{
		router: NewRouter(h, RouterOptions{}),
		store:  store,
		svc:    svc,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// =============================================================================
// CONFIRMATION FLOW
// =============================================================================

func TestCreateDelivery_PausesThenCommitsOnAcknowledgment(t *testing.T) {
	// GIVEN: Monday 2025-09-01 has room for exactly one delivery
	a := newTestAPI(t)
	rec := a.do(t, http.MethodPut, "/api/capacity/2025-09-01", map[string]int{"limit": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := CreateDeliveryRequest{
		ClientID: "c1",
		Rule:     RuleDTO{Kind: "none", Start: "2025-09-01"},
	}

	// WHEN: Scheduling without acknowledgment
	rec = a.do(t, http.MethodPost, "/api/deliveries", body)

	// THEN: The submission pauses with an "at capacity" warning
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	paused := decodeBody[SubmitResponse](t, rec)
	assert.Equal(t, "paused", paused.Status)
	require.Len(t, paused.Plan.Warnings, 1)
	assert.Equal(t, capacity.StatusAt, paused.Plan.Warnings[0].Status)
	assert.Equal(t, "2025-09-01", paused.Plan.Warnings[0].Date)
	assert.NotEmpty(t, paused.Plan.Key)

	list, err := a.store.ListOccurrences(context.Background(),
		calendar.MustParseKey("2025-09-01"), calendar.MustParseKey("2025-09-30"))
	require.NoError(t, err)
	assert.Empty(t, list, "nothing may be written while paused")

	// WHEN: Resubmitting with the key
	body.Acknowledged = paused.Plan.Key
	rec = a.do(t, http.MethodPost, "/api/deliveries", body)

	// THEN: It commits
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	done := decodeBody[SubmitResponse](t, rec)
	assert.Equal(t, "committed", done.Status)
	require.Len(t, done.Created, 1)
	assert.Equal(t, "2025-09-01", done.Created[0].Date)
	assert.Equal(t, "none", done.Created[0].Recurrence)

	// AND: The calendar shows the day at capacity
	rec = a.do(t, http.MethodGet, "/api/calendar?from=2025-09-01&to=2025-09-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cal := decodeBody[CalendarResponse](t, rec)
	require.Len(t, cal.Days, 3)
	assert.Equal(t, 1, cal.Days[0].Count)
	assert.Equal(t, 1, cal.Days[0].Limit)
	assert.True(t, cal.Days[0].Overridden)
	assert.Equal(t, capacity.StatusAt, cal.Days[0].Status)
	assert.Equal(t, "FULL", cal.Days[0].Display.Label)
	assert.Equal(t, "Monday", cal.Days[0].Weekday)
	assert.Equal(t, capacity.StatusNormal, cal.Days[1].Status)
}

func TestCreateDelivery_StaleAcknowledgmentPausesAgain(t *testing.T) {
	// GIVEN: A confirmation obtained for 2025-09-01
	a := newTestAPI(t)
	a.do(t, http.MethodPut, "/api/capacity/2025-09-01", map[string]int{"limit": 1})
	a.do(t, http.MethodPut, "/api/capacity/2025-09-08", map[string]int{"limit": 1})

	body := CreateDeliveryRequest{ClientID: "c1", Rule: RuleDTO{Kind: "none", Start: "2025-09-01"}}
	first := decodeBody[SubmitResponse](t, a.do(t, http.MethodPost, "/api/deliveries", body))

	// WHEN: The request changes to 2025-09-08 but carries the old key
	body.Rule.Start = "2025-09-08"
	body.Acknowledged = first.Plan.Key
	rec := a.do(t, http.MethodPost, "/api/deliveries", body)

	// THEN: It pauses again and reports the stale key
	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeBody[SubmitResponse](t, rec)
	assert.True(t, resp.StaleAck)
	assert.NotEqual(t, first.Plan.Key, resp.Plan.Key)
}

func TestCreateDelivery_MalformedAcknowledgmentIsIgnored(t *testing.T) {
	a := newTestAPI(t)
	a.do(t, http.MethodPut, "/api/capacity/2025-09-01", map[string]int{"limit": 1})

	rec := a.do(t, http.MethodPost, "/api/deliveries", CreateDeliveryRequest{
		ClientID:     "c1",
		Rule:         RuleDTO{Kind: "none", Start: "2025-09-01"},
		Acknowledged: "not-a-key",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestCreateDelivery_Errors(t *testing.T) {
	a := newTestAPI(t)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{
			name:   "open-ended weekly without a limit",
			body:   CreateDeliveryRequest{ClientID: "c1", Rule: RuleDTO{Kind: "weekly", Start: "2025-09-01"}},
			status: http.StatusBadRequest,
			code:   "invalid_rule",
		},
		{
			name:   "before client start",
			body:   CreateDeliveryRequest{ClientID: "c1", Rule: RuleDTO{Kind: "none", Start: "2025-07-01"}},
			status: http.StatusBadRequest,
			code:   "before_client_start",
		},
		{
			name:   "unparseable date",
			body:   CreateDeliveryRequest{ClientID: "c1", Rule: RuleDTO{Kind: "none", Start: "next tuesday"}},
			status: http.StatusBadRequest,
			code:   "validation",
		},
		{
			name:   "unknown kind",
			body:   CreateDeliveryRequest{ClientID: "c1", Rule: RuleDTO{Kind: "hourly", Start: "2025-09-01"}},
			status: http.StatusBadRequest,
			code:   "validation",
		},
		{
			name:   "missing client",
			body:   CreateDeliveryRequest{Rule: RuleDTO{Kind: "none", Start: "2025-09-01"}},
			status: http.StatusBadRequest,
			code:   "validation",
		},
		{
			name:   "unknown client",
			body:   CreateDeliveryRequest{ClientID: "ghost", Rule: RuleDTO{Kind: "none", Start: "2025-09-01"}},
			status: http.StatusNotFound,
			code:   "not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, http.MethodPost, "/api/deliveries", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decodeBody[ErrorResponse](t, rec)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestCreateDelivery_InvalidJSON(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/deliveries", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDelivery_NotFound(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodGet, "/api/deliveries/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/clients/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// SERIES EDIT / DELETE
// =============================================================================

func createWeekly(t *testing.T, a *testAPI) []DeliveryDTO {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/deliveries", CreateDeliveryRequest{
		ClientID: "c1",
		Rule:     RuleDTO{Kind: "weekly", Start: "2025-09-02", End: "2025-09-30"},
		Notes:    "leave at door",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeBody[SubmitResponse](t, rec)
	require.Len(t, resp.Created, 5)
	return resp.Created
}

func TestDeleteDelivery_ThisAndFollowing(t *testing.T) {
	// GIVEN: Five weekly Tuesday deliveries
	a := newTestAPI(t)
	created := createWeekly(t, a)

	// WHEN: Deleting the third and everything after it
	rec := a.do(t, http.MethodDelete, "/api/deliveries/"+created[2].ID+"?scope=following", nil)

	// THEN: Three are removed and two remain
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[SubmitResponse](t, rec)
	assert.Equal(t, 3, resp.Plan.Deletes)

	rec = a.do(t, http.MethodGet, "/api/deliveries?from=2025-09-01&to=2025-09-30", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]DeliveryDTO](t, rec)
	dates := make([]string, 0, len(list))
	for _, d := range list {
		dates = append(dates, d.Date)
	}
	assert.Equal(t, []string{"2025-09-02", "2025-09-09"}, dates)
}

func TestDeleteDelivery_InvalidScope(t *testing.T) {
	a := newTestAPI(t)
	created := createWeekly(t, a)
	rec := a.do(t, http.MethodDelete, "/api/deliveries/"+created[0].ID+"?scope=everything", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEditDelivery_MoveThisEvent(t *testing.T) {
	// GIVEN: A weekly series
	a := newTestAPI(t)
	created := createWeekly(t, a)

	// WHEN: Moving only the second delivery to Wednesday
	rec := a.do(t, http.MethodPut, "/api/deliveries/"+created[1].ID, EditDeliveryRequest{
		Scope: "this",
		Date:  "2025-09-10",
	})

	// THEN: That delivery moves and keeps its series
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[SubmitResponse](t, rec)
	assert.Equal(t, 1, resp.Plan.Updates)
	assert.Equal(t, map[string]int{"2025-09-09": -1, "2025-09-10": 1}, resp.Plan.Deltas)

	got := decodeBody[DeliveryDTO](t, a.do(t, http.MethodGet, "/api/deliveries/"+created[1].ID, nil))
	assert.Equal(t, "2025-09-10", got.Date)
	assert.Equal(t, created[1].RecurrenceID, got.RecurrenceID)
	assert.Equal(t, "leave at door", got.Notes)
}

func TestEditDelivery_FollowingBeforeClientStart(t *testing.T) {
	// GIVEN: A weekly series for a client starting 2025-08-01
	a := newTestAPI(t)
	created := createWeekly(t, a)

	// WHEN: Moving the series to July
	rec := a.do(t, http.MethodPut, "/api/deliveries/"+created[0].ID, EditDeliveryRequest{
		Scope: "following",
		Date:  "2025-07-29",
	})

	// THEN: It is rejected and nothing changes
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "before_client_start", decodeBody[ErrorResponse](t, rec).Code)

	list, err := a.svc.Occurrences(context.Background(),
		calendar.MustParseKey("2025-07-01"), calendar.MustParseKey("2025-09-30"))
	require.NoError(t, err)
	assert.Len(t, list, 5)
}

// =============================================================================
// CAPACITY / CLIENTS / PREVIEW
// =============================================================================

func TestWeeklyDefaults_RoundTripAndValidation(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/capacity/defaults", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{0, 60, 60, 60, 60, 60, 30}, decodeBody[WeeklyDefaultsDTO](t, rec).Limits)

	rec = a.do(t, http.MethodPut, "/api/capacity/defaults", WeeklyDefaultsDTO{Limits: []int{10, 20, 30}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPut, "/api/capacity/defaults", WeeklyDefaultsDTO{Limits: []int{0, 40, 40, 40, 40, 40, 20}})
	require.Equal(t, http.StatusOK, rec.Code)

	day := decodeBody[DayCapacityDTO](t, a.do(t, http.MethodGet, "/api/capacity/2025-09-06", nil))
	assert.Equal(t, 20, day.Limit)
	assert.False(t, day.Overridden)
}

func TestSetDailyOverride_RejectsNegative(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodPut, "/api/capacity/2025-09-01", map[string]int{"limit": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPut, "/api/capacity/2025-09-01", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/capacity/soon", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalendar_RangeTooLong(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodGet, "/api/calendar?from=2025-01-01&to=2026-12-31", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_range", decodeBody[ErrorResponse](t, rec).Code)
}

func TestExpandRule(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/recurrence/expand", ExpandRequest{
		Rule: RuleDTO{Kind: "weekly", Start: "2025-09-01", End: "2025-09-29"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t,
		[]string{"2025-09-01", "2025-09-08", "2025-09-15", "2025-09-22", "2025-09-29"},
		decodeBody[ExpandResponse](t, rec).Dates)

	rec = a.do(t, http.MethodPost, "/api/recurrence/expand", ExpandRequest{
		Rule: RuleDTO{Kind: "monthly", Start: "2025-09-01"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveClient(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/clients", ClientRequest{
		ID: "c2", Name: "Grace", StartDate: "2025-10-01", EndDate: "2025-12-31",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decodeBody[ClientDTO](t, a.do(t, http.MethodGet, "/api/clients/c2", nil))
	assert.Equal(t, "2025-10-01", got.StartDate)
	assert.Equal(t, "2025-12-31", got.EndDate)

	rec = a.do(t, http.MethodPost, "/api/clients", ClientRequest{
		ID: "c3", Name: "Bad", StartDate: "2025-10-01", EndDate: "2025-09-01",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for reversed window, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[HealthResponse](t, rec).Status)
}
