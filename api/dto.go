/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the scheduling domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

DATES:
  Every date field accepts a YYYY-MM-DD key or an RFC 3339 instant. Instants
  are read as the Eastern calendar day they fall on. Responses always use
  YYYY-MM-DD keys.

VALIDATION:
  Request types carry go-playground/validator tags. The "calendarday" tag
  is registered in handlers.go.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/mealroute/delivery-engine/calendar"
	"github.com/mealroute/delivery-engine/capacity"
	"github.com/mealroute/delivery-engine/scheduling"
)

// =============================================================================
// CAPACITY
// =============================================================================

// DayCapacityDTO is one day of the calendar view.
type DayCapacityDTO struct {
	Date       string           `json:"date"`
	Weekday    string           `json:"weekday"`
	Count      int              `json:"count"`
	Limit      int              `json:"limit"`
	Overridden bool             `json:"overridden"`
	Status     capacity.Status  `json:"status"`
	Display    capacity.Display `json:"display"`
}

// CalendarResponse is the response of GET /api/calendar.
type CalendarResponse struct {
	From string           `json:"from"`
	To   string           `json:"to"`
	Days []DayCapacityDTO `json:"days"`
}

// WeeklyDefaultsDTO lists limits Sunday first.
type WeeklyDefaultsDTO struct {
	Limits []int `json:"limits" validate:"required,len=7,dive,gte=0"`
}

// DailyOverrideRequest sets the limit of one date.
type DailyOverrideRequest struct {
	Limit *int `json:"limit" validate:"required,gte=0"`
}

// =============================================================================
// RECURRENCE
// =============================================================================

// RuleDTO describes a delivery schedule.
type RuleDTO struct {
	Kind  string   `json:"kind" validate:"omitempty,oneof=none weekly 2x-monthly twice-monthly monthly custom"`
	Start string   `json:"start,omitempty" validate:"omitempty,calendarday"`
	End   string   `json:"end,omitempty" validate:"omitempty,calendarday"`
	Limit int      `json:"limit,omitempty" validate:"gte=0,lte=520"`
	Dates []string `json:"dates,omitempty" validate:"omitempty,max=366,dive,calendarday"`
}

// ExpandRequest previews an expansion.
type ExpandRequest struct {
	Rule RuleDTO `json:"rule"`
}

// ExpandResponse lists the expanded dates.
type ExpandResponse struct {
	Dates []string `json:"dates"`
}

// =============================================================================
// CLIENTS
// =============================================================================

// ClientRequest creates or replaces a client's membership window.
type ClientRequest struct {
	ID        string `json:"id" validate:"required,max=64"`
	Name      string `json:"name" validate:"required,max=200"`
	StartDate string `json:"startDate" validate:"required,calendarday"`
	EndDate   string `json:"endDate,omitempty" validate:"omitempty,calendarday"`
}

// ClientDTO is a client as returned by the API.
type ClientDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

// =============================================================================
// DELIVERIES
// =============================================================================

// CreateDeliveryRequest schedules one delivery or a series.
type CreateDeliveryRequest struct {
	ClientID     string  `json:"clientId" validate:"required"`
	Rule         RuleDTO `json:"rule"`
	Notes        string  `json:"notes,omitempty" validate:"max=1000"`
	Acknowledged string  `json:"acknowledged,omitempty"`
}

// EditDeliveryRequest moves or changes a delivery.
type EditDeliveryRequest struct {
	Scope        string   `json:"scope,omitempty" validate:"omitempty,oneof=this following"`
	Date         string   `json:"date,omitempty" validate:"omitempty,calendarday"`
	Kind         string   `json:"kind,omitempty" validate:"omitempty,oneof=none weekly 2x-monthly twice-monthly monthly custom"`
	End          string   `json:"end,omitempty" validate:"omitempty,calendarday"`
	Limit        int      `json:"limit,omitempty" validate:"gte=0,lte=520"`
	Dates        []string `json:"dates,omitempty" validate:"omitempty,max=366,dive,calendarday"`
	Notes        *string  `json:"notes,omitempty" validate:"omitempty,max=1000"`
	Acknowledged string   `json:"acknowledged,omitempty"`
}

// DeliveryDTO is a stored delivery.
type DeliveryDTO struct {
	ID              string    `json:"id"`
	ClientID        string    `json:"clientId"`
	Date            string    `json:"date"`
	RecurrenceID    string    `json:"recurrenceId,omitempty"`
	SeriesStartDate string    `json:"seriesStartDate,omitempty"`
	Recurrence      string    `json:"recurrence"`
	SeriesEnd       string    `json:"seriesEnd,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// WarningDTO is a projected capacity warning.
type WarningDTO struct {
	Date           string           `json:"date"`
	Weekday        string           `json:"weekday"`
	ProjectedCount int              `json:"projectedCount"`
	Limit          int              `json:"limit"`
	Status         capacity.Status  `json:"status"`
	Display        capacity.Display `json:"display"`
	Message        string           `json:"message"`
}

// PlanDTO summarizes a plan.
type PlanDTO struct {
	Operation string         `json:"operation"`
	Scope     string         `json:"scope"`
	Key       string         `json:"key"`
	Dates     []string       `json:"dates"`
	Dropped   []string       `json:"dropped,omitempty"`
	Deltas    map[string]int `json:"deltas"`
	Warnings  []WarningDTO   `json:"warnings"`
	Deletes   int            `json:"deletes"`
	Creates   int            `json:"creates"`
	Updates   int            `json:"updates"`
}

// SubmitResponse is returned by the mutating delivery endpoints. A paused
// submission is answered with 409 and Status "paused"; resend the request
// with acknowledged set to Plan.Key to proceed.
type SubmitResponse struct {
	Status   string        `json:"status"`
	Plan     PlanDTO       `json:"plan"`
	Created  []DeliveryDTO `json:"created,omitempty"`
	StaleAck bool          `json:"staleAck,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// LoadScenarioResponse reports what a scenario created.
type LoadScenarioResponse struct {
	Status     string `json:"status"`
	Scenario   string `json:"scenario"`
	Anchor     string `json:"anchor"`
	Clients    int    `json:"clients"`
	Deliveries int    `json:"deliveries"`
}

// HealthResponse is the response of GET /api/health.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toDayCapacityDTO(c scheduling.DayCapacity) DayCapacityDTO {
	return DayCapacityDTO{
		Date:       c.Day.Key(),
		Weekday:    c.Day.Weekday().String(),
		Count:      c.Count,
		Limit:      c.Limit,
		Overridden: c.Overridden,
		Status:     c.Status,
		Display:    c.Status.Display(),
	}
}

func toDeliveryDTO(o scheduling.Occurrence) DeliveryDTO {
	return DeliveryDTO{
		ID:              o.ID,
		ClientID:        o.ClientID,
		Date:            o.Day.Key(),
		RecurrenceID:    o.RecurrenceID,
		SeriesStartDate: o.SeriesStartDate.Key(),
		Recurrence:      string(o.Recurrence),
		SeriesEnd:       o.SeriesEnd.Key(),
		Notes:           o.Notes,
		CreatedAt:       o.CreatedAt,
	}
}

func toDeliveryDTOs(list []scheduling.Occurrence) []DeliveryDTO {
	out := make([]DeliveryDTO, 0, len(list))
	for _, o := range list {
		out = append(out, toDeliveryDTO(o))
	}
	return out
}

func toClientDTO(c scheduling.Client) ClientDTO {
	return ClientDTO{
		ID:        c.ID,
		Name:      c.Name,
		StartDate: c.Window.Start.Key(),
		EndDate:   c.Window.End.Key(),
	}
}

func toPlanDTO(p *scheduling.Plan) PlanDTO {
	dto := PlanDTO{
		Operation: string(p.Operation),
		Scope:     string(p.Scope),
		Key:       p.Key.String(),
		Dates:     dayKeys(p.Days),
		Dropped:   dayKeys(p.Dropped),
		Deltas:    p.Deltas,
		Warnings:  make([]WarningDTO, 0, len(p.Warnings)),
		Deletes:   len(p.Deletes),
		Creates:   len(p.Creates),
		Updates:   len(p.Updates),
	}
	if dto.Deltas == nil {
		dto.Deltas = map[string]int{}
	}
	for _, w := range p.Warnings {
		dto.Warnings = append(dto.Warnings, WarningDTO{
			Date:           w.Key(),
			Weekday:        w.Day.Weekday().String(),
			ProjectedCount: w.ProjectedCount,
			Limit:          w.Limit,
			Status:         w.Status,
			Display:        w.Status.Display(),
			Message:        w.Message(),
		})
	}
	return dto
}

func dayKeys(days []calendar.Day) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, d.Key())
	}
	return out
}
