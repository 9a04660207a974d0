package capacity

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS - Occupancy band of a day
// =============================================================================

type Status string

const (
	StatusNormal Status = "normal"
	StatusNear   Status = "near"
	StatusAt     Status = "at"
	StatusOver   Status = "over"
)

// DefaultNearRatio is the occupancy share at which a day counts as "near".
var DefaultNearRatio = decimal.RequireFromString("0.8")

// Classify uses DefaultNearRatio.
func Classify(count, limit int) Status {
	return ClassifyWithRatio(count, limit, DefaultNearRatio)
}

// ClassifyWithRatio bands count against limit. A day with no capacity
// configured (limit <= 0) is over as soon as anything is scheduled.
func ClassifyWithRatio(count, limit int, nearRatio decimal.Decimal) Status {
	switch {
	case limit <= 0:
		if count > 0 {
			return StatusOver
		}
		return StatusNormal
	case count > limit:
		return StatusOver
	case count == limit:
		return StatusAt
	}

	share := decimal.NewFromInt(int64(count)).Div(decimal.NewFromInt(int64(limit)))
	if share.GreaterThanOrEqual(nearRatio) {
		return StatusNear
	}
	return StatusNormal
}

// IsWarning reports whether the status should be surfaced to the operator.
func (s Status) IsWarning() bool { return s != StatusNormal && s != "" }

// =============================================================================
// DISPLAY METADATA
// =============================================================================

// Display is how presentation layers render a status.
type Display struct {
	Color    string `json:"color"`
	Emphasis bool   `json:"emphasis"`
	Label    string `json:"label,omitempty"`
}

var displays = map[Status]Display{
	StatusNormal: {Color: "green"},
	StatusNear:   {Color: "amber"},
	StatusAt:     {Color: "red", Emphasis: true, Label: "FULL"},
	StatusOver:   {Color: "crimson", Emphasis: true},
}

// Display returns rendering metadata. Unknown statuses render as normal.
func (s Status) Display() Display {
	if d, ok := displays[s]; ok {
		return d
	}
	return displays[StatusNormal]
}
