package calendar

import (
	"time"

	"github.com/teambition/rrule-go"
)

// Slot is one monthly delivery slot: the Nth weekday of the month.
// Nth may be negative to count from the end (-1 is the last).
type Slot struct {
	Weekday time.Weekday
	Nth     int
}

// SlotRule chooses the monthly slots of a TwiceMonthly series from its start
// day. Different programs schedule "twice a month" differently, so the rule
// is pluggable.
type SlotRule interface {
	Slots(start Day) []Slot
}

// SlotRuleFunc adapts a function to SlotRule.
type SlotRuleFunc func(start Day) []Slot

func (f SlotRuleFunc) Slots(start Day) []Slot { return f(start) }

// ParitySlots keeps the start day's weekday and its week-of-month parity:
// a start in the 1st, 3rd or 5th week delivers on the 1st and 3rd weekday of
// every month, a start in the 2nd or 4th week on the 2nd and 4th.
type ParitySlots struct{}

func (ParitySlots) Slots(start Day) []Slot {
	first := 1
	if start.WeekOfMonth()%2 == 0 {
		first = 2
	}
	return []Slot{
		{Weekday: start.Weekday(), Nth: first},
		{Weekday: start.Weekday(), Nth: first + 2},
	}
}

var rruleWeekdays = [7]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

func toRRuleWeekdays(slots []Slot) []rrule.Weekday {
	out := make([]rrule.Weekday, 0, len(slots))
	for _, s := range slots {
		wd := rruleWeekdays[s.Weekday%7]
		out = append(out, wd.Nth(s.Nth))
	}
	return out
}
