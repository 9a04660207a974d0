/*
recurrence.go - Expands a recurrence rule into delivery dates

PURPOSE:
  A delivery series is stored as one record per occurrence. Before anything
  is written the rule is expanded here into the ordered list of days.

RULE KINDS:
  None          single delivery on Start
  Weekly        Start, Start+7, ... through End
  TwiceMonthly  two weekday slots per month (see slots.go)
  Monthly       same day-of-month; clamps to the last day of short months
  Custom        caller-supplied days, sorted and de-duplicated

BOUNDS:
  End is inclusive. A recurring rule with no End must carry a Limit
  (occurrence cap), otherwise ErrInvalidRule. Start after End is an empty
  schedule, not an error: the caller shows a validation message.

PURITY:
  The expander never looks at clients or occupancy. Membership clamping is
  the planner's job (scheduling/planner.go).

SEE ALSO:
  - slots.go: TwiceMonthly slot selection
  - cache.go: Optional memoization
*/
package calendar

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// =============================================================================
// RULE
// =============================================================================

// Kind is the recurrence kind of a series.
type Kind string

const (
	None         Kind = "none"
	Weekly       Kind = "weekly"
	TwiceMonthly Kind = "2x-monthly"
	Monthly      Kind = "monthly"
	Custom       Kind = "custom"
)

// ParseKind accepts the kind names used by the intake forms, case-insensitive.
// Empty input is None.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, true
	case "weekly":
		return Weekly, true
	case "2x-monthly", "twice-monthly", "twicemonthly":
		return TwiceMonthly, true
	case "monthly":
		return Monthly, true
	case "custom":
		return Custom, true
	default:
		return "", false
	}
}

// IsRecurring reports whether the kind produces more than one occurrence.
func (k Kind) IsRecurring() bool { return k != None && k != "" }

// Rule describes a delivery schedule.
type Rule struct {
	Kind  Kind
	Start Day
	End   Day   // inclusive; zero means open-ended
	Limit int   // occurrence cap, required for open-ended recurring rules
	Dates []Day // Custom only
}

// HasEnd reports whether the rule carries an end date. Custom rules never do.
func (r Rule) HasEnd() bool { return r.Kind != Custom && !r.End.IsZero() }

// Fingerprint identifies the rule for memoization.
func (r Rule) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%d", r.Kind, r.Start.Key(), r.End.Key(), r.Limit)
	if r.Kind == Custom {
		for _, d := range r.Dates {
			b.WriteByte('|')
			b.WriteString(d.Key())
		}
	}
	return b.String()
}

// =============================================================================
// EXPANDER
// =============================================================================

// Expander turns rules into ordered days. The zero value is usable.
type Expander struct {
	// Slots chooses the TwiceMonthly slots. Defaults to ParitySlots.
	Slots SlotRule

	// Cache memoizes expansions when non-nil.
	Cache *ExpansionCache
}

// NewExpander returns an expander with the default slot rule and no cache.
func NewExpander() *Expander {
	return &Expander{Slots: ParitySlots{}}
}

var defaultExpander = NewExpander()

// Expand uses an expander with default settings.
func Expand(rule Rule) ([]Day, error) { return defaultExpander.Expand(rule) }

// Expand returns the occurrence days of rule in ascending order. The result
// is a fresh slice the caller may modify.
func (e *Expander) Expand(rule Rule) ([]Day, error) {
	if e.Cache != nil {
		if days, ok := e.Cache.Get(rule.Fingerprint()); ok {
			return days, nil
		}
	}

	days, err := e.expand(rule)
	if err != nil {
		return nil, err
	}

	if e.Cache != nil {
		e.Cache.Set(rule.Fingerprint(), days)
	}
	return days, nil
}

func (e *Expander) expand(rule Rule) ([]Day, error) {
	switch rule.Kind {
	case Custom:
		return sortedUnique(rule.Dates), nil
	case None, "":
		if rule.Start.IsZero() || (rule.HasEnd() && rule.Start.After(rule.End)) {
			return []Day{}, nil
		}
		return []Day{rule.Start}, nil
	case Weekly, TwiceMonthly, Monthly:
		// handled below
	default:
		return nil, &RuleError{Kind: rule.Kind, Reason: "unknown recurrence kind"}
	}

	if rule.Start.IsZero() {
		return []Day{}, nil
	}
	if !rule.HasEnd() && rule.Limit <= 0 {
		return nil, &RuleError{Kind: rule.Kind, Reason: "recurring rule needs an end date"}
	}
	if rule.HasEnd() && rule.Start.After(rule.End) {
		return []Day{}, nil
	}

	opt := rrule.ROption{
		Dtstart:  rule.Start.Time(),
		Interval: 1,
		Count:    rule.Limit,
	}
	if rule.HasEnd() {
		// Occurrences sit at noon; an hour of slack keeps End inclusive.
		opt.Until = rule.End.Time().Add(time.Hour)
	}

	switch rule.Kind {
	case Weekly:
		opt.Freq = rrule.WEEKLY
	case Monthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday, opt.Bysetpos = monthDaySelector(rule.Start.DayOfMonth())
	case TwiceMonthly:
		opt.Freq = rrule.MONTHLY
		opt.Byweekday = toRRuleWeekdays(e.slotRule().Slots(rule.Start))
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, &RuleError{Kind: rule.Kind, Reason: err.Error()}
	}

	times := r.All()
	days := make([]Day, 0, len(times)+1)
	for _, t := range times {
		days = append(days, FromTime(t))
	}

	// The start day is always the first occurrence, even when it is not one
	// of the computed slots.
	if len(days) == 0 || !days[0].Equal(rule.Start) {
		days = append([]Day{rule.Start}, days...)
		if rule.Limit > 0 && len(days) > rule.Limit {
			days = days[:rule.Limit]
		}
	}
	return days, nil
}

func (e *Expander) slotRule() SlotRule {
	if e.Slots == nil {
		return ParitySlots{}
	}
	return e.Slots
}

// monthDaySelector picks "day d, or the last day of the month when d does not
// exist": the largest existing day among 28..d.
func monthDaySelector(d int) (bymonthday []int, bysetpos []int) {
	if d <= 28 {
		return []int{d}, nil
	}
	for day := 28; day <= d; day++ {
		bymonthday = append(bymonthday, day)
	}
	return bymonthday, []int{-1}
}

func sortedUnique(in []Day) []Day {
	out := make([]Day, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, d := range in {
		if d.IsZero() || seen[d.Key()] {
			continue
		}
		seen[d.Key()] = true
		out = append(out, d)
	}
	slices.SortFunc(out, Day.Compare)
	return out
}
