package calendar

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRule is returned when a recurring rule cannot be expanded to a
	// finite schedule: no end date and no occurrence cap.
	ErrInvalidRule = errors.New("invalid recurrence rule")
)

// RuleError carries the offending rule kind.
type RuleError struct {
	Kind   Kind
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("invalid recurrence rule %q: %s", e.Kind, e.Reason)
}

func (e *RuleError) Unwrap() error { return ErrInvalidRule }

// ParseError is returned by Day.UnmarshalText for unreadable input.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %q as a calendar day", e.Input)
}
