/*
errors.go - Error taxonomy of the scheduler

ERROR CATEGORIES:
  1. Operator mistakes - surfaced so the operator can correct the input
     (calendar.ErrInvalidRule, ErrBeforeClientStart, ErrNothingToSchedule,
     ErrInvalidScope, ErrInvalidLimit, ErrInvalidRange)
  2. Protocol          - ErrStaleWarningState, handled internally as
     "not yet warned"
  3. Not found         - ErrOccurrenceNotFound, ErrClientNotFound
  4. Storage           - StorageError, wraps whatever the collaborator
     returned; errors.Is(err, ErrStorageFailure) is true

USAGE:
  if errors.Is(err, scheduling.ErrBeforeClientStart) {
      // show "date is before the client's start date"
  }
*/
package scheduling

import (
	"errors"
	"fmt"

	"github.com/mealroute/delivery-engine/calendar"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrBeforeClientStart is returned when the edited anchor precedes the
	// client's start date or clamping removes every occurrence.
	ErrBeforeClientStart = errors.New("schedule falls outside the client's membership window")

	// ErrStaleWarningState is returned when an acknowledgment names a
	// different proposal than the one being committed.
	ErrStaleWarningState = errors.New("confirmation does not match the current proposal")

	// ErrNothingToSchedule is returned when a rule expands to no days.
	ErrNothingToSchedule = errors.New("nothing to schedule")

	// ErrInvalidScope is returned for an unknown edit scope.
	ErrInvalidScope = errors.New("invalid edit scope")

	// ErrInvalidLimit is returned for negative or incomplete capacity limits.
	ErrInvalidLimit = errors.New("invalid capacity limit")

	// ErrInvalidRange is returned when a date range is reversed or too long.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrStorageFailure marks failures of the storage collaborator.
	ErrStorageFailure = errors.New("storage failure")

	ErrOccurrenceNotFound = errors.New("occurrence not found")
	ErrClientNotFound     = errors.New("client not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ClampError explains a BeforeClientStart rejection.
type ClampError struct {
	ClientID    string
	Anchor      calendar.Day
	ClientStart calendar.Day
	EndFilter   calendar.Day
}

func (e *ClampError) Error() string {
	if !e.ClientStart.IsZero() && e.Anchor.Before(e.ClientStart) {
		return fmt.Sprintf("date %s is before client %s start date %s", e.Anchor, e.ClientID, e.ClientStart)
	}
	return fmt.Sprintf("no delivery dates remain for client %s between %s and %s",
		e.ClientID, e.ClientStart, e.EndFilter)
}

func (e *ClampError) Unwrap() error { return ErrBeforeClientStart }

// StaleWarningError carries both keys of a mismatched acknowledgment.
type StaleWarningError struct {
	Acknowledged EditKey
	Current      EditKey
}

func (e *StaleWarningError) Error() string {
	return fmt.Sprintf("stale confirmation: acknowledged %s, current %s", e.Acknowledged, e.Current)
}

func (e *StaleWarningError) Unwrap() error { return ErrStaleWarningState }

// StorageError wraps a collaborator failure. Both ErrStorageFailure and the
// original error are reachable through errors.Is / errors.As.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorageFailure, e.Err} }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to operator input.
func IsClientError(err error) bool {
	return errors.Is(err, calendar.ErrInvalidRule) ||
		errors.Is(err, ErrBeforeClientStart) ||
		errors.Is(err, ErrNothingToSchedule) ||
		errors.Is(err, ErrInvalidScope) ||
		errors.Is(err, ErrInvalidLimit) ||
		errors.Is(err, ErrInvalidRange)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOccurrenceNotFound) ||
		errors.Is(err, ErrClientNotFound)
}
