/*
gate.go - Two-phase confirmation for changes that raise capacity warnings

PURPOSE:
  A change whose projection produced warnings is paused once so the operator
  can read them. Re-submitting the same proposal commits it. Changing any
  part of the proposal (date, recurrence, end date, limit, target) starts
  over.

STATE MACHINE:
  Idle --submit, no warnings--------> Commit
  Idle --submit, warnings-----------> Warned   (pause)
  Warned --submit, same key---------> Commit
  Warned --submit, different key---> Idle, then re-evaluated

  The "proposal" is identified by EditKey. The HTTP layer is stateless: the
  paused response carries the key and the client echoes it back as its
  acknowledgment. An in-process editor can hold a Gate for the session.

SEE ALSO:
  - planner.go: Produces the EditKey of a plan
  - service.go: Submit consults the gate before committing
*/
package scheduling

import (
	"fmt"
	"strconv"
	"strings"
)

// EditKey identifies a proposal. Two submissions with equal keys are the
// same proposal for confirmation purposes.
type EditKey struct {
	Target     string // occurrence id, or "client:<id>" for creates
	Scope      Scope
	Date       string
	Recurrence string
	EndDate    string
	Limit      int // occurrence cap of the rule, 0 when uncapped
}

const keySeparator = "|"

var (
	keyEscaper   = strings.NewReplacer("%", "%25", keySeparator, "%7C")
	keyUnescaper = strings.NewReplacer("%7C", keySeparator, "%25", "%")
)

// String encodes the key as separator-joined fields. Separators inside a
// field are percent-escaped so ParseEditKey(k.String()) == k for any k.
func (k EditKey) String() string {
	limit := ""
	if k.Limit != 0 {
		limit = strconv.Itoa(k.Limit)
	}
	fields := []string{k.Target, string(k.Scope), k.Date, k.Recurrence, k.EndDate, limit}
	for i, f := range fields {
		fields[i] = keyEscaper.Replace(f)
	}
	return strings.Join(fields, keySeparator)
}

// ParseEditKey is the inverse of EditKey.String.
func ParseEditKey(s string) (EditKey, error) {
	parts := strings.Split(s, keySeparator)
	if len(parts) != 6 {
		return EditKey{}, fmt.Errorf("%w: malformed key %q", ErrStaleWarningState, s)
	}
	for i, p := range parts {
		parts[i] = keyUnescaper.Replace(p)
	}
	limit := 0
	if parts[5] != "" {
		n, err := strconv.Atoi(parts[5])
		if err != nil {
			return EditKey{}, fmt.Errorf("%w: malformed limit in key %q", ErrStaleWarningState, s)
		}
		limit = n
	}
	return EditKey{
		Target:     parts[0],
		Scope:      Scope(parts[1]),
		Date:       parts[2],
		Recurrence: parts[3],
		EndDate:    parts[4],
		Limit:      limit,
	}, nil
}

// ShouldPause is the gate's transition function. It returns whether to pause
// and the acknowledged flag to carry into the next submission.
//
//	hasWarning=false                    -> (false, false)
//	hasWarning=true, prior=false        -> (true,  true)
//	hasWarning=true, prior=true         -> (false, true)
func ShouldPause(hasWarning, priorAcknowledged bool) (pause, acknowledged bool) {
	if !hasWarning {
		return false, false
	}
	if !priorAcknowledged {
		return true, true
	}
	return false, true
}

// Gate holds the acknowledgment state of one edit session. It is not safe
// for concurrent use.
type Gate struct {
	key          EditKey
	acknowledged bool
}

// NewGate starts a session for key with nothing acknowledged.
func NewGate(key EditKey) *Gate {
	return &Gate{key: key}
}

func (g *Gate) Key() EditKey { return g.key }
func (g *Gate) Acknowledged() bool { return g.acknowledged }

// Reset moves the session to a new proposal and clears the acknowledgment.
func (g *Gate) Reset(key EditKey) {
	g.key = key
	g.acknowledged = false
}

// Check evaluates a submission of key. Any change of key resets first.
func (g *Gate) Check(key EditKey, hasWarning bool) (pause bool) {
	if key != g.key {
		g.Reset(key)
	}
	pause, g.acknowledged = ShouldPause(hasWarning, g.acknowledged)
	return pause
}

// Resume records an acknowledgment received from outside the session. A key
// that does not match the current proposal is treated as "not yet warned".
func (g *Gate) Resume(ack EditKey) error {
	if ack != g.key {
		g.acknowledged = false
		return &StaleWarningError{Acknowledged: ack, Current: g.key}
	}
	g.acknowledged = true
	return nil
}
