// Package orchestrator drives a generation run: it asks the external
// generator for candidate code, validates candidates through the worker,
// and routes failures to regeneration or layout fixing until a candidate
// passes or the retry budgets run out.
package orchestrator

import (
	"fmt"

	"github.com/lucasnoah/ordpilot/internal/stage"
)

// State is one node of the run state machine. The set is closed: the loop
// only ever observes these values, and Step rejects anything outside the
// transition table.
type State string

const (
	Generating   State = "generating"
	Validating   State = "validating"
	CircuitRetry State = "circuit_retry"
	SpacingFix   State = "spacing_fix"
	Pass         State = "pass"
	Exhausted    State = "exhausted"
)

// Terminal reports whether the machine has reached an outcome.
func (s State) Terminal() bool {
	return s == Pass || s == Exhausted
}

// EventKind names the inputs that drive the machine.
type EventKind string

const (
	EventGenerated      EventKind = "generated"
	EventGenerateFailed EventKind = "generate_failed"
	EventValidated      EventKind = "validated"
	EventRetry          EventKind = "retry"
	EventFixPlanned     EventKind = "fix_planned"
	EventFixInfeasible  EventKind = "fix_infeasible"
)

// Event is one input to Step. Validated events carry the failure code from
// the report, or an empty code when the report passed.
type Event struct {
	Kind EventKind
	Code stage.Code
}

// Machine tracks the retry budgets of one run. Generation attempts are
// bounded by MaxCircuit; layout-fix rounds on a single candidate are
// bounded by MaxSpacing. Crossing either bound lands in Exhausted.
type Machine struct {
	MaxCircuit int
	MaxSpacing int

	state           State
	circuitAttempts int
	spacingRounds   int
}

// NewMachine returns a machine ready to generate the first candidate. A
// zero MaxCircuit permits no attempts at all, so the machine starts out
// Exhausted.
func NewMachine(maxCircuit, maxSpacing int) *Machine {
	m := &Machine{MaxCircuit: maxCircuit, MaxSpacing: maxSpacing, state: Generating}
	if maxCircuit <= 0 {
		m.state = Exhausted
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// CircuitAttempts returns how many generation attempts have been consumed.
func (m *Machine) CircuitAttempts() int { return m.circuitAttempts }

// SpacingRounds returns how many fix rounds the current candidate has used.
func (m *Machine) SpacingRounds() int { return m.spacingRounds }

// Step advances the machine by one event and returns the new state. Any
// (state, event) pair outside the transition table is an error and leaves
// the machine untouched.
//
// The counters stay within their bounds structurally: Generating is only
// reachable while circuitAttempts < MaxCircuit, and SpacingFix only while
// spacingRounds < MaxSpacing, so the increments below can never exceed
// the budgets.
func (m *Machine) Step(ev Event) (State, error) {
	switch {
	case m.state == Generating && ev.Kind == EventGenerated:
		m.circuitAttempts++
		m.spacingRounds = 0 // fresh candidate, fresh fix budget
		m.state = Validating

	case m.state == Generating && ev.Kind == EventGenerateFailed:
		// A generator call that produced nothing usable still consumed
		// an attempt.
		m.circuitAttempts++
		if m.circuitAttempts < m.MaxCircuit {
			m.state = Generating
		} else {
			m.state = Exhausted
		}

	case m.state == Validating && ev.Kind == EventValidated:
		switch ev.Code.Class() {
		case stage.ClassNone:
			m.state = Pass
		case stage.ClassSpacing:
			if m.spacingRounds < m.MaxSpacing {
				m.state = SpacingFix
			} else {
				m.state = Exhausted
			}
		default:
			if m.circuitAttempts < m.MaxCircuit {
				m.state = CircuitRetry
			} else {
				m.state = Exhausted
			}
		}

	case m.state == CircuitRetry && ev.Kind == EventRetry:
		m.state = Generating

	case m.state == SpacingFix && ev.Kind == EventFixPlanned:
		m.spacingRounds++
		m.state = Validating

	case m.state == SpacingFix && ev.Kind == EventFixInfeasible:
		// No applicable edit means no amount of fix rounds will help.
		m.state = Exhausted

	default:
		return m.state, fmt.Errorf("invalid transition: %s in state %s", ev.Kind, m.state)
	}
	return m.state, nil
}
