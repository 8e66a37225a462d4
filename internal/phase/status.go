// Package phase implements the phase execution framework: the PhaseStatus
// and PhaseResult value types, the PhaseExecutionContext scratch space, the
// Executor contract, and the five phase implementations plus the wrapper
// that enforces timeouts, precondition/result validation and uniform error
// mapping around each of them.
package phase

import (
	"fmt"
	"time"

	"github.com/marcus-qen/turnengine/internal/phasetype"
)

// State is a PhaseStatus's lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateSkipped   State = "skipped"
)

var allowedTransitions = map[State]map[State]bool{
	StatePending: {StateRunning: true, StateSkipped: true},
	StateRunning: {StateCompleted: true, StateFailed: true},
}

// Status is the immutable, point-in-time status of one phase within a turn.
// Every mutating method returns a new value.
type Status struct {
	PhaseType       phasetype.Type
	State           State
	StartedAt       *time.Time
	CompletedAt     *time.Time
	DurationMs      *int64
	ProgressPct     float64
	EventsProcessed int
	ErrorMessage    string
	Metadata        map[string]any
}

// NewPending constructs the initial PENDING status for a phase.
func NewPending(phase phasetype.Type) Status {
	return Status{PhaseType: phase, State: StatePending, Metadata: map[string]any{}}
}

// CanTransitionTo reports whether s -> to is an allowed state transition.
func (s Status) CanTransitionTo(to State) bool {
	return allowedTransitions[s.State][to]
}

func (s Status) transition(to State) (Status, error) {
	if !s.CanTransitionTo(to) {
		return Status{}, fmt.Errorf("phase %s: invalid transition %s -> %s", s.PhaseType, s.State, to)
	}
	next := s
	next.State = to
	next.Metadata = cloneAnyMap(s.Metadata)
	return next, nil
}

// Start transitions PENDING -> RUNNING.
func (s Status) Start(at time.Time) (Status, error) {
	next, err := s.transition(StateRunning)
	if err != nil {
		return Status{}, err
	}
	next.StartedAt = &at
	return next, nil
}

// Complete transitions RUNNING -> COMPLETED.
func (s Status) Complete(at time.Time, eventsProcessed int) (Status, error) {
	next, err := s.transition(StateCompleted)
	if err != nil {
		return Status{}, err
	}
	next.CompletedAt = &at
	next.ProgressPct = 100
	next.EventsProcessed = eventsProcessed
	next.setDuration()
	return next, nil
}

// Fail transitions RUNNING -> FAILED.
func (s Status) Fail(at time.Time, message string) (Status, error) {
	next, err := s.transition(StateFailed)
	if err != nil {
		return Status{}, err
	}
	next.CompletedAt = &at
	next.ErrorMessage = message
	next.setDuration()
	return next, nil
}

// Skip transitions PENDING -> SKIPPED.
func (s Status) Skip(at time.Time, reason string) (Status, error) {
	next, err := s.transition(StateSkipped)
	if err != nil {
		return Status{}, err
	}
	next.CompletedAt = &at
	next.ErrorMessage = reason
	return next, nil
}

func (s *Status) setDuration() {
	if s.StartedAt == nil || s.CompletedAt == nil {
		return
	}
	ms := s.CompletedAt.Sub(*s.StartedAt).Milliseconds()
	s.DurationMs = &ms
}

// Terminal reports whether the status can no longer transition.
func (s Status) Terminal() bool {
	switch s.State {
	case StateCompleted, StateFailed, StateSkipped:
		return true
	default:
		return false
	}
}

func cloneAnyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
