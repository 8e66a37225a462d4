// Package turn implements the Turn aggregate: the sole stateful entity in
// the engine, owning turn lifecycle state, per-phase status, the saga's
// compensation bookkeeping, rollback snapshots, metrics and the audit/event
// trail.
package turn

import (
	"fmt"
	"time"

	"github.com/marcus-qen/turnengine/internal/compensation"
	"github.com/marcus-qen/turnengine/internal/money"
	"github.com/marcus-qen/turnengine/internal/phase"
	"github.com/marcus-qen/turnengine/internal/phasetype"
	"github.com/marcus-qen/turnengine/internal/turnconfig"
)

// State is the turn aggregate's lifecycle state.
type State string

const (
	StateCreated      State = "CREATED"
	StatePlanning     State = "PLANNING"
	StateExecuting    State = "EXECUTING"
	StateCompensating State = "COMPENSATING"
	StateCompleted    State = "COMPLETED"
	StateFailed       State = "FAILED"
	StateCancelled    State = "CANCELLED"
)

var allowedStateTransitions = map[State]map[State]bool{
	StateCreated:      {StatePlanning: true, StateCancelled: true},
	StatePlanning:     {StateExecuting: true, StateFailed: true, StateCancelled: true},
	StateExecuting:    {StateCompleted: true, StateCompensating: true, StateFailed: true},
	StateCompensating: {StateCompleted: true, StateFailed: true},
}

func (s State) terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// SagaState tracks the aggregate's compensation bookkeeping.
type SagaState struct {
	CompensationRequired bool
	CommittedPhases      []phasetype.Type
	PendingCompensations []string // action ids
}

// ErrorRecord is one entry in the turn's error history.
type ErrorRecord struct {
	Phase     phasetype.Type
	Message   string
	Details   map[string]any
	Timestamp time.Time
}

// PipelineResult is the aggregate outcome of one turn's phase pipeline.
type PipelineResult struct {
	PhaseResults         map[phasetype.Type]phase.Result
	Success              bool
	TotalExecutionTime   time.Duration
	SagaActionsTaken     []compensation.Action
	CompletionPercentage float64
	ExecutiveSummary     string
}

// Turn is the mutable aggregate. It is not goroutine-safe; the pipeline
// orchestrator serializes all mutation per turn id.
type Turn struct {
	TurnID         string
	Configuration  turnconfig.TurnConfiguration
	State          State
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	UpdatedAt      time.Time
	PhaseStatuses  map[phasetype.Type]phase.Status
	PhaseResults   map[phasetype.Type]phase.Result
	CurrentPhase   *phasetype.Type
	Saga           SagaState
	RollbackSnaps  map[phasetype.Type]map[string]any
	PipelineResult *PipelineResult
	Events         []DomainEvent
	PerfMetrics    turnMetrics
	ErrorHistory   []ErrorRecord
	AuditTrail     []AuditEntry
	Version        int64

	compensationActions map[string]compensation.Action
	actionOrder         []string
}

type turnMetrics struct {
	EventsProcessed int
	EventsGenerated int
	AIOperations    int
	TotalAICost     money.Micros
}

// Create constructs a fresh CREATED turn with every phase PENDING.
func Create(turnID string, cfg turnconfig.TurnConfiguration, participants []string) *Turn {
	statuses := make(map[phasetype.Type]phase.Status, len(phasetype.All))
	for _, p := range phasetype.All {
		statuses[p] = phase.NewPending(p)
	}
	t := &Turn{
		TurnID:              turnID,
		Configuration:       cfg,
		State:               StateCreated,
		CreatedAt:           time.Now().UTC(),
		UpdatedAt:           time.Now().UTC(),
		PhaseStatuses:       statuses,
		PhaseResults:        map[phasetype.Type]phase.Result{},
		RollbackSnaps:       map[phasetype.Type]map[string]any{},
		compensationActions: map[string]compensation.Action{},
	}
	t.emit(EventTurnCreated, map[string]any{"participants": participants})
	return t
}

func (t *Turn) transitionState(to State) error {
	if t.State.terminal() {
		return fmt.Errorf("turn %s: state %s is terminal, cannot transition to %s", t.TurnID, t.State, to)
	}
	if !allowedStateTransitions[t.State][to] {
		return fmt.Errorf("turn %s: invalid state transition %s -> %s", t.TurnID, t.State, to)
	}
	t.State = to
	return nil
}

// StartPlanning transitions CREATED -> PLANNING.
func (t *Turn) StartPlanning() error {
	if err := t.transitionState(StatePlanning); err != nil {
		return err
	}
	t.emit(EventPlanningStarted, nil)
	return nil
}

// StartExecution transitions PLANNING -> EXECUTING and begins the first
// phase.
func (t *Turn) StartExecution() error {
	if err := t.transitionState(StateExecuting); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.StartedAt = &now
	t.emit(EventExecutionStarted, nil)

	first := phasetype.All[0]
	if err := t.startPhase(first); err != nil {
		return err
	}
	return nil
}

func (t *Turn) startPhase(p phasetype.Type) error {
	status := t.PhaseStatuses[p]
	started, err := status.Start(time.Now().UTC())
	if err != nil {
		return err
	}
	t.PhaseStatuses[p] = started
	t.CurrentPhase = &p
	t.emit(EventPhaseStarted, map[string]any{"phase": p.String()})
	return nil
}

// CompletePhase transitions a RUNNING phase to COMPLETED, folds its result
// into aggregate metrics, and either advances to the next phase or, if this
// was the last phase, completes the turn.
func (t *Turn) CompletePhase(p phasetype.Type, result phase.Result) error {
	status, ok := t.PhaseStatuses[p]
	if !ok || status.State != phase.StateRunning {
		return fmt.Errorf("turn %s: cannot complete phase %s not in RUNNING state", t.TurnID, p)
	}
	completed, err := status.Complete(time.Now().UTC(), result.EventsProcessed)
	if err != nil {
		return err
	}
	t.PhaseStatuses[p] = completed
	t.PhaseResults[p] = result
	if result.RollbackData != nil {
		t.RollbackSnaps[p] = result.RollbackData
	}

	t.Saga.CommittedPhases = append(t.Saga.CommittedPhases, p)
	t.PerfMetrics.EventsProcessed += result.EventsProcessed
	t.PerfMetrics.EventsGenerated += len(result.EventsGenerated)
	if result.AIUsage != nil {
		t.PerfMetrics.AIOperations += len(result.AIUsage.Operations)
		t.PerfMetrics.TotalAICost = t.PerfMetrics.TotalAICost.Add(result.AIUsage.TotalCost)
	}

	t.emit(EventPhaseCompleted, map[string]any{
		"phase":            p.String(),
		"events_processed": result.EventsProcessed,
	})

	if t.allPhasesCompleted() {
		return t.completeTurn()
	}

	next, hasNext := p.Next()
	if !hasNext {
		return t.completeTurn()
	}
	t.CurrentPhase = nil
	return t.startPhase(next)
}

func (t *Turn) allPhasesCompleted() bool {
	for _, p := range phasetype.All {
		if t.PhaseStatuses[p].State != phase.StateCompleted {
			return false
		}
	}
	return true
}

func (t *Turn) completeTurn() error {
	if err := t.transitionState(StateCompleted); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.CompletedAt = &now
	t.CurrentPhase = nil
	t.PipelineResult = t.buildPipelineResult(true)
	t.emit(EventTurnCompleted, map[string]any{"completion_percentage": t.CompletionPercentage()})
	return nil
}

// FailPhase transitions a RUNNING phase to FAILED, records the failure, and
// either schedules compensation (moving the turn to COMPENSATING) or fails
// the turn outright.
func (t *Turn) FailPhase(p phasetype.Type, errorMessage string, errorDetails map[string]any, canCompensate bool) error {
	status, ok := t.PhaseStatuses[p]
	if !ok || status.State != phase.StateRunning {
		return fmt.Errorf("turn %s: cannot fail phase %s not in RUNNING state", t.TurnID, p)
	}
	failed, err := status.Fail(time.Now().UTC(), errorMessage)
	if err != nil {
		return err
	}
	t.PhaseStatuses[p] = failed
	t.PhaseResults[p] = phase.Result{
		Success: false,
		ErrorDetails: &phase.ErrorDetails{
			ErrorMessage: errorMessage,
			Extra:        errorDetails,
		},
	}
	t.ErrorHistory = append(t.ErrorHistory, ErrorRecord{
		Phase: p, Message: errorMessage, Details: errorDetails, Timestamp: time.Now().UTC(),
	})
	t.emit(EventPhaseFailed, map[string]any{"phase": p.String(), "error": errorMessage})

	if canCompensate && t.Configuration.RollbackEnabled() {
		if err := t.transitionState(StateCompensating); err != nil {
			return err
		}
		t.Saga.CompensationRequired = true
		t.CurrentPhase = nil
		t.emit(EventCompensationInitiated, map[string]any{"failed_phase": p.String()})
		return nil
	}

	return t.failTurn()
}

func (t *Turn) failTurn() error {
	if err := t.transitionState(StateFailed); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.CompletedAt = &now
	t.CurrentPhase = nil
	t.PipelineResult = t.buildPipelineResult(false)
	t.emit(EventTurnFailed, map[string]any{"completion_percentage": t.CompletionPercentage()})
	return nil
}

// AddCompensationAction registers a planned compensation action (must be
// called while the turn is COMPENSATING).
func (t *Turn) AddCompensationAction(action compensation.Action) error {
	if t.State != StateCompensating {
		return fmt.Errorf("turn %s: cannot add compensation action while in state %s", t.TurnID, t.State)
	}
	t.compensationActions[action.ActionID] = action
	t.actionOrder = append(t.actionOrder, action.ActionID)
	t.Saga.PendingCompensations = append(t.Saga.PendingCompensations, action.ActionID)
	return nil
}

// CompleteCompensationAction marks a planned action completed and, if it was
// the last pending one, resolves the turn's terminal state. The stored action
// is moved through executing if the executor never reported the start — the
// aggregate records outcomes; the executing state lives with the saga worker.
func (t *Turn) CompleteCompensationAction(actionID string, results map[string]any, actualCost money.Micros) error {
	action, ok := t.compensationActions[actionID]
	if !ok {
		return fmt.Errorf("turn %s: unknown compensation action %s", t.TurnID, actionID)
	}
	if action.Status == compensation.StatusPending {
		started, err := action.StartExecuting("saga-coordinator")
		if err != nil {
			return err
		}
		action = started
	}
	completed, err := action.Complete(results, actualCost)
	if err != nil {
		return err
	}
	t.compensationActions[actionID] = completed
	t.removePending(actionID)
	t.emit(EventCompensationActionCompleted, map[string]any{
		"action_id":         actionID,
		"compensation_type": string(completed.CompensationType),
		"remaining":         len(t.Saga.PendingCompensations),
	})
	return t.maybeResolveCompensation()
}

// FailCompensationAction marks a planned action permanently failed.
func (t *Turn) FailCompensationAction(actionID string, errorDetails map[string]any) error {
	action, ok := t.compensationActions[actionID]
	if !ok {
		return fmt.Errorf("turn %s: unknown compensation action %s", t.TurnID, actionID)
	}
	failed, err := action.Fail(errorDetails)
	if err != nil {
		return err
	}
	t.compensationActions[actionID] = failed
	t.removePending(actionID)
	t.emit(EventCompensationActionFailed, map[string]any{
		"action_id":         actionID,
		"compensation_type": string(failed.CompensationType),
		"remaining":         len(t.Saga.PendingCompensations),
	})
	return t.maybeResolveCompensation()
}

func (t *Turn) removePending(actionID string) {
	filtered := t.Saga.PendingCompensations[:0]
	for _, id := range t.Saga.PendingCompensations {
		if id != actionID {
			filtered = append(filtered, id)
		}
	}
	t.Saga.PendingCompensations = filtered
}

// maybeResolveCompensation finalizes the turn once every planned action has
// terminated: when pendingCompensations drains, the turn moves COMPENSATING
// -> COMPLETED with a compensated pipeline result, unless a destructive
// action failed terminally, in which case the turn fails.
func (t *Turn) maybeResolveCompensation() error {
	if t.State != StateCompensating || len(t.Saga.PendingCompensations) > 0 {
		return nil
	}

	anyDestructiveFailed := false
	for _, id := range t.actionOrder {
		action := t.compensationActions[id]
		if action.Status == compensation.StatusFailed && action.CompensationType.Destructive() {
			anyDestructiveFailed = true
		}
	}

	t.emit(EventTurnCompensationCompleted, map[string]any{
		"actions_taken":          len(t.actionOrder),
		"manual_review_required": anyDestructiveFailed,
	})

	if anyDestructiveFailed {
		return t.failTurn()
	}
	if err := t.transitionState(StateCompleted); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.CompletedAt = &now
	t.PipelineResult = t.buildPipelineResult(false)
	t.emit(EventTurnCompleted, map[string]any{"completion_percentage": t.CompletionPercentage(), "compensated": true})
	return nil
}

func (t *Turn) buildPipelineResult(allSucceeded bool) *PipelineResult {
	results := make(map[phasetype.Type]phase.Result, len(t.PhaseResults))
	for k, v := range t.PhaseResults {
		results[k] = v
	}
	return &PipelineResult{
		PhaseResults:         results,
		Success:              allSucceeded,
		TotalExecutionTime:   t.ExecutionTime(),
		SagaActionsTaken:     t.CompensationActions(),
		CompletionPercentage: t.CompletionPercentage(),
		ExecutiveSummary:     t.summarize(allSucceeded),
	}
}

func (t *Turn) summarize(allSucceeded bool) string {
	if allSucceeded {
		return fmt.Sprintf("turn %s completed all %d phases", t.TurnID, len(phasetype.All))
	}
	return fmt.Sprintf("turn %s did not complete: %d phase(s) failed, %d compensation action(s) taken",
		t.TurnID, len(t.FailedPhases()), len(t.actionOrder))
}

// --- Queries ---

// CompensationActions returns a stable-ordered snapshot of every planned
// compensation action.
func (t *Turn) CompensationActions() []compensation.Action {
	out := make([]compensation.Action, 0, len(t.actionOrder))
	for _, id := range t.actionOrder {
		out = append(out, t.compensationActions[id])
	}
	return out
}

func (t *Turn) CompletedPhases() []phasetype.Type {
	var out []phasetype.Type
	for _, p := range phasetype.All {
		if t.PhaseStatuses[p].State == phase.StateCompleted {
			out = append(out, p)
		}
	}
	return out
}

func (t *Turn) FailedPhases() []phasetype.Type {
	var out []phasetype.Type
	for _, p := range phasetype.All {
		if t.PhaseStatuses[p].State == phase.StateFailed {
			out = append(out, p)
		}
	}
	return out
}

func (t *Turn) PendingCompensations() []compensation.Action {
	var out []compensation.Action
	for _, id := range t.Saga.PendingCompensations {
		out = append(out, t.compensationActions[id])
	}
	return out
}

func (t *Turn) ExecutionTime() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if t.CompletedAt != nil {
		end = *t.CompletedAt
	}
	return end.Sub(*t.StartedAt)
}

// IsOverdue reports whether an in-flight turn has exceeded its configured
// max execution time. The turn-level deadline is informational, never a
// hard kill switch; this is the only place it is consulted.
func (t *Turn) IsOverdue() bool {
	if t.StartedAt == nil || t.CompletedAt != nil {
		return false
	}
	return t.ExecutionTime() > t.Configuration.MaxExecutionTime()
}

func (t *Turn) CompletionPercentage() float64 {
	total := len(phasetype.All)
	if total == 0 {
		return 0
	}
	return 100 * float64(len(t.CompletedPhases())) / float64(total)
}

// PerfTotalAICostDollars is the aggregate AI spend, downcast for metric
// exposition.
func (t *Turn) PerfTotalAICostDollars() float64 {
	return t.PerfMetrics.TotalAICost.Dollars()
}

// PerformanceSummary returns a flattened view of the aggregate's running
// metrics, suitable for the pipeline orchestrator's metrics export.
func (t *Turn) PerformanceSummary() map[string]any {
	return map[string]any{
		"events_processed": t.PerfMetrics.EventsProcessed,
		"events_generated": t.PerfMetrics.EventsGenerated,
		"ai_operations":    t.PerfMetrics.AIOperations,
		"total_ai_cost":    t.PerfMetrics.TotalAICost.Dollars(),
	}
}
