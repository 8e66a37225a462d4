// Package saga implements the saga coordinator: planning and executing
// compensating actions in reverse phase order when a phase fails.
package saga

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/marcus-qen/turnengine/internal/collaborator"
	"github.com/marcus-qen/turnengine/internal/compensation"
	"github.com/marcus-qen/turnengine/internal/phasetype"
	"github.com/marcus-qen/turnengine/internal/turn"
	"go.uber.org/zap"
)

// FailureContext describes the triggering failure the coordinator plans
// against.
type FailureContext struct {
	FailedPhase     phasetype.Type
	Severity        compensation.Severity
	PartialProgress bool
}

// Handler executes one compensation type against the turn's rollback data,
// returning the result payload or an error. Handlers are looked up from a
// table keyed on compensation.Type.
type Handler func(ctx context.Context, turnID string, action compensation.Action) (map[string]any, error)

// retryPolicy is the exponential backoff applied between compensation
// action retries.
type retryPolicy struct {
	InitialBackoff time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration
}

var defaultRetryPolicy = retryPolicy{
	InitialBackoff: 200 * time.Millisecond,
	Multiplier:     2.0,
	MaxBackoff:     5 * time.Second,
}

func (p retryPolicy) nextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt-1)))
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		return p.MaxBackoff
	}
	return delay
}

// Coordinator plans and executes saga compensation for failed turns.
type Coordinator struct {
	logger   *zap.Logger
	handlers map[compensation.Type]Handler
	retry    retryPolicy
	sleep    func(time.Duration) // overridable in tests
}

// New builds a coordinator with the default log-only handler table. Callers
// override individual handlers with RegisterHandler;
// RegisterCollaboratorHandlers backs the destructive types with real
// collaborator operations.
func New(logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		logger:   logger,
		handlers: map[compensation.Type]Handler{},
		retry:    defaultRetryPolicy,
		sleep:    time.Sleep,
	}
	c.registerDefaultHandlers()
	return c
}

// RegisterHandler overrides the handler used for one compensation type.
func (c *Coordinator) RegisterHandler(t compensation.Type, h Handler) {
	c.handlers[t] = h
}

// Plan produces the ordered list of compensation actions for a failed turn:
// reverse-commit-order per-phase actions, then global actions, with
// priority and execution order assigned.
func (c *Coordinator) Plan(t *turn.Turn, failure FailureContext) []compensation.Action {
	var actions []compensation.Action

	committed := append([]phasetype.Type(nil), t.Saga.CommittedPhases...)
	for i := len(committed) - 1; i >= 0; i-- {
		phase := committed[i]
		rollbackData := t.RollbackSnaps[phase]
		for _, ct := range compensation.ForPhase(phase) {
			actions = append(actions, compensation.New(t.TurnID, phase.String(), ct, rollbackData, t.Configuration.Participants()))
		}
	}

	actions = append(actions, compensation.New(t.TurnID, failure.FailedPhase.String(), compensation.LogFailure, nil, nil))
	if len(t.Configuration.Participants()) > 0 {
		actions = append(actions, compensation.New(t.TurnID, failure.FailedPhase.String(), compensation.NotifyParticipants, nil, t.Configuration.Participants()))
	}
	if failure.FailedPhase.Critical() || failure.Severity == compensation.SeverityCritical {
		actions = append(actions, compensation.New(t.TurnID, failure.FailedPhase.String(), compensation.TriggerManualReview, nil, nil))
	}

	for i := range actions {
		priority := compensation.PriorityForSeverity(actions[i].CompensationType.Severity())
		if failure.PartialProgress {
			priority++
		}
		if actions[i].CompensationType.Severity() == compensation.SeverityCritical {
			priority += 2
		}
		actions[i] = actions[i].WithPriority(priority).WithExecutionOrder(i)
	}

	return actions
}

// Execute runs planned actions against t in order, parallelizing only the
// non-destructive ones; destructive actions run alone. It mutates t via
// AddCompensationAction/Complete.../Fail... as each action resolves.
func (c *Coordinator) Execute(ctx context.Context, t *turn.Turn, actions []compensation.Action) error {
	for _, action := range actions {
		if err := t.AddCompensationAction(action); err != nil {
			return fmt.Errorf("saga: failed to register planned action %s: %w", action.ActionID, err)
		}
	}

	i := 0
	for i < len(actions) {
		if !actions[i].CompensationType.Destructive() {
			batch := []compensation.Action{actions[i]}
			j := i + 1
			for j < len(actions) && !actions[j].CompensationType.Destructive() {
				batch = append(batch, actions[j])
				j++
			}
			c.executeBatch(ctx, t, batch)
			i = j
			continue
		}
		c.executeOne(ctx, t, actions[i])
		i++
	}
	return nil
}

// actionOutcome is the terminal result of running one action's handler,
// produced on a worker goroutine and applied to the aggregate by the
// coordinating goroutine. The *turn.Turn is never touched off its owning
// goroutine.
type actionOutcome struct {
	actionID string
	compType compensation.Type
	results  map[string]any
	err      error
	errType  string
	retries  int
}

func (c *Coordinator) executeBatch(ctx context.Context, t *turn.Turn, batch []compensation.Action) {
	outcomes := make(chan actionOutcome, len(batch))
	for _, action := range batch {
		go func(a compensation.Action) {
			outcomes <- c.runAction(ctx, t.TurnID, a)
		}(action)
	}
	for range batch {
		c.applyOutcome(t, <-outcomes)
	}
}

func (c *Coordinator) executeOne(ctx context.Context, t *turn.Turn, action compensation.Action) {
	c.applyOutcome(t, c.runAction(ctx, t.TurnID, action))
}

// runAction drives one action's handler to a terminal outcome, including the
// retry loop. It never mutates t.
func (c *Coordinator) runAction(ctx context.Context, turnID string, action compensation.Action) actionOutcome {
	started, err := action.StartExecuting("saga-coordinator")
	if err != nil {
		return actionOutcome{actionID: action.ActionID, compType: action.CompensationType, err: err, errType: "invalid_state"}
	}
	action = started

	handler, ok := c.handlers[action.CompensationType]
	if !ok {
		handler = c.logOnlyHandler
	}

	timeout := time.Duration(action.ExecutionTimeoutMs) * time.Millisecond
	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		results, err := handler(actionCtx, turnID, action)
		if err == nil {
			return actionOutcome{
				actionID: action.ActionID,
				compType: action.CompensationType,
				results:  results,
				retries:  action.RetryCount,
			}
		}

		errorType := classifyError(err)
		if retried, ok := action.Retry(errorType); ok {
			action = retried
			c.sleep(c.retry.nextDelay(action.RetryCount))
			if restarted, startErr := action.StartExecuting("saga-coordinator"); startErr == nil {
				action = restarted
			}
			continue
		}

		return actionOutcome{
			actionID: action.ActionID,
			compType: action.CompensationType,
			err:      err,
			errType:  errorType,
			retries:  action.RetryCount,
		}
	}
}

func (c *Coordinator) applyOutcome(t *turn.Turn, out actionOutcome) {
	if out.err == nil {
		cost := out.compType.DefaultCost()
		if err := t.CompleteCompensationAction(out.actionID, out.results, cost); err != nil {
			c.logger.Error("saga: failed to record completed action", zap.String("action_id", out.actionID), zap.Error(err))
		}
		return
	}
	if err := t.FailCompensationAction(out.actionID, map[string]any{
		"error_type":    out.errType,
		"error_message": out.err.Error(),
		"retry_count":   out.retries,
	}); err != nil {
		c.logger.Error("saga: failed to record failed action", zap.String("action_id", out.actionID), zap.Error(err))
	}
}

func (c *Coordinator) logOnlyHandler(_ context.Context, turnID string, action compensation.Action) (map[string]any, error) {
	c.logger.Info("saga: compensation action executed",
		zap.String("turn_id", turnID),
		zap.String("action_id", action.ActionID),
		zap.String("type", string(action.CompensationType)),
	)
	return map[string]any{"logged": true}, nil
}

// classifyError maps a handler error to the retry classification. A
// collaborator's own error type passes through, so a data_corruption or
// permission_denied response is recognized as non-retryable.
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	var callErr *collaborator.CallError
	if errors.As(err, &callErr) {
		return callErr.ErrorType
	}
	return "collaborator_error"
}

// registerDefaultHandlers wires the in-memory default behavior for every
// compensation type so the coordinator is usable without a caller supplying
// real collaborator-backed handlers.
func (c *Coordinator) registerDefaultHandlers() {
	c.handlers[compensation.LogFailure] = c.logOnlyHandler
	c.handlers[compensation.NotifyParticipants] = c.logOnlyHandler
	c.handlers[compensation.TriggerManualReview] = c.logOnlyHandler
	c.handlers[compensation.InvalidateSubjectiveBriefs] = c.logOnlyHandler
	c.handlers[compensation.RevertNarrativeChanges] = c.logOnlyHandler
	c.handlers[compensation.RollbackWorldState] = c.logOnlyHandler
	c.handlers[compensation.RemoveEvents] = c.logOnlyHandler
	c.handlers[compensation.CancelInteractions] = c.logOnlyHandler
}

// ConsistencyReport summarizes the post-execution state of a compensation
// run: rollback completeness, integrity violations, and whether a human
// needs to look.
type ConsistencyReport struct {
	RollbackCompleteness    float64
	DataIntegrityViolations int
	ManualReviewRequired    bool
}

// Validate computes the consistency report for a set of terminated actions.
func Validate(actions []compensation.Action) ConsistencyReport {
	if len(actions) == 0 {
		return ConsistencyReport{RollbackCompleteness: 1}
	}
	succeeded := 0
	violations := 0
	for _, a := range actions {
		if a.Status == compensation.StatusCompleted {
			succeeded++
		}
		if a.Status == compensation.StatusFailed && a.CompensationType.Destructive() {
			violations++
		}
	}
	completeness := float64(succeeded) / float64(len(actions))
	return ConsistencyReport{
		RollbackCompleteness:    completeness,
		DataIntegrityViolations: violations,
		ManualReviewRequired:    violations > 0 || completeness < 0.95,
	}
}
