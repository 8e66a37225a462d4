package compensation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marcus-qen/turnengine/internal/money"
)

// Status is a CompensationAction's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// nonRetryableErrors are error classes the saga coordinator will not retry.
var nonRetryableErrors = map[string]struct{}{
	"permission_denied":     {},
	"authentication_failed": {},
	"data_corruption":       {},
}

// IsRetryable reports whether an error class may be retried.
func IsRetryable(errorType string) bool {
	_, nonRetryable := nonRetryableErrors[errorType]
	return !nonRetryable
}

// Action is an immutable-by-convention compensation action record: every
// lifecycle method returns a new value rather than mutating the receiver.
type Action struct {
	ActionID               string
	CompensationType       Type
	TargetPhase            string
	TurnID                 string
	TriggeredAt            time.Time
	Status                 Status
	CompletedAt            *time.Time
	ExecutionParameters    map[string]any
	ExecutionResults       map[string]any
	RollbackData           map[string]any
	AffectedEntities       []string
	EstimatedCost          *money.Micros
	ActualCost             *money.Micros
	Priority               int
	RequiresManualApproval bool
	ApprovalGrantedAt      *time.Time
	ApprovedBy             string
	ExecutionTimeoutMs     int64
	RetryCount             int
	MaxRetries             int
	ErrorDetails           map[string]any
	Metadata               map[string]any
}

// New constructs a pending compensation action. Priority defaults from the
// type's catalog severity; destructive types default to requiring manual
// approval.
func New(turnID string, targetPhase string, compType Type, rollbackData map[string]any, affectedEntities []string) Action {
	cost := compType.DefaultCost()
	return Action{
		ActionID:               uuid.NewString(),
		CompensationType:       compType,
		TargetPhase:            targetPhase,
		TurnID:                 turnID,
		TriggeredAt:            time.Now().UTC(),
		Status:                 StatusPending,
		ExecutionParameters:    map[string]any{},
		ExecutionResults:       map[string]any{},
		RollbackData:           cloneMap(rollbackData),
		AffectedEntities:       append([]string(nil), affectedEntities...),
		EstimatedCost:          &cost,
		Priority:               PriorityForSeverity(compType.Severity()),
		RequiresManualApproval: compType.Destructive(),
		ExecutionTimeoutMs:     compType.DefaultTimeout().Milliseconds(),
		MaxRetries:             1,
		Metadata:               map[string]any{},
	}
}

// WithPriority overrides the computed priority (clamped to [1,10]), used by
// the saga coordinator's partial-progress/critical-severity bumps.
func (a Action) WithPriority(p int) Action {
	if p < 1 {
		p = 1
	}
	if p > 10 {
		p = 10
	}
	a.Priority = p
	return a
}

// WithExecutionOrder stashes an order index into metadata for reporting.
func (a Action) WithExecutionOrder(order int) Action {
	a.Metadata = cloneMap(a.Metadata)
	a.Metadata["execution_order"] = order
	return a
}

// StartExecuting transitions pending -> executing, recording the executor.
func (a Action) StartExecuting(executor string) (Action, error) {
	if a.Status != StatusPending {
		return Action{}, fmt.Errorf("cannot start executing action in status %q", a.Status)
	}
	a.Status = StatusExecuting
	a.Metadata = cloneMap(a.Metadata)
	a.Metadata["executor"] = executor
	return a, nil
}

// Complete transitions executing -> completed, recording results and cost.
func (a Action) Complete(results map[string]any, actualCost money.Micros) (Action, error) {
	if a.Status != StatusExecuting {
		return Action{}, fmt.Errorf("cannot complete action in status %q", a.Status)
	}
	now := time.Now().UTC()
	a.Status = StatusCompleted
	a.CompletedAt = &now
	a.ExecutionResults = cloneMap(results)
	a.ActualCost = &actualCost
	return a, nil
}

// Retry transitions executing -> pending with an incremented retry count, or
// returns ok=false if retries are exhausted or the error is non-retryable.
func (a Action) Retry(errorType string) (Action, bool) {
	if a.RetryCount >= a.MaxRetries || !IsRetryable(errorType) {
		return a, false
	}
	a.Status = StatusPending
	a.RetryCount++
	return a, true
}

// Fail transitions executing (or still pending) -> failed terminally.
func (a Action) Fail(errorDetails map[string]any) (Action, error) {
	if a.Status != StatusExecuting && a.Status != StatusPending {
		return Action{}, fmt.Errorf("cannot fail action in status %q", a.Status)
	}
	now := time.Now().UTC()
	a.Status = StatusFailed
	a.CompletedAt = &now
	a.ErrorDetails = cloneMap(errorDetails)
	return a, nil
}

// Skip marks a planned action as deliberately not executed (e.g. superseded
// by an earlier destructive failure).
func (a Action) Skip(reason string) Action {
	now := time.Now().UTC()
	a.Status = StatusSkipped
	a.CompletedAt = &now
	a.Metadata = cloneMap(a.Metadata)
	a.Metadata["skip_reason"] = reason
	return a
}

// Approve records manual approval for a destructive action.
func (a Action) Approve(approvedBy string) Action {
	now := time.Now().UTC()
	a.ApprovalGrantedAt = &now
	a.ApprovedBy = approvedBy
	return a
}

// Terminal reports whether the action has reached a final state.
func (a Action) Terminal() bool {
	switch a.Status {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
