package phase

import (
	"context"
	"fmt"

	"github.com/marcus-qen/turnengine/internal/errs"
)

// Executor is the one contract every phase implementation satisfies.
type Executor interface {
	// ValidatePreconditions returns an error (tagged errs.KindPrecondition)
	// if the phase cannot run at all given ctx's configuration/participants.
	ValidatePreconditions(ctx context.Context, execCtx *ExecutionContext) error
	// Execute runs the phase's domain logic and returns its result. It must
	// honor ctx's deadline; the framework does not forcibly cancel a
	// straggling executor, it only races the call.
	Execute(ctx context.Context, execCtx *ExecutionContext) (Result, error)
}

// Run wraps one Executor invocation with the full framework contract:
// precondition validation, a per-phase timeout race, result-shape
// validation, enrichment, and uniform error mapping. It never returns a Go
// error — every failure mode, exceptions included, becomes a Result with
// Success=false.
func Run(ctx context.Context, execCtx *ExecutionContext, executor Executor) Result {
	if err := executor.ValidatePreconditions(ctx, execCtx); err != nil {
		return failureResult(execCtx, "precondition", "", err.Error())
	}

	deadlineCtx, cancel := execCtx.Deadline(ctx)
	defer cancel()

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic in phase executor: %v", r)}
			}
		}()
		result, err := executor.Execute(deadlineCtx, execCtx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-deadlineCtx.Done():
		timeoutMs := execCtx.Configuration.PhaseTimeout(execCtx.PhaseType).Milliseconds()
		result := failureResult(execCtx, "timeout", "", fmt.Sprintf("phase exceeded its %dms timeout", timeoutMs))
		result.ErrorDetails.TimeoutMs = timeoutMs
		return result
	case out := <-done:
		if out.err != nil {
			kind := string(errs.KindOf(out.err))
			return failureResult(execCtx, kind, fmt.Sprintf("%T", out.err), out.err.Error())
		}
		return enrich(execCtx, out.result)
	}
}

func failureResult(execCtx *ExecutionContext, errorKind, errorType, message string) Result {
	return Result{
		Success: false,
		ErrorDetails: &ErrorDetails{
			ErrorKind:    errorKind,
			ErrorType:    errorType,
			ErrorMessage: message,
		},
		PerformanceMetrics: map[string]float64{"execution_time_ms": float64(execCtx.ExecutionTimeMs())},
		CrossContextCalls:  execCtx.CrossContextCalls(),
		RollbackData:       execCtx.RollbackSnapshots(),
		Metadata: map[string]any{
			"turn_id":           execCtx.TurnID,
			"phase_type":        execCtx.PhaseType.String(),
			"participant_count": len(execCtx.Participants),
		},
	}
}

// enrich attaches execution time, cross-context call log, AI usage, rollback
// data and metadata to a phase's raw result, and validates its shape.
func enrich(execCtx *ExecutionContext, result Result) Result {
	if result.PerformanceMetrics == nil {
		result.PerformanceMetrics = map[string]float64{}
	}
	result.PerformanceMetrics["execution_time_ms"] = float64(execCtx.ExecutionTimeMs())
	for k, v := range execCtx.PerformanceMetrics() {
		result.PerformanceMetrics[k] = v
	}
	result.CrossContextCalls = execCtx.CrossContextCalls()
	if result.AIUsage == nil {
		result.AIUsage = execCtx.AIUsage()
	}
	if result.RollbackData == nil {
		result.RollbackData = execCtx.RollbackSnapshots()
	}
	if result.Metadata == nil {
		result.Metadata = map[string]any{}
	}
	result.Metadata["turn_id"] = execCtx.TurnID
	result.Metadata["phase_type"] = execCtx.PhaseType.String()
	result.Metadata["participant_count"] = len(execCtx.Participants)

	if err := result.Validate(); err != nil {
		return failureResult(execCtx, string(errs.KindInternal), "result_validation_error", err.Error())
	}
	return result
}
