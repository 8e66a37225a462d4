package phase_test

import (
	"context"
	"time"

	"github.com/marcus-qen/turnengine/internal/phase"
	"github.com/marcus-qen/turnengine/internal/phasetype"
	"github.com/marcus-qen/turnengine/internal/turnconfig"

	"testing"
)

type stubExecutor struct {
	precondErr error
	result     phase.Result
	execErr    error
	sleep      time.Duration
}

func (s stubExecutor) ValidatePreconditions(context.Context, *phase.ExecutionContext) error {
	return s.precondErr
}

func (s stubExecutor) Execute(ctx context.Context, _ *phase.ExecutionContext) (phase.Result, error) {
	if s.sleep > 0 {
		select {
		case <-time.After(s.sleep):
		case <-ctx.Done():
			return phase.Result{}, ctx.Err()
		}
	}
	return s.result, s.execErr
}

func newExecContext(timeout time.Duration) *phase.ExecutionContext {
	cfg := turnconfig.NewBuilder([]string{"a", "b"}).WithPhaseTimeout(phasetype.WorldUpdate, timeout).Build()
	return phase.NewExecutionContext("turn-1", phasetype.WorldUpdate, cfg, []string{"a", "b"}, nil)
}

func TestRunSuccess(t *testing.T) {
	execCtx := newExecContext(time.Second)
	executor := stubExecutor{result: phase.Result{Success: true, EventsProcessed: 2}}
	result := phase.Run(context.Background(), execCtx, executor)
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Metadata["turn_id"] != "turn-1" {
		t.Fatalf("expected enrichment to set turn_id, got %+v", result.Metadata)
	}
}

func TestRunTimeout(t *testing.T) {
	execCtx := newExecContext(10 * time.Millisecond)
	executor := stubExecutor{sleep: 200 * time.Millisecond, result: phase.Result{Success: true}}
	result := phase.Run(context.Background(), execCtx, executor)
	if result.Success {
		t.Fatal("expected timeout to produce a failure result")
	}
	if result.ErrorDetails == nil || result.ErrorDetails.ErrorKind != "timeout" {
		t.Fatalf("expected errorKind=timeout, got %+v", result.ErrorDetails)
	}
}

func TestRunPreconditionFailure(t *testing.T) {
	execCtx := newExecContext(time.Second)
	executor := stubExecutor{precondErr: context.DeadlineExceeded}
	result := phase.Run(context.Background(), execCtx, executor)
	if result.Success {
		t.Fatal("expected precondition failure")
	}
	if result.ErrorDetails.ErrorKind != "precondition" {
		t.Fatalf("expected errorKind=precondition, got %+v", result.ErrorDetails)
	}
}
