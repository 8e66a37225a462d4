package phase_test

import (
	"testing"
	"time"

	"github.com/marcus-qen/turnengine/internal/phase"
	"github.com/marcus-qen/turnengine/internal/phasetype"
)

func TestStatusTransitions(t *testing.T) {
	now := time.Now()
	s := phase.NewPending(phasetype.WorldUpdate)

	if !s.CanTransitionTo(phase.StateRunning) {
		t.Fatal("PENDING should allow RUNNING")
	}
	if s.CanTransitionTo(phase.StateCompleted) {
		t.Fatal("PENDING should not allow COMPLETED directly")
	}

	running, err := s.Start(now)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if running.State != phase.StateRunning {
		t.Fatalf("expected RUNNING, got %s", running.State)
	}

	completed, err := running.Complete(now.Add(time.Second), 3)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if completed.State != phase.StateCompleted || completed.ProgressPct != 100 {
		t.Fatalf("unexpected completed status: %+v", completed)
	}
	if completed.DurationMs == nil || *completed.DurationMs != 1000 {
		t.Fatalf("expected duration 1000ms, got %+v", completed.DurationMs)
	}

	if _, err := completed.Start(now); err == nil {
		t.Fatal("expected terminal state to reject further transitions")
	}
}

func TestStatusFailTransition(t *testing.T) {
	now := time.Now()
	s := phase.NewPending(phasetype.SubjectiveBrief)
	running, _ := s.Start(now)
	failed, err := running.Fail(now.Add(time.Millisecond), "boom")
	if err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	if failed.State != phase.StateFailed || failed.ErrorMessage != "boom" {
		t.Fatalf("unexpected failed status: %+v", failed)
	}
	if !failed.Terminal() {
		t.Fatal("FAILED should be terminal")
	}
}

func TestStatusSkipOnlyFromPending(t *testing.T) {
	now := time.Now()
	s := phase.NewPending(phasetype.NarrativeIntegration)
	skipped, err := s.Skip(now, "ai disabled")
	if err != nil {
		t.Fatalf("Skip() error = %v", err)
	}
	if skipped.State != phase.StateSkipped {
		t.Fatalf("expected SKIPPED, got %s", skipped.State)
	}
	running, _ := phase.NewPending(phasetype.NarrativeIntegration).Start(now)
	if _, err := running.Skip(now, "too late"); err == nil {
		t.Fatal("expected RUNNING -> SKIPPED to be rejected")
	}
}
