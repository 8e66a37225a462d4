package saga_test

import (
	"context"
	"sync"

	"github.com/marcus-qen/turnengine/internal/collaborator"
	"github.com/marcus-qen/turnengine/internal/compensation"
	"github.com/marcus-qen/turnengine/internal/phase"
	"github.com/marcus-qen/turnengine/internal/phasetype"
	"github.com/marcus-qen/turnengine/internal/saga"
	"github.com/marcus-qen/turnengine/internal/turn"
	"github.com/marcus-qen/turnengine/internal/turnconfig"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newCompensatingTurn() *turn.Turn {
	cfg := turnconfig.Default([]string{"alice", "bob"})
	tn := turn.Create("turn-saga-1", cfg, []string{"alice", "bob"})
	_ = tn.StartPlanning()
	_ = tn.StartExecution()
	_ = tn.CompletePhase(phasetype.WorldUpdate, phase.Result{Success: true, EventsProcessed: 1})
	_ = tn.FailPhase(phasetype.SubjectiveBrief, "ai gateway unreachable", nil, true)
	return tn
}

var _ = Describe("Coordinator", func() {
	var coordinator *saga.Coordinator

	BeforeEach(func() {
		coordinator = saga.New(nil)
	})

	It("plans compensation in reverse committed-phase order plus global actions", func() {
		tn := newCompensatingTurn()
		actions := coordinator.Plan(tn, saga.FailureContext{
			FailedPhase: phasetype.SubjectiveBrief,
			Severity:    compensation.SeverityLow,
		})

		Expect(actions).NotTo(BeEmpty())
		Expect(actions[0].TargetPhase).To(Equal(phasetype.WorldUpdate.String()))
		Expect(actions[0].CompensationType).To(Equal(compensation.RollbackWorldState))

		var sawLogFailure, sawNotify bool
		for _, a := range actions {
			if a.CompensationType == compensation.LogFailure {
				sawLogFailure = true
			}
			if a.CompensationType == compensation.NotifyParticipants {
				sawNotify = true
			}
		}
		Expect(sawLogFailure).To(BeTrue())
		Expect(sawNotify).To(BeTrue())
	})

	It("bumps priority for critical-severity compensation types", func() {
		tn := newCompensatingTurn()
		actions := coordinator.Plan(tn, saga.FailureContext{
			FailedPhase: phasetype.EventIntegration,
			Severity:    compensation.SeverityCritical,
		})

		for _, a := range actions {
			if a.CompensationType == compensation.TriggerManualReview {
				Expect(a.Priority).To(Equal(10))
			}
		}
	})

	It("executes a plan to completion and drains the turn to COMPLETED", func() {
		tn := newCompensatingTurn()
		actions := coordinator.Plan(tn, saga.FailureContext{
			FailedPhase: phasetype.SubjectiveBrief,
			Severity:    compensation.SeverityLow,
		})

		Expect(coordinator.Execute(context.Background(), tn, actions)).To(Succeed())
		Expect(tn.State).To(Equal(turn.StateCompleted))
		Expect(tn.Saga.PendingCompensations).To(BeEmpty())

		for _, a := range tn.CompensationActions() {
			Expect(a.Terminal()).To(BeTrue())
		}
	})

	It("retries a failing handler before giving up, respecting non-retryable classification", func() {
		tn := newCompensatingTurn()
		actions := coordinator.Plan(tn, saga.FailureContext{
			FailedPhase: phasetype.SubjectiveBrief,
			Severity:    compensation.SeverityLow,
		})

		attempts := 0
		coordinator.RegisterHandler(compensation.InvalidateSubjectiveBriefs, func(ctx context.Context, turnID string, action compensation.Action) (map[string]any, error) {
			attempts++
			return nil, errCollaboratorUnavailable
		})

		Expect(coordinator.Execute(context.Background(), tn, actions)).To(Succeed())
		Expect(attempts).To(BeNumerically(">=", 1))
	})
})

var _ = Describe("RegisterCollaboratorHandlers", func() {
	It("backs rollback_world_state with the world restore operation", func() {
		coordinator := saga.New(nil)
		world := &recordingClient{inner: collaborator.NewInMemoryWorld()}
		collabs := collaborator.NewRegistry(map[string]collaborator.Client{
			collaborator.TargetWorldContext:       world,
			collaborator.TargetEventContext:       collaborator.InMemoryEvent{},
			collaborator.TargetInteractionContext: collaborator.InMemoryInteraction{},
		})
		saga.RegisterCollaboratorHandlers(coordinator, collabs)

		tn := newCompensatingTurn()
		actions := coordinator.Plan(tn, saga.FailureContext{
			FailedPhase: phasetype.SubjectiveBrief,
			Severity:    compensation.SeverityLow,
		})

		Expect(coordinator.Execute(context.Background(), tn, actions)).To(Succeed())
		Expect(world.operations()).To(ContainElement("restore_snapshot"))
		Expect(tn.State).To(Equal(turn.StateCompleted))
		for _, a := range tn.CompensationActions() {
			Expect(a.Terminal()).To(BeTrue())
		}
	})

	It("fails the action when the collaborator reports failure", func() {
		coordinator := saga.New(nil)
		collabs := collaborator.NewRegistry(map[string]collaborator.Client{
			collaborator.TargetWorldContext: failingClient{},
		})
		saga.RegisterCollaboratorHandlers(coordinator, collabs)

		tn := newCompensatingTurn()
		actions := coordinator.Plan(tn, saga.FailureContext{
			FailedPhase: phasetype.SubjectiveBrief,
			Severity:    compensation.SeverityLow,
		})

		Expect(coordinator.Execute(context.Background(), tn, actions)).To(Succeed())

		var rollback *compensation.Action
		for _, a := range tn.CompensationActions() {
			if a.CompensationType == compensation.RollbackWorldState {
				copied := a
				rollback = &copied
			}
		}
		Expect(rollback).NotTo(BeNil())
		Expect(rollback.Status).To(Equal(compensation.StatusFailed))
	})
})

var _ = Describe("Validate", func() {
	It("reports full rollback completeness when every action completed", func() {
		a1, _ := compensation.New("t", "world_update", compensation.LogFailure, nil, nil).StartExecuting("x")
		a1, _ = a1.Complete(nil, 0)
		report := saga.Validate([]compensation.Action{a1})
		Expect(report.RollbackCompleteness).To(Equal(1.0))
		Expect(report.ManualReviewRequired).To(BeFalse())
	})

	It("requires manual review when a destructive action fails", func() {
		a1, _ := compensation.New("t", "world_update", compensation.RollbackWorldState, nil, nil).StartExecuting("x")
		a1, _ = a1.Fail(map[string]any{"error": "boom"})
		report := saga.Validate([]compensation.Action{a1})
		Expect(report.ManualReviewRequired).To(BeTrue())
		Expect(report.DataIntegrityViolations).To(Equal(1))
	})
})

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const errCollaboratorUnavailable = sentinelError("collaborator unavailable")

// recordingClient wraps a collaborator and records the operations invoked.
type recordingClient struct {
	mu    sync.Mutex
	inner collaborator.Client
	ops   []string
}

func (r *recordingClient) Call(ctx context.Context, operation string, parameters map[string]any) collaborator.Response {
	r.mu.Lock()
	r.ops = append(r.ops, operation)
	r.mu.Unlock()
	return r.inner.Call(ctx, operation, parameters)
}

func (r *recordingClient) operations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

// failingClient refuses every operation.
type failingClient struct{}

func (failingClient) Call(context.Context, string, map[string]any) collaborator.Response {
	return collaborator.Failed("data_corruption", "world state cannot be restored")
}
