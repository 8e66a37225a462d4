// Package pipeline wires the phase framework, the Turn aggregate and the
// saga coordinator into the turn execution engine: the component that
// drives one turn through its five phases end to end, compensating on
// failure.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/marcus-qen/turnengine/internal/compensation"
	"github.com/marcus-qen/turnengine/internal/errs"
	"github.com/marcus-qen/turnengine/internal/metrics"
	"github.com/marcus-qen/turnengine/internal/phase"
	"github.com/marcus-qen/turnengine/internal/phasetype"
	"github.com/marcus-qen/turnengine/internal/saga"
	"github.com/marcus-qen/turnengine/internal/telemetry"
	"github.com/marcus-qen/turnengine/internal/turn"
	"github.com/marcus-qen/turnengine/internal/turnconfig"

	"go.uber.org/zap"
)

// Orchestrator drives the five-phase pipeline for one turn at a time. A
// single Orchestrator is safe for concurrent use: each Run call creates and
// owns its own Turn aggregate. Nothing rejects a second Run for a turn id
// that is already running; the HTTP layer overwrites its registry entry.
type Orchestrator struct {
	executors *phase.ExecutorRegistry
	saga      *saga.Coordinator
	logger    *zap.Logger
}

// New builds an Orchestrator.
func New(executors *phase.ExecutorRegistry, coordinator *saga.Coordinator, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{executors: executors, saga: coordinator, logger: logger}
}

// Run drives turnID from CREATED through to a terminal state, returning the
// finished aggregate. It never returns a Go error for domain failures —
// those are reflected in the Turn's terminal state and PipelineResult; a
// non-nil error here means the turn could not even be started (e.g. an
// invalid configuration).
func (o *Orchestrator) Run(ctx context.Context, turnID string, cfg turnconfig.TurnConfiguration, participants []string) (*turn.Turn, error) {
	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("pipeline: invalid configuration for turn %s: %v", turnID, problems)
	}

	tn := turn.Create(turnID, cfg, participants)

	ctx, turnSpan := telemetry.StartTurnSpan(ctx, turnID, len(participants))
	metrics.TurnsActive.Inc()
	start := time.Now()
	defer func() {
		metrics.TurnsActive.Dec()
		success := tn.PipelineResult != nil && tn.PipelineResult.Success
		status := "error"
		outcome := "failed"
		compensated := false
		if success {
			status = "success"
			outcome = "succeeded"
		} else if tn.State == turn.StateCompleted {
			outcome = "compensated"
			compensated = true
		}
		aiEnabled := cfg.AIIntegrationEnabled()
		metrics.RecordTurnComplete(status, len(participants), aiEnabled, success, time.Since(start))
		metrics.SetLLMCostPerRequest("complete", "aggregate", success, string(cfg.NarrativeDepth()), tn.PerfTotalAICostDollars())
		telemetry.EndTurnSpan(turnSpan, outcome, tn.PerfTotalAICostDollars(), compensated)
	}()

	if err := tn.StartPlanning(); err != nil {
		return tn, fmt.Errorf("pipeline: %w", err)
	}
	if err := tn.StartExecution(); err != nil {
		return tn, fmt.Errorf("pipeline: %w", err)
	}

	priorPhases := map[string]phase.PriorPhaseSummary{}

	for tn.CurrentPhase != nil {
		p := *tn.CurrentPhase
		o.runOnePhase(ctx, tn, p, priorPhases)
	}

	return tn, nil
}

func (o *Orchestrator) runOnePhase(ctx context.Context, tn *turn.Turn, p phasetype.Type, priorPhases map[string]phase.PriorPhaseSummary) {
	executor, ok := o.executors.Resolve(p)
	if !ok {
		o.logger.Error("pipeline: no executor registered", zap.String("phase", p.String()))
		_ = tn.FailPhase(p, "no executor registered for phase", nil, false)
		return
	}

	execCtx := phase.NewExecutionContext(tn.TurnID, p, tn.Configuration, tn.Configuration.Participants(), priorPhases)

	phaseCtx, phaseSpan := telemetry.StartPhaseSpan(ctx, p.String())
	phaseStart := time.Now()
	result := phase.Run(phaseCtx, execCtx, executor)
	phaseDuration := time.Since(phaseStart)

	o.recordPhaseTelemetry(tn, p, result, phaseDuration)
	errorKind := ""
	if result.ErrorDetails != nil {
		errorKind = result.ErrorDetails.ErrorKind
	}
	telemetry.EndPhaseSpan(phaseSpan, result.Success, errorKind, result.EventsProcessed)

	for _, call := range result.CrossContextCalls {
		metrics.RecordCrossContextCall(call.Target, call.Operation, call.Success, time.Duration(call.ResponseTimeMs)*time.Millisecond)
	}

	if result.Success {
		priorPhases[p.String()] = phase.PriorPhaseSummary{
			Success:         true,
			EventsProcessed: result.EventsProcessed,
			EventsGenerated: len(result.EventsGenerated),
			Artifacts:       result.ArtifactsCreated,
			Metadata:        result.Metadata,
		}
		if err := tn.CompletePhase(p, result); err != nil {
			o.logger.Error("pipeline: CompletePhase failed", zap.String("phase", p.String()), zap.Error(err))
		}
		return
	}

	message := "phase failed"
	kind := errs.KindInternal
	var details map[string]any
	if result.ErrorDetails != nil {
		message = result.ErrorDetails.ErrorMessage
		kind = errs.Kind(result.ErrorDetails.ErrorKind)
		details = map[string]any{
			"error_kind": result.ErrorDetails.ErrorKind,
			"error_type": result.ErrorDetails.ErrorType,
		}
	}
	metrics.RecordError(p.String(), string(kind), string(severityForKind(kind)))

	canCompensate := kind != errs.KindCompensationFailed
	if err := tn.FailPhase(p, message, details, canCompensate); err != nil {
		o.logger.Error("pipeline: FailPhase failed", zap.String("phase", p.String()), zap.Error(err))
		return
	}

	if tn.State == turn.StateCompensating {
		o.runCompensation(ctx, tn, p, kind)
	}
}

func (o *Orchestrator) runCompensation(ctx context.Context, tn *turn.Turn, failedPhase phasetype.Type, kind errs.Kind) {
	failure := saga.FailureContext{
		FailedPhase:     failedPhase,
		Severity:        severityForKind(kind),
		PartialProgress: len(tn.Saga.CommittedPhases) > 0,
	}
	plan := o.saga.Plan(tn, failure)
	if err := o.saga.Execute(ctx, tn, plan); err != nil {
		o.logger.Error("pipeline: saga execution failed", zap.String("turn_id", tn.TurnID), zap.Error(err))
	}
	for _, action := range tn.CompensationActions() {
		duration := time.Duration(action.ExecutionTimeoutMs) * time.Millisecond
		if action.CompletedAt != nil {
			duration = action.CompletedAt.Sub(action.TriggeredAt)
		}
		succeeded := action.Status == compensation.StatusCompleted
		metrics.RecordCompensation(string(action.CompensationType), succeeded, failedPhase.String(), duration)
		metrics.RecordErrorRecoveryAttempt(string(action.CompensationType), string(action.Status))
	}
}

func (o *Orchestrator) recordPhaseTelemetry(tn *turn.Turn, p phasetype.Type, result phase.Result, duration time.Duration) {
	cfg := tn.Configuration
	participants := len(cfg.Participants())
	metrics.RecordPhaseComplete(p.String(), result.Success, participants, cfg.AIIntegrationEnabled(), duration, result.EventsProcessed, len(result.EventsGenerated))
	if result.AIUsage != nil {
		for _, op := range result.AIUsage.Operations {
			metrics.RecordAIUsage("ai_gateway", op.Model, p.String(), op.Cost.Dollars(), op.Tokens)
		}
		metrics.SetLLMCostPerRequest(p.String(), "aggregate", result.Success, string(cfg.NarrativeDepth()), result.AIUsage.TotalCost.Dollars())
	}
}

func severityForKind(kind errs.Kind) compensation.Severity {
	switch kind {
	case errs.KindConsistency, errs.KindCompensationFailed:
		return compensation.SeverityCritical
	case errs.KindAIBudget, errs.KindCollaborator:
		return compensation.SeverityHigh
	case errs.KindTimeout:
		return compensation.SeverityMedium
	default:
		return compensation.SeverityLow
	}
}
