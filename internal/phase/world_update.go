package phase

import (
	"context"
	"fmt"
	"time"

	"github.com/marcus-qen/turnengine/internal/collaborator"
	"github.com/marcus-qen/turnengine/internal/errs"
)

// WorldUpdateExecutor advances world time, syncs per-participant entity
// state, applies pending environment changes, and validates consistency.
type WorldUpdateExecutor struct {
	World collaborator.Client
}

func NewWorldUpdateExecutor(world collaborator.Client) *WorldUpdateExecutor {
	return &WorldUpdateExecutor{World: world}
}

func (e *WorldUpdateExecutor) ValidatePreconditions(_ context.Context, execCtx *ExecutionContext) error {
	if e.World == nil {
		return errs.New(errs.KindPrecondition, "world collaborator is not configured")
	}
	return nil
}

func (e *WorldUpdateExecutor) Execute(ctx context.Context, execCtx *ExecutionContext) (Result, error) {
	snap := e.call(ctx, execCtx, "snapshot", nil)
	if !snap.Success {
		return Result{}, errs.Wrap(errs.KindCollaborator, "world snapshot failed", snap.Error)
	}
	execCtx.SetRollbackSnapshot("world_update", snap.Data["snapshot"])

	advance := e.call(ctx, execCtx, "advance_time", map[string]any{
		"seconds": execCtx.Configuration.WorldTimeAdvance().Seconds(),
	})
	if !advance.Success {
		return Result{}, errs.Wrap(errs.KindCollaborator, "advance_time failed", advance.Error)
	}

	generated := []string{"world_time_advanced"}
	eventsProcessed := 1

	for _, participant := range execCtx.Participants {
		updated := e.call(ctx, execCtx, "update_entity", map[string]any{
			"entity": participant,
			"state":  map[string]any{"last_turn_advance": execCtx.Configuration.WorldTimeAdvance().String()},
		})
		if !updated.Success {
			return Result{}, errs.Wrap(errs.KindCollaborator, fmt.Sprintf("update_entity failed for %q", participant), updated.Error)
		}
		eventsProcessed++
	}
	generated = append(generated, "entity_updated")

	env := e.call(ctx, execCtx, "apply_environment_changes", nil)
	if !env.Success {
		return Result{}, errs.Wrap(errs.KindCollaborator, "apply_environment_changes failed", env.Error)
	}
	generated = append(generated, "environment_changed")
	eventsProcessed++

	consistency := e.call(ctx, execCtx, "validate_consistency", nil)
	if !consistency.Success {
		return Result{}, errs.Wrap(errs.KindCollaborator, "validate_consistency failed", consistency.Error)
	}
	if critical, ok := consistency.Data["critical_issues"].([]string); ok && len(critical) > 0 {
		return Result{}, errs.New(errs.KindConsistency, fmt.Sprintf("world state has %d critical consistency issue(s)", len(critical)))
	}

	generated = append(generated, "turn_world_update_completed")
	eventsProcessed++

	for _, id := range generated {
		execCtx.AddGeneratedEvent(id)
	}

	return Result{
		Success:          true,
		EventsProcessed:  eventsProcessed,
		EventsGenerated:  generated,
		ArtifactsCreated: nil,
	}, nil
}

func (e *WorldUpdateExecutor) call(ctx context.Context, execCtx *ExecutionContext, op string, params map[string]any) collaborator.Response {
	start := time.Now()
	resp := e.World.Call(ctx, op, params)
	execCtx.RecordCall(collaborator.TargetWorldContext, op, params, resp.Data, time.Since(start), resp.Success)
	return resp
}
