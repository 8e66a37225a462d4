package saga

import (
	"context"
	"fmt"

	"github.com/marcus-qen/turnengine/internal/collaborator"
	"github.com/marcus-qen/turnengine/internal/compensation"
)

// RegisterCollaboratorHandlers backs the destructive compensation types with
// real collaborator operations so rollback performs an actual compensating
// transaction instead of the log-only default:
//
//   - rollback_world_state -> world_context.restore_snapshot with the
//     snapshot captured before the phase mutated the world
//   - remove_events        -> event_context.remove_events for the turn
//   - cancel_interactions  -> interaction_context.cancel_sessions for the turn
//
// The log-only defaults stay in place for the notification/logging/review
// types, which have no external state to undo.
func RegisterCollaboratorHandlers(c *Coordinator, collabs *collaborator.Registry) {
	c.RegisterHandler(compensation.RollbackWorldState, func(ctx context.Context, turnID string, action compensation.Action) (map[string]any, error) {
		params := map[string]any{
			"turn_id":  turnID,
			"snapshot": action.RollbackData["world_update"],
		}
		return callCollaborator(ctx, collabs, collaborator.TargetWorldContext, "restore_snapshot", params)
	})

	c.RegisterHandler(compensation.RemoveEvents, func(ctx context.Context, turnID string, action compensation.Action) (map[string]any, error) {
		params := map[string]any{
			"turn_id":           turnID,
			"affected_entities": action.AffectedEntities,
		}
		return callCollaborator(ctx, collabs, collaborator.TargetEventContext, "remove_events", params)
	})

	c.RegisterHandler(compensation.CancelInteractions, func(ctx context.Context, turnID string, action compensation.Action) (map[string]any, error) {
		params := map[string]any{
			"turn_id":           turnID,
			"affected_entities": action.AffectedEntities,
		}
		return callCollaborator(ctx, collabs, collaborator.TargetInteractionContext, "cancel_sessions", params)
	})
}

func callCollaborator(ctx context.Context, collabs *collaborator.Registry, target, operation string, params map[string]any) (map[string]any, error) {
	resp := collabs.Call(ctx, target, operation, params)
	if !resp.Success {
		if resp.Error != nil {
			return nil, resp.Error
		}
		return nil, fmt.Errorf("%s.%s reported failure with no error payload", target, operation)
	}
	return resp.Data, nil
}
