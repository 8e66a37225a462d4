package collaborator

import (
	"context"
	"fmt"
)

// maxRecentChanges bounds the in-memory world's change log.
const maxRecentChanges = 50

// InMemoryWorld is a deterministic stand-in for the world_context
// collaborator, used as the default in development mode and in tests. It
// tracks a monotonic world clock, a trivial per-entity state map, and a
// bounded log of recent changes so the brief phase has something to gather.
type InMemoryWorld struct {
	entities map[string]map[string]any
	changes  []map[string]any
}

// NewInMemoryWorld builds an empty in-memory world collaborator.
func NewInMemoryWorld() *InMemoryWorld {
	return &InMemoryWorld{entities: map[string]map[string]any{}}
}

func (w *InMemoryWorld) recordChange(change map[string]any) {
	w.changes = append(w.changes, change)
	if len(w.changes) > maxRecentChanges {
		w.changes = w.changes[len(w.changes)-maxRecentChanges:]
	}
}

func (w *InMemoryWorld) Call(_ context.Context, operation string, parameters map[string]any) Response {
	switch operation {
	case "snapshot":
		snap := make(map[string]any, len(w.entities))
		for k, v := range w.entities {
			snap[k] = cloneAny(v)
		}
		return Ok(map[string]any{"snapshot": snap})
	case "advance_time":
		w.recordChange(map[string]any{"change_type": "time_advanced", "area": "global"})
		return Ok(map[string]any{"advanced": true})
	case "update_entity":
		entity, _ := parameters["entity"].(string)
		if entity == "" {
			return Failed("validation", "entity is required")
		}
		state, _ := parameters["state"].(map[string]any)
		w.entities[entity] = state
		w.recordChange(map[string]any{"change_type": "entity_updated", "affected_entities": []string{entity}})
		return Ok(map[string]any{"entity": entity, "updated": true})
	case "apply_environment_changes":
		w.recordChange(map[string]any{"change_type": "environment_changed", "area": "global"})
		return Ok(map[string]any{"applied": true, "changes": 0})
	case "validate_consistency":
		return Ok(map[string]any{"critical_issues": []string{}})
	case "get_recent_changes":
		changes := make([]map[string]any, len(w.changes))
		copy(changes, w.changes)
		return Ok(map[string]any{"changes": changes})
	case "get_nearby_npcs":
		return Ok(map[string]any{"npcs": []map[string]any{
			{"npc_id": "npc-merchant", "interaction_type": "dialogue", "importance": 0.6},
			{"npc_id": "npc-guard", "interaction_type": "quest", "importance": 0.4},
		}})
	case "restore_snapshot":
		snap, _ := parameters["snapshot"].(map[string]any)
		if snap != nil {
			w.entities = map[string]map[string]any{}
			for k, v := range snap {
				if m, ok := v.(map[string]any); ok {
					w.entities[k] = m
				}
			}
		}
		w.changes = nil
		return Ok(map[string]any{"restored": true})
	default:
		return Failed("unsupported_operation", fmt.Sprintf("world_context does not support %q", operation))
	}
}

func cloneAny(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// InMemoryAgent is a stand-in for agent_context: returns plausible per-agent
// state/memories/goals so the subjective_brief phase has something to work
// with in development mode.
type InMemoryAgent struct{}

func (InMemoryAgent) Call(_ context.Context, operation string, parameters map[string]any) Response {
	switch operation {
	case "get_agent_context":
		agent, _ := parameters["agent_id"].(string)
		return Ok(map[string]any{
			"agent_id":        agent,
			"state":           map[string]any{"mood": "neutral", "location": "unknown"},
			"recent_memories": []string{},
			"goals":           []string{"survive", "explore"},
		})
	default:
		return Failed("unsupported_operation", fmt.Sprintf("agent_context does not support %q", operation))
	}
}

// InMemoryAIGateway is a stand-in for ai_gateway: synthesizes a response
// whose length scales with the requested max_tokens, with a nominal
// per-token cost, for local development and tests that don't exercise a
// real LLM vendor.
type InMemoryAIGateway struct {
	CostPerToken int64 // micro-dollars per token
}

func NewInMemoryAIGateway() *InMemoryAIGateway {
	return &InMemoryAIGateway{CostPerToken: 2} // $0.000002/token
}

func (g *InMemoryAIGateway) Call(_ context.Context, operation string, parameters map[string]any) Response {
	switch operation {
	case "generate":
		prompt, _ := parameters["prompt"].(string)
		maxTokens, _ := parameters["max_tokens"].(int)
		if maxTokens <= 0 {
			maxTokens = 200
		}
		tokensUsed := maxTokens / 2
		if tokensUsed < 8 {
			tokensUsed = 8
		}
		text := synthesizeText(prompt, tokensUsed)
		return Ok(map[string]any{
			"text":        text,
			"tokens_used": tokensUsed,
			"cost_micros": int64(tokensUsed) * g.CostPerToken,
			"model":       parameters["model"],
		})
	default:
		return Failed("unsupported_operation", fmt.Sprintf("ai_gateway does not support %q", operation))
	}
}

func synthesizeText(prompt string, approxWords int) string {
	if approxWords < 6 {
		approxWords = 6
	}
	var out []byte
	out = append(out, []byte(prompt)...)
	for i := 0; i < approxWords; i++ {
		out = append(out, []byte(fmt.Sprintf(" word%d", i))...)
	}
	return string(out)
}

// InMemoryInteraction is a stand-in for interaction_context.
type InMemoryInteraction struct{}

func (InMemoryInteraction) Call(_ context.Context, operation string, parameters map[string]any) Response {
	switch operation {
	case "run_session":
		return Ok(map[string]any{"completed": true, "outcome": "resolved"})
	case "cancel_sessions":
		return Ok(map[string]any{"cancelled": true})
	default:
		return Failed("unsupported_operation", fmt.Sprintf("interaction_context does not support %q", operation))
	}
}

// InMemoryEvent is a stand-in for event_context.
type InMemoryEvent struct{}

func (InMemoryEvent) Call(_ context.Context, operation string, parameters map[string]any) Response {
	switch operation {
	case "apply_world_event":
		return Ok(map[string]any{"applied": true})
	case "remove_events":
		return Ok(map[string]any{"removed": true})
	default:
		return Failed("unsupported_operation", fmt.Sprintf("event_context does not support %q", operation))
	}
}

// InMemoryNarrative is a stand-in for narrative_context.
type InMemoryNarrative struct{}

func (InMemoryNarrative) Call(_ context.Context, operation string, parameters map[string]any) Response {
	switch operation {
	case "update_story_arc":
		return Ok(map[string]any{"updated": true})
	default:
		return Failed("unsupported_operation", fmt.Sprintf("narrative_context does not support %q", operation))
	}
}

// DefaultRegistry wires every in-memory fake collaborator, suitable for
// local development and the API server's default mode when no real
// downstream services are configured.
func DefaultRegistry() *Registry {
	return NewRegistry(map[string]Client{
		TargetWorldContext:       NewInMemoryWorld(),
		TargetAgentContext:       InMemoryAgent{},
		TargetAIGateway:          NewInMemoryAIGateway(),
		TargetInteractionContext: InMemoryInteraction{},
		TargetEventContext:       InMemoryEvent{},
		TargetNarrativeContext:   InMemoryNarrative{},
	})
}
