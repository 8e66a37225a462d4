package phase_test

import (
	"context"
	"strings"
	"testing"

	"github.com/marcus-qen/turnengine/internal/collaborator"
	"github.com/marcus-qen/turnengine/internal/phase"
	"github.com/marcus-qen/turnengine/internal/phasetype"
	"github.com/marcus-qen/turnengine/internal/turnconfig"
)

func runInteractionPhase(t *testing.T, participants []string, world collaborator.Client) phase.Result {
	t.Helper()
	cfg := turnconfig.Default(participants)
	execCtx := phase.NewExecutionContext("turn-interact-1", phasetype.InteractionOrchestration, cfg, participants, nil)
	executor := phase.NewInteractionOrchestrationExecutor(collaborator.InMemoryInteraction{}, world)
	return phase.Run(context.Background(), execCtx, executor)
}

func TestInteractionSchedulesNPCSessions(t *testing.T) {
	result := runInteractionPhase(t, []string{"a", "b", "c", "d"}, collaborator.NewInMemoryWorld())
	if !result.Success {
		t.Fatalf("expected success, got %+v", result.ErrorDetails)
	}

	sawNPC := false
	for _, id := range result.EventsGenerated {
		if strings.HasPrefix(id, "interaction_completed:agent_npc:") {
			sawNPC = true
		}
	}
	if !sawNPC {
		t.Fatalf("expected an agent_npc session to run, got %v", result.EventsGenerated)
	}

	sawNPCQuery := false
	for _, call := range result.CrossContextCalls {
		if call.Target == collaborator.TargetWorldContext && call.Operation == "get_nearby_npcs" {
			sawNPCQuery = true
		}
	}
	if !sawNPCQuery {
		t.Fatal("expected a get_nearby_npcs query against the world context")
	}

	// 4 participants: 6 pairs + 4 environment + 2 NPCs + 1 multi-agent.
	summary, ok := result.Metadata["interaction_summary"].(map[string]any)
	if !ok {
		t.Fatalf("missing interaction_summary: %+v", result.Metadata)
	}
	if got := summary["opportunities_analyzed"]; got != 13 {
		t.Fatalf("opportunities_analyzed = %v, want 13", got)
	}
}

func TestInteractionSessionsNeverShareAnAgent(t *testing.T) {
	result := runInteractionPhase(t, []string{"a", "b", "c"}, collaborator.NewInMemoryWorld())
	if !result.Success {
		t.Fatalf("expected success, got %+v", result.ErrorDetails)
	}

	seen := map[string]int{}
	for _, call := range result.CrossContextCalls {
		if call.Operation != "run_session" {
			continue
		}
		members, _ := call.Parameters["members"].([]string)
		for _, m := range members {
			seen[m]++
		}
	}
	for agent, count := range seen {
		if count > 1 {
			t.Fatalf("agent %s scheduled into %d overlapping sessions", agent, count)
		}
	}
}

func TestInteractionWorksWithoutWorldCollaborator(t *testing.T) {
	result := runInteractionPhase(t, []string{"a", "b"}, nil)
	if !result.Success {
		t.Fatalf("expected success without a world collaborator, got %+v", result.ErrorDetails)
	}
	for _, id := range result.EventsGenerated {
		if strings.HasPrefix(id, "interaction_completed:agent_npc:") {
			t.Fatalf("unexpected NPC session without a world collaborator: %v", result.EventsGenerated)
		}
	}
}
