package phase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/marcus-qen/turnengine/internal/collaborator"
	"github.com/marcus-qen/turnengine/internal/errs"
)

// interactionOpportunity is one candidate session the analysis step scores.
type interactionOpportunity struct {
	sessionType string // agent_agent, agent_environment, agent_npc, multi_agent
	subtype     string // negotiation, cooperation, conflict, dialogue, quest, general
	members     []string
	npcID       string // set only for agent_npc sessions
	priority    float64
}

// npcInteractionRadius bounds the nearby-NPC query, in world units.
const npcInteractionRadius = 100

// InteractionOrchestrationExecutor analyzes interaction opportunities across
// participants (pairwise agent-agent, agent-environment, agent-NPC and
// multi-agent collaboration), greedily schedules non-overlapping sessions up
// to the configured concurrency cap, and runs each with a subtype-specific
// resolver.
type InteractionOrchestrationExecutor struct {
	Interaction collaborator.Client
	World       collaborator.Client
}

func NewInteractionOrchestrationExecutor(interaction, world collaborator.Client) *InteractionOrchestrationExecutor {
	return &InteractionOrchestrationExecutor{Interaction: interaction, World: world}
}

func (e *InteractionOrchestrationExecutor) ValidatePreconditions(_ context.Context, execCtx *ExecutionContext) error {
	if len(execCtx.Participants) == 0 {
		return errs.New(errs.KindPrecondition, "interaction_orchestration requires at least one participant")
	}
	if e.Interaction == nil {
		return errs.New(errs.KindPrecondition, "interaction collaborator is not configured")
	}
	return nil
}

func (e *InteractionOrchestrationExecutor) Execute(ctx context.Context, execCtx *ExecutionContext) (Result, error) {
	opportunities := e.analyzeOpportunities(ctx, execCtx)
	sort.Slice(opportunities, func(i, j int) bool { return opportunities[i].priority > opportunities[j].priority })

	maxConcurrent := execCtx.Configuration.MaxConcurrency()
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	scheduled := make([]interactionOpportunity, 0, maxConcurrent)
	busy := map[string]bool{}
	for _, opp := range opportunities {
		if len(scheduled) >= maxConcurrent {
			break
		}
		overlaps := false
		for _, m := range opp.members {
			if busy[m] {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		scheduled = append(scheduled, opp)
		for _, m := range opp.members {
			busy[m] = true
		}
	}

	completed := 0
	generated := make([]string, 0, len(scheduled))
	for _, session := range scheduled {
		start := time.Now()
		params := map[string]any{
			"session_type": session.sessionType,
			"subtype":      session.subtype,
			"members":      session.members,
		}
		if session.npcID != "" {
			params["npc_id"] = session.npcID
		}
		resp := e.Interaction.Call(ctx, "run_session", params)
		execCtx.RecordCall(collaborator.TargetInteractionContext, "run_session", params, resp.Data, time.Since(start), resp.Success)
		if resp.Success {
			completed++
			id := fmt.Sprintf("interaction_completed:%s:%s", session.sessionType, session.subtype)
			generated = append(generated, id)
			execCtx.AddGeneratedEvent(id)
		}
	}

	// Completion rate is measured over the sessions actually scheduled:
	// opportunities crowded out by the non-overlap rule or the concurrency
	// cap were never attempted, so they don't count against the phase.
	completionRate := 0.0
	if len(scheduled) > 0 {
		completionRate = float64(completed) / float64(len(scheduled))
	}
	execCtx.SetPerformanceMetric("interaction_completion_rate", completionRate)

	if completionRate <= 0.30 {
		return Result{}, errs.New(errs.KindInternal, fmt.Sprintf("interaction completion rate %.2f did not exceed 30%%", completionRate))
	}

	return Result{
		Success:         true,
		EventsProcessed: len(scheduled),
		EventsGenerated: generated,
		Metadata: map[string]any{
			"interaction_summary": map[string]any{
				"opportunities_analyzed": len(opportunities),
				"sessions_scheduled":     len(scheduled),
				"sessions_completed":     completed,
				"completion_rate":        completionRate,
			},
		},
	}, nil
}

// analyzeOpportunities enumerates pairwise agent<->agent sessions, one
// agent<->environment session per participant, agent<->NPC sessions from a
// nearby-NPC query against the world context, and one multi-agent
// collaboration opportunity, scored by a simple proximity/goal-alignment
// proxy.
func (e *InteractionOrchestrationExecutor) analyzeOpportunities(ctx context.Context, execCtx *ExecutionContext) []interactionOpportunity {
	participants := execCtx.Participants
	var opportunities []interactionOpportunity

	for i := 0; i < len(participants); i++ {
		for j := i + 1; j < len(participants); j++ {
			subtype := "cooperation"
			if (i+j)%3 == 0 {
				subtype = "conflict"
			} else if (i+j)%3 == 1 {
				subtype = "negotiation"
			}
			opportunities = append(opportunities, interactionOpportunity{
				sessionType: "agent_agent",
				subtype:     subtype,
				members:     []string{participants[i], participants[j]},
				priority:    scoreOpportunity("agent_agent", i, j),
			})
		}
	}

	for i, p := range participants {
		opportunities = append(opportunities, interactionOpportunity{
			sessionType: "agent_environment",
			subtype:     "general",
			members:     []string{p},
			priority:    scoreOpportunity("agent_environment", i, i),
		})
	}

	opportunities = append(opportunities, e.findNPCOpportunities(ctx, execCtx)...)

	if len(participants) >= 3 {
		opportunities = append(opportunities, interactionOpportunity{
			sessionType: "multi_agent",
			subtype:     "cooperation",
			members:     append([]string(nil), participants...),
			priority:    scoreOpportunity("multi_agent", 0, len(participants)),
		})
	}

	return opportunities
}

// findNPCOpportunities queries the world context for NPCs near the roster
// and pairs each with one participant, round-robin. The NPC's own
// interaction type and importance drive the subtype and priority.
func (e *InteractionOrchestrationExecutor) findNPCOpportunities(ctx context.Context, execCtx *ExecutionContext) []interactionOpportunity {
	if e.World == nil || len(execCtx.Participants) == 0 {
		return nil
	}
	params := map[string]any{
		"participants":       execCtx.Participants,
		"interaction_radius": npcInteractionRadius,
	}
	start := time.Now()
	resp := e.World.Call(ctx, "get_nearby_npcs", params)
	execCtx.RecordCall(collaborator.TargetWorldContext, "get_nearby_npcs", params, resp.Data, time.Since(start), resp.Success)
	if !resp.Success {
		return nil
	}

	var opportunities []interactionOpportunity
	for i, npc := range asMapSlice(resp.Data["npcs"]) {
		npcID, _ := npc["npc_id"].(string)
		if npcID == "" {
			continue
		}
		subtype, _ := npc["interaction_type"].(string)
		if subtype == "" {
			subtype = "dialogue"
		}
		importance, _ := npc["importance"].(float64)
		agent := execCtx.Participants[i%len(execCtx.Participants)]
		opportunities = append(opportunities, interactionOpportunity{
			sessionType: "agent_npc",
			subtype:     subtype,
			members:     []string{agent},
			npcID:       npcID,
			priority:    scoreOpportunity("agent_npc", i, i) + 0.3*importance,
		})
	}
	return opportunities
}

func scoreOpportunity(sessionType string, i, j int) float64 {
	base := map[string]float64{
		"agent_agent":       0.7,
		"agent_environment": 0.4,
		"agent_npc":         0.5,
		"multi_agent":       0.6,
	}[sessionType]
	proximity := 1.0 / float64(1+abs(i-j))
	return base + 0.3*proximity
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
