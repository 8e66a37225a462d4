package phase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/marcus-qen/turnengine/internal/collaborator"
	"github.com/marcus-qen/turnengine/internal/errs"
	"github.com/marcus-qen/turnengine/internal/money"
	"github.com/marcus-qen/turnengine/internal/turnconfig"
)

var briefMaxTokensByDepth = map[turnconfig.NarrativeDepth]int{
	turnconfig.DepthBasic:         200,
	turnconfig.DepthStandard:      500,
	turnconfig.DepthDetailed:      1000,
	turnconfig.DepthComprehensive: 2000,
}

// SubjectiveBriefExecutor builds and dispatches one AI-gateway prompt per
// participant, summarizing world changes relevant to them.
type SubjectiveBriefExecutor struct {
	AI    collaborator.Client
	Agent collaborator.Client
	World collaborator.Client
}

func NewSubjectiveBriefExecutor(ai, agent, world collaborator.Client) *SubjectiveBriefExecutor {
	return &SubjectiveBriefExecutor{AI: ai, Agent: agent, World: world}
}

func (e *SubjectiveBriefExecutor) ValidatePreconditions(_ context.Context, execCtx *ExecutionContext) error {
	if execCtx.Configuration.AIEnabledForPhase(execCtx.PhaseType) {
		if e.AI == nil {
			return errs.New(errs.KindPrecondition, "ai gateway is not configured but AI is enabled for this phase")
		}
		if max, has := execCtx.Configuration.MaxAICost(); has && execCtx.Configuration.EstimatedAICost() > max {
			return errs.New(errs.KindAIBudget, "estimated ai cost exceeds configured max_ai_cost")
		}
	}
	return nil
}

func (e *SubjectiveBriefExecutor) Execute(ctx context.Context, execCtx *ExecutionContext) (Result, error) {
	if !execCtx.Configuration.AIEnabledForPhase(execCtx.PhaseType) {
		return Result{
			Success:         true,
			EventsProcessed: 0,
			Metadata:        map[string]any{"ai_integration_disabled": true},
		}, nil
	}

	depth := execCtx.Configuration.NarrativeDepth()
	maxTokens := briefMaxTokensByDepth[depth]
	if maxTokens == 0 {
		maxTokens = briefMaxTokensByDepth[turnconfig.DepthStandard]
	}

	worldChanges := e.gatherWorldChanges(ctx, execCtx)

	validBriefs := 0
	generated := make([]string, 0, len(execCtx.Participants))

	for _, participant := range execCtx.Participants {
		agentCtx := e.callAgent(ctx, execCtx, participant)
		prompt := buildBriefPrompt(participant, depth, agentCtx, worldChanges)

		start := time.Now()
		resp := e.AI.Call(ctx, "generate", map[string]any{
			"prompt":      prompt,
			"max_tokens":  maxTokens,
			"temperature": execCtx.Configuration.AITemperature(),
			"model":       "brief-model",
		})
		execCtx.RecordCall(collaborator.TargetAIGateway, "generate", map[string]any{"participant": participant}, resp.Data, time.Since(start), resp.Success)

		if !resp.Success {
			continue
		}
		text, _ := resp.Data["text"].(string)
		if isValidBrief(text) {
			validBriefs++
			generated = append(generated, fmt.Sprintf("subjective_brief_generated:%s", participant))
			execCtx.AddGeneratedEvent(generated[len(generated)-1])
		}
		recordAICost(execCtx, resp, "subjective_brief")
	}

	success := len(execCtx.Participants) > 0 && float64(validBriefs) > float64(len(execCtx.Participants))/2
	if !success {
		return Result{}, errs.New(errs.KindInternal, fmt.Sprintf("only %d/%d participants produced a valid brief", validBriefs, len(execCtx.Participants)))
	}

	return Result{
		Success:         true,
		EventsProcessed: validBriefs,
		EventsGenerated: generated,
		Metadata:        map[string]any{"world_changes_considered": len(worldChanges)},
	}, nil
}

// gatherWorldChanges asks the world context for changes recorded this turn
// and keeps those relevant to the roster: a change counts if its
// affected_entities intersect the participants, or its area is global.
func (e *SubjectiveBriefExecutor) gatherWorldChanges(ctx context.Context, execCtx *ExecutionContext) []map[string]any {
	if e.World == nil {
		return nil
	}
	params := map[string]any{
		"turn_id":                     execCtx.TurnID,
		"include_entity_changes":      true,
		"include_environment_changes": true,
		"include_time_changes":        true,
	}
	start := time.Now()
	resp := e.World.Call(ctx, "get_recent_changes", params)
	execCtx.RecordCall(collaborator.TargetWorldContext, "get_recent_changes", params, resp.Data, time.Since(start), resp.Success)
	if !resp.Success {
		return nil
	}

	var relevant []map[string]any
	for _, change := range asMapSlice(resp.Data["changes"]) {
		if changeRelevantToParticipants(change, execCtx.Participants) {
			relevant = append(relevant, change)
		}
	}
	return relevant
}

func changeRelevantToParticipants(change map[string]any, participants []string) bool {
	roster := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		roster[p] = struct{}{}
	}
	for _, entity := range asStringSlice(change["affected_entities"]) {
		if _, ok := roster[entity]; ok {
			return true
		}
	}
	area, _ := change["area"].(string)
	return area == "global"
}

func (e *SubjectiveBriefExecutor) callAgent(ctx context.Context, execCtx *ExecutionContext, participant string) map[string]any {
	if e.Agent == nil {
		return nil
	}
	start := time.Now()
	resp := e.Agent.Call(ctx, "get_agent_context", map[string]any{"agent_id": participant})
	execCtx.RecordCall(collaborator.TargetAgentContext, "get_agent_context", map[string]any{"agent_id": participant}, resp.Data, time.Since(start), resp.Success)
	if !resp.Success {
		return nil
	}
	return resp.Data
}

func buildBriefPrompt(participant string, depth turnconfig.NarrativeDepth, agentCtx map[string]any, worldChanges []map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Brief for %s (depth=%s). ", participant, depth)
	if agentCtx != nil {
		fmt.Fprintf(&b, "State: %v. Goals: %v. ", agentCtx["state"], agentCtx["goals"])
	}
	if len(worldChanges) > 0 {
		fmt.Fprintf(&b, "Recent world changes (%d): ", len(worldChanges))
		for i, change := range worldChanges {
			if i > 0 {
				b.WriteString("; ")
			}
			kind, _ := change["change_type"].(string)
			if kind == "" {
				kind = "change"
			}
			if area, _ := change["area"].(string); area != "" {
				fmt.Fprintf(&b, "%s in %s", kind, area)
			} else {
				fmt.Fprintf(&b, "%s affecting %v", kind, change["affected_entities"])
			}
		}
		b.WriteString(".")
	}
	return b.String()
}

func isValidBrief(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	return len(strings.Fields(text)) >= 5
}

func recordAICost(execCtx *ExecutionContext, resp collaborator.Response, operation string) {
	tokens, _ := toInt64(resp.Data["tokens_used"])
	costMicros, _ := toInt64(resp.Data["cost_micros"])
	model, _ := resp.Data["model"].(string)
	execCtx.RecordAIOperation(AIOperation{
		Operation: operation,
		Model:     model,
		Cost:      money.Micros(costMicros),
		Tokens:    tokens,
	})
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func asMapSlice(v any) []map[string]any {
	switch list := v.(type) {
	case []map[string]any:
		return list
	case []any:
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func asStringSlice(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
