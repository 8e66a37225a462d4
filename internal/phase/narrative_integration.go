package phase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/marcus-qen/turnengine/internal/collaborator"
	"github.com/marcus-qen/turnengine/internal/errs"
	"github.com/marcus-qen/turnengine/internal/turnconfig"
)

var narrativeMaxTokensByDepth = map[turnconfig.NarrativeDepth]int{
	turnconfig.DepthBasic:         300,
	turnconfig.DepthStandard:      800,
	turnconfig.DepthDetailed:      1500,
	turnconfig.DepthComprehensive: 3000,
}

const narrativeEventVolumeBonusCap = 500

var defaultPerspectives = []string{"omniscient"}

// NarrativeIntegrationExecutor composes per-perspective narrative content
// from the turn's accumulated events and updates story arcs.
type NarrativeIntegrationExecutor struct {
	AI        collaborator.Client
	Narrative collaborator.Client
}

func NewNarrativeIntegrationExecutor(ai, narrative collaborator.Client) *NarrativeIntegrationExecutor {
	return &NarrativeIntegrationExecutor{AI: ai, Narrative: narrative}
}

func (e *NarrativeIntegrationExecutor) ValidatePreconditions(_ context.Context, execCtx *ExecutionContext) error {
	if execCtx.Configuration.AIEnabledForPhase(execCtx.PhaseType) {
		if e.AI == nil {
			return errs.New(errs.KindPrecondition, "ai gateway is not configured but AI is enabled for this phase")
		}
	}
	return nil
}

func (e *NarrativeIntegrationExecutor) Execute(ctx context.Context, execCtx *ExecutionContext) (Result, error) {
	if !execCtx.Configuration.AIEnabledForPhase(execCtx.PhaseType) {
		return Result{
			Success:         true,
			EventsProcessed: 0,
			Metadata:        map[string]any{"ai_integration_disabled": true},
		}, nil
	}

	allEvents := e.gatherTurnEvents(execCtx)
	perspectives := e.resolvePerspectives()

	depth := execCtx.Configuration.NarrativeDepth()
	maxTokens := narrativeMaxTokensByDepth[depth]
	if maxTokens == 0 {
		maxTokens = narrativeMaxTokensByDepth[turnconfig.DepthStandard]
	}
	bonus := len(allEvents) * 10
	if bonus > narrativeEventVolumeBonusCap {
		bonus = narrativeEventVolumeBonusCap
	}
	maxTokens += bonus

	valid := 0
	failures := 0
	generated := make([]string, 0, len(perspectives))

	for _, perspective := range perspectives {
		prompt := buildNarrativePrompt(perspective, depth, allEvents, execCtx.Configuration.NarrativeThemes())
		start := time.Now()
		resp := e.AI.Call(ctx, "generate", map[string]any{
			"prompt":      prompt,
			"max_tokens":  maxTokens,
			"temperature": execCtx.Configuration.AITemperature(),
			"model":       "narrative-model-" + string(depth),
		})
		execCtx.RecordCall(collaborator.TargetAIGateway, "generate", map[string]any{"perspective": perspective}, resp.Data, time.Since(start), resp.Success)
		if !resp.Success {
			failures++
			continue
		}
		recordAICost(execCtx, resp, "narrative_integration")
		text, _ := resp.Data["text"].(string)
		if !isValidNarrative(text, allEvents) {
			failures++
			continue
		}

		arcResp := e.Narrative.Call(ctx, "update_story_arc", map[string]any{"perspective": perspective, "content": text})
		execCtx.RecordCall(collaborator.TargetNarrativeContext, "update_story_arc", map[string]any{"perspective": perspective}, arcResp.Data, 0, arcResp.Success)

		valid++
		id := fmt.Sprintf("narrative_updated:%s", perspective)
		generated = append(generated, id)
		execCtx.AddGeneratedEvent(id)
	}

	success := len(perspectives) > 0 && float64(valid) > float64(len(perspectives))/2 && failures == 0
	if !success {
		return Result{}, errs.New(errs.KindInternal, fmt.Sprintf("narrative integration: %d/%d perspectives valid, %d failures", valid, len(perspectives), failures))
	}

	return Result{
		Success:         true,
		EventsProcessed: valid,
		EventsGenerated: generated,
	}, nil
}

func (e *NarrativeIntegrationExecutor) gatherTurnEvents(execCtx *ExecutionContext) []string {
	var events []string
	for _, prior := range execCtx.PriorPhases {
		events = append(events, fmt.Sprintf("events_generated:%d", prior.EventsGenerated))
	}
	return events
}

func (e *NarrativeIntegrationExecutor) resolvePerspectives() []string {
	return defaultPerspectives
}

func buildNarrativePrompt(perspective string, depth turnconfig.NarrativeDepth, events []string, themes []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Narrative (perspective=%s, depth=%s, events=%d, themes=%v).", perspective, depth, len(events), themes)
	return b.String()
}

func isValidNarrative(text string, events []string) bool {
	text = strings.TrimSpace(text)
	if len(text) < 50 {
		return false
	}
	if len(strings.Fields(text)) < 20 {
		return false
	}
	if len(events) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, kind := range []string{"world", "event", "entity", "interaction", "brief"} {
		if strings.Contains(lower, kind) {
			return true
		}
	}
	return false
}
