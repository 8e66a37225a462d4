package api

import (
	"fmt"
	"time"

	"github.com/marcus-qen/turnengine/internal/money"
	"github.com/marcus-qen/turnengine/internal/phasetype"
	"github.com/marcus-qen/turnengine/internal/turnconfig"
)

// buildConfiguration turns the request's free-form "configuration" JSON
// object into a turnconfig.TurnConfiguration, starting from the documented
// defaults and overriding only the fields the caller supplied. Unknown keys
// are ignored rather than rejected — forward-compatible with future knobs.
func buildConfiguration(participants []string, raw map[string]any) (turnconfig.TurnConfiguration, error) {
	b := turnconfig.NewBuilder(participants)

	if v, ok := raw["world_time_advance"]; ok {
		secs, err := asFloat(v, "world_time_advance")
		if err != nil {
			return turnconfig.TurnConfiguration{}, err
		}
		b.WithWorldTimeAdvance(time.Duration(secs * float64(time.Second)))
	}
	if v, ok := raw["ai_integration_enabled"]; ok {
		enabled, ok := v.(bool)
		if !ok {
			return turnconfig.TurnConfiguration{}, fmt.Errorf("ai_integration_enabled must be a bool")
		}
		b.WithAIIntegrationEnabled(enabled)
	}
	if v, ok := raw["narrative_analysis_depth"]; ok {
		depth, ok := v.(string)
		if !ok {
			return turnconfig.TurnConfiguration{}, fmt.Errorf("narrative_analysis_depth must be a string")
		}
		b.WithNarrativeDepth(turnconfig.NarrativeDepth(depth))
	}
	if v, ok := raw["max_execution_time_ms"]; ok {
		ms, err := asFloat(v, "max_execution_time_ms")
		if err != nil {
			return turnconfig.TurnConfiguration{}, err
		}
		b.WithMaxExecutionTime(time.Duration(ms * float64(time.Millisecond)))
	}
	if v, ok := raw["rollback_enabled"]; ok {
		enabled, ok := v.(bool)
		if !ok {
			return turnconfig.TurnConfiguration{}, fmt.Errorf("rollback_enabled must be a bool")
		}
		b.WithRollbackEnabled(enabled)
	}
	if v, ok := raw["max_ai_cost"]; ok {
		dollars, err := asFloat(v, "max_ai_cost")
		if err != nil {
			return turnconfig.TurnConfiguration{}, err
		}
		b.WithMaxAICost(money.FromDollars(dollars))
	}
	if v, ok := raw["max_memory_mb"]; ok {
		n, err := asFloat(v, "max_memory_mb")
		if err != nil {
			return turnconfig.TurnConfiguration{}, err
		}
		b.WithMaxMemoryMB(int(n))
	}
	if v, ok := raw["max_concurrency"]; ok {
		n, err := asFloat(v, "max_concurrency")
		if err != nil {
			return turnconfig.TurnConfiguration{}, err
		}
		b.WithMaxConcurrency(int(n))
	}
	if v, ok := raw["excluded_agents"]; ok {
		agents, err := asStringSlice(v, "excluded_agents")
		if err != nil {
			return turnconfig.TurnConfiguration{}, err
		}
		b.WithExcludedAgents(agents...)
	}
	if v, ok := raw["required_agents"]; ok {
		agents, err := asStringSlice(v, "required_agents")
		if err != nil {
			return turnconfig.TurnConfiguration{}, err
		}
		b.WithRequiredAgents(agents...)
	}
	if v, ok := raw["phase_timeouts"]; ok {
		timeouts, ok := v.(map[string]any)
		if !ok {
			return turnconfig.TurnConfiguration{}, fmt.Errorf("phase_timeouts must be an object")
		}
		for name, tv := range timeouts {
			p, ok := phasetype.Parse(name)
			if !ok {
				return turnconfig.TurnConfiguration{}, fmt.Errorf("phase_timeouts: unknown phase %q", name)
			}
			secs, err := asFloat(tv, "phase_timeouts["+name+"]")
			if err != nil {
				return turnconfig.TurnConfiguration{}, err
			}
			b.WithPhaseTimeout(p, time.Duration(secs*float64(time.Second)))
		}
	}
	if v, ok := raw["ai_temperature"]; ok {
		temp, err := asFloat(v, "ai_temperature")
		if err != nil {
			return turnconfig.TurnConfiguration{}, err
		}
		b.WithAITemperature(temp)
	}
	if v, ok := raw["ai_max_tokens"]; ok {
		n, err := asFloat(v, "ai_max_tokens")
		if err != nil {
			return turnconfig.TurnConfiguration{}, err
		}
		b.WithAIMaxTokens(int(n))
	}
	if v, ok := raw["narrative_themes"]; ok {
		themes, err := asStringSlice(v, "narrative_themes")
		if err != nil {
			return turnconfig.TurnConfiguration{}, err
		}
		b.WithNarrativeThemes(themes...)
	}
	if v, ok := raw["fail_fast_on_phase_failure"]; ok {
		ff, ok := v.(bool)
		if !ok {
			return turnconfig.TurnConfiguration{}, fmt.Errorf("fail_fast_on_phase_failure must be a bool")
		}
		b.WithFailFastOnPhaseFailure(ff)
	}
	if v, ok := raw["max_participants"]; ok {
		n, err := asFloat(v, "max_participants")
		if err != nil {
			return turnconfig.TurnConfiguration{}, err
		}
		b.WithMaxParticipants(int(n))
	}

	return b.Build(), nil
}

func asFloat(v any, field string) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%s must be a number", field)
	}
}

func asStringSlice(v any, field string) ([]string, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array of strings", field)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s entries must be strings", field)
		}
		out = append(out, s)
	}
	return out, nil
}
