package turnconfig_test

import (
	"testing"
	"time"

	"github.com/marcus-qen/turnengine/internal/money"
	"github.com/marcus-qen/turnengine/internal/phasetype"
	"github.com/marcus-qen/turnengine/internal/turnconfig"
)

func TestDefaultConfigurationIsValid(t *testing.T) {
	cfg := turnconfig.Default([]string{"alice", "bob"})
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("expected default config to validate, got errors: %v", errs)
	}
}

func TestAIEnabledOnlyForBriefAndNarrative(t *testing.T) {
	cfg := turnconfig.Default([]string{"alice"})
	for _, phase := range phasetype.All {
		want := phase == phasetype.SubjectiveBrief || phase == phasetype.NarrativeIntegration
		if got := cfg.AIEnabledForPhase(phase); got != want {
			t.Errorf("AIEnabledForPhase(%s) = %v, want %v", phase, got, want)
		}
	}
}

func TestAIEnabledForPhaseRespectsGlobalToggle(t *testing.T) {
	cfg := turnconfig.NewBuilder([]string{"alice"}).WithAIIntegrationEnabled(false).Build()
	if cfg.AIEnabledForPhase(phasetype.SubjectiveBrief) {
		t.Error("expected AI-disabled config to report false for every phase")
	}
	if cfg.EstimatedAICost() != 0 {
		t.Error("expected zero estimated cost when AI is disabled")
	}
}

func TestValidateRejectsTimeoutOverrun(t *testing.T) {
	cfg := turnconfig.NewBuilder([]string{"a"}).
		WithMaxExecutionTime(1 * time.Millisecond).
		Build()
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("expected timeout-overrun validation error")
	}
}

func TestValidateRejectsAICostOverrun(t *testing.T) {
	cfg := turnconfig.NewBuilder([]string{"a", "b", "c"}).
		WithMaxAICost(money.FromDollars(0.01)).
		Build()
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("expected ai-cost-overrun validation error")
	}
}

func TestValidateRejectsRequiredNotInParticipants(t *testing.T) {
	cfg := turnconfig.NewBuilder([]string{"a"}).WithRequiredAgents("ghost").Build()
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("expected required-agent validation error")
	}
}

func TestPhaseTimeoutDefaults(t *testing.T) {
	cfg := turnconfig.Default([]string{"a"})
	want := map[phasetype.Type]time.Duration{
		phasetype.WorldUpdate:              5 * time.Second,
		phasetype.SubjectiveBrief:          10 * time.Second,
		phasetype.InteractionOrchestration: 12 * time.Second,
		phasetype.EventIntegration:         3 * time.Second,
		phasetype.NarrativeIntegration:     8 * time.Second,
	}
	for phase, d := range want {
		if got := cfg.PhaseTimeout(phase); got != d {
			t.Errorf("PhaseTimeout(%s) = %s, want %s", phase, got, d)
		}
	}
}
