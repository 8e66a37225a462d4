// Package turnconfig implements TurnConfiguration: the immutable set of
// knobs that govern one turn's execution (world-time advance, AI budget,
// narrative depth, per-phase timeouts, participant roster).
package turnconfig

import (
	"fmt"
	"time"

	"github.com/marcus-qen/turnengine/internal/money"
	"github.com/marcus-qen/turnengine/internal/phasetype"
)

// NarrativeDepth controls prompt verbosity and token budgets for the
// subjective-brief and narrative-integration phases.
type NarrativeDepth string

const (
	DepthBasic         NarrativeDepth = "basic"
	DepthStandard      NarrativeDepth = "standard"
	DepthDetailed      NarrativeDepth = "detailed"
	DepthComprehensive NarrativeDepth = "comprehensive"
)

func (d NarrativeDepth) valid() bool {
	switch d {
	case DepthBasic, DepthStandard, DepthDetailed, DepthComprehensive:
		return true
	default:
		return false
	}
}

// multiplier feeds estimatedAICost(); deeper narratives cost more per turn.
func (d NarrativeDepth) costMultiplier() float64 {
	switch d {
	case DepthBasic:
		return 1.0
	case DepthStandard:
		return 2.0
	case DepthDetailed:
		return 3.5
	case DepthComprehensive:
		return 6.0
	default:
		return 1.0
	}
}

var defaultPhaseTimeouts = map[phasetype.Type]time.Duration{
	phasetype.WorldUpdate:              5 * time.Second,
	phasetype.SubjectiveBrief:          10 * time.Second,
	phasetype.InteractionOrchestration: 12 * time.Second,
	phasetype.EventIntegration:         3 * time.Second,
	phasetype.NarrativeIntegration:     8 * time.Second,
}

const baseAICostPerTurn = money.Micros(500_000)    // $0.50 base
const perParticipantAICost = money.Micros(200_000) // $0.20/participant

// TurnConfiguration is immutable once built by New/Builder.Build.
type TurnConfiguration struct {
	worldTimeAdvance       time.Duration
	aiIntegrationEnabled   bool
	narrativeDepth         NarrativeDepth
	maxExecutionTime       time.Duration
	rollbackEnabled        bool
	maxAICost              money.Micros
	hasMaxAICost           bool
	maxMemoryMB            int
	maxConcurrency         int
	participants           []string
	excludedAgents         map[string]struct{}
	requiredAgents         map[string]struct{}
	phaseTimeouts          map[phasetype.Type]time.Duration
	aiTemperature          float64
	aiMaxTokens            int
	narrativeThemes        []string
	failFastOnPhaseFailure bool
	maxParticipants        int
}

// Builder constructs a TurnConfiguration field by field.
type Builder struct {
	cfg TurnConfiguration
}

// NewBuilder seeds a builder with the documented defaults.
func NewBuilder(participants []string) *Builder {
	timeouts := make(map[phasetype.Type]time.Duration, len(defaultPhaseTimeouts))
	for k, v := range defaultPhaseTimeouts {
		timeouts[k] = v
	}
	return &Builder{cfg: TurnConfiguration{
		worldTimeAdvance:     60 * time.Second,
		aiIntegrationEnabled: true,
		narrativeDepth:       DepthStandard,
		maxExecutionTime:     60 * time.Second,
		rollbackEnabled:      true,
		maxMemoryMB:          512,
		maxConcurrency:       4,
		participants:         append([]string(nil), participants...),
		excludedAgents:       map[string]struct{}{},
		requiredAgents:       map[string]struct{}{},
		phaseTimeouts:        timeouts,
		aiTemperature:        0.7,
		aiMaxTokens:          1000,
		maxParticipants:      10,
	}}
}

func (b *Builder) WithWorldTimeAdvance(d time.Duration) *Builder {
	b.cfg.worldTimeAdvance = d
	return b
}
func (b *Builder) WithAIIntegrationEnabled(v bool) *Builder {
	b.cfg.aiIntegrationEnabled = v
	return b
}
func (b *Builder) WithNarrativeDepth(d NarrativeDepth) *Builder {
	b.cfg.narrativeDepth = d
	return b
}
func (b *Builder) WithMaxExecutionTime(d time.Duration) *Builder {
	b.cfg.maxExecutionTime = d
	return b
}
func (b *Builder) WithRollbackEnabled(v bool) *Builder {
	b.cfg.rollbackEnabled = v
	return b
}
func (b *Builder) WithMaxAICost(m money.Micros) *Builder {
	b.cfg.maxAICost = m
	b.cfg.hasMaxAICost = true
	return b
}
func (b *Builder) WithMaxMemoryMB(v int) *Builder {
	b.cfg.maxMemoryMB = v
	return b
}
func (b *Builder) WithMaxConcurrency(v int) *Builder {
	b.cfg.maxConcurrency = v
	return b
}
func (b *Builder) WithExcludedAgents(agents ...string) *Builder {
	for _, a := range agents {
		b.cfg.excludedAgents[a] = struct{}{}
	}
	return b
}
func (b *Builder) WithRequiredAgents(agents ...string) *Builder {
	for _, a := range agents {
		b.cfg.requiredAgents[a] = struct{}{}
	}
	return b
}
func (b *Builder) WithPhaseTimeout(phase phasetype.Type, d time.Duration) *Builder {
	b.cfg.phaseTimeouts[phase] = d
	return b
}
func (b *Builder) WithAITemperature(v float64) *Builder {
	b.cfg.aiTemperature = v
	return b
}
func (b *Builder) WithAIMaxTokens(v int) *Builder {
	b.cfg.aiMaxTokens = v
	return b
}
func (b *Builder) WithNarrativeThemes(themes ...string) *Builder {
	b.cfg.narrativeThemes = append([]string(nil), themes...)
	return b
}
func (b *Builder) WithFailFastOnPhaseFailure(v bool) *Builder {
	b.cfg.failFastOnPhaseFailure = v
	return b
}
func (b *Builder) WithMaxParticipants(v int) *Builder {
	b.cfg.maxParticipants = v
	return b
}

// Build freezes the configuration. Callers must still call Validate() to
// check cross-field invariants; Build only copies internal maps/slices so
// the returned value is safe to share.
func (b *Builder) Build() TurnConfiguration {
	cfg := b.cfg
	cfg.participants = append([]string(nil), b.cfg.participants...)
	cfg.narrativeThemes = append([]string(nil), b.cfg.narrativeThemes...)
	cfg.excludedAgents = cloneSet(b.cfg.excludedAgents)
	cfg.requiredAgents = cloneSet(b.cfg.requiredAgents)
	cfg.phaseTimeouts = make(map[phasetype.Type]time.Duration, len(b.cfg.phaseTimeouts))
	for k, v := range b.cfg.phaseTimeouts {
		cfg.phaseTimeouts[k] = v
	}
	return cfg
}

func cloneSet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

// Default builds a valid, fully-defaulted configuration for participants.
func Default(participants []string) TurnConfiguration {
	return NewBuilder(participants).Build()
}

func (c TurnConfiguration) WorldTimeAdvance() time.Duration { return c.worldTimeAdvance }
func (c TurnConfiguration) AIIntegrationEnabled() bool      { return c.aiIntegrationEnabled }
func (c TurnConfiguration) NarrativeDepth() NarrativeDepth  { return c.narrativeDepth }
func (c TurnConfiguration) MaxExecutionTime() time.Duration { return c.maxExecutionTime }
func (c TurnConfiguration) RollbackEnabled() bool           { return c.rollbackEnabled }
func (c TurnConfiguration) MaxMemoryMB() int                { return c.maxMemoryMB }
func (c TurnConfiguration) MaxConcurrency() int             { return c.maxConcurrency }
func (c TurnConfiguration) Participants() []string          { return append([]string(nil), c.participants...) }
func (c TurnConfiguration) AITemperature() float64          { return c.aiTemperature }
func (c TurnConfiguration) AIMaxTokens() int                { return c.aiMaxTokens }
func (c TurnConfiguration) NarrativeThemes() []string {
	return append([]string(nil), c.narrativeThemes...)
}
func (c TurnConfiguration) FailFastOnPhaseFailure() bool { return c.failFastOnPhaseFailure }
func (c TurnConfiguration) MaxParticipants() int         { return c.maxParticipants }

// MaxAICost returns the configured cost ceiling, if any.
func (c TurnConfiguration) MaxAICost() (money.Micros, bool) { return c.maxAICost, c.hasMaxAICost }

func (c TurnConfiguration) IsExcluded(agent string) bool {
	_, ok := c.excludedAgents[agent]
	return ok
}

func (c TurnConfiguration) IsRequired(agent string) bool {
	_, ok := c.requiredAgents[agent]
	return ok
}

// IsPhaseEnabled reports whether a phase should run. AI-only phases
// (subjective_brief, narrative_integration) still run when AI is disabled —
// they degrade to a trivial success rather than being skipped, keeping the
// five-phase event stream intact, so every phase is "enabled" unless a
// future extension adds explicit per-phase toggles. This hook exists so the
// pipeline loop has a single place to consult.
func (c TurnConfiguration) IsPhaseEnabled(phasetype.Type) bool { return true }

// PhaseTimeout returns the configured timeout for a phase, falling back to
// the built-in default if the phase is somehow missing from the map.
func (c TurnConfiguration) PhaseTimeout(phase phasetype.Type) time.Duration {
	if d, ok := c.phaseTimeouts[phase]; ok {
		return d
	}
	return defaultPhaseTimeouts[phase]
}

// AIEnabledForPhase is true only for the two phases that call the AI
// gateway, and only when AI integration is enabled overall.
func (c TurnConfiguration) AIEnabledForPhase(phase phasetype.Type) bool {
	if !c.aiIntegrationEnabled {
		return false
	}
	return phase == phasetype.SubjectiveBrief || phase == phasetype.NarrativeIntegration
}

// EstimatedAICost projects the cost of running both AI phases once, using
// the narrative depth multiplier and a per-participant surcharge. Zero when
// AI integration is disabled.
func (c TurnConfiguration) EstimatedAICost() money.Micros {
	if !c.aiIntegrationEnabled {
		return 0
	}
	base := money.Micros(float64(baseAICostPerTurn) * c.narrativeDepth.costMultiplier())
	perParticipant := money.MulTokens(perParticipantAICost, int64(len(c.participants)))
	return base.Add(perParticipant)
}

// TotalPhaseTimeout sums the configured timeout of every phase.
func (c TurnConfiguration) TotalPhaseTimeout() time.Duration {
	var total time.Duration
	for _, phase := range phasetype.All {
		total += c.PhaseTimeout(phase)
	}
	return total
}

// Validate returns every invariant violation found, or nil if the
// configuration is well-formed. It never panics or mutates c.
func (c TurnConfiguration) Validate() []error {
	var errs []error

	if c.worldTimeAdvance <= 0 {
		errs = append(errs, fmt.Errorf("world_time_advance must be > 0"))
	}
	if !c.narrativeDepth.valid() {
		errs = append(errs, fmt.Errorf("narrative_analysis_depth %q is not one of basic/standard/detailed/comprehensive", c.narrativeDepth))
	}
	if c.maxExecutionTime <= 0 {
		errs = append(errs, fmt.Errorf("max_execution_time_ms must be > 0"))
	}
	for _, phase := range phasetype.All {
		if c.PhaseTimeout(phase) <= 0 {
			errs = append(errs, fmt.Errorf("phase_timeout[%s] must be > 0", phase))
		}
	}
	if c.aiTemperature < 0 || c.aiTemperature > 2 {
		errs = append(errs, fmt.Errorf("ai_temperature must be within [0, 2], got %v", c.aiTemperature))
	}
	if c.aiMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("ai_max_tokens must be > 0"))
	}
	if len(c.participants) == 0 {
		errs = append(errs, fmt.Errorf("participants must not be empty"))
	}
	if c.maxParticipants > 0 && len(c.participants) > c.maxParticipants {
		errs = append(errs, fmt.Errorf("participants count %d exceeds max_participants %d", len(c.participants), c.maxParticipants))
	}
	for excluded := range c.excludedAgents {
		if c.requiredAgents != nil {
			if _, ok := c.requiredAgents[excluded]; ok {
				errs = append(errs, fmt.Errorf("agent %q is both excluded and required", excluded))
			}
		}
	}
	participantSet := make(map[string]struct{}, len(c.participants))
	for _, p := range c.participants {
		participantSet[p] = struct{}{}
	}
	for required := range c.requiredAgents {
		if _, ok := participantSet[required]; !ok {
			errs = append(errs, fmt.Errorf("required agent %q is not a participant", required))
		}
	}

	if c.TotalPhaseTimeout() > c.maxExecutionTime {
		errs = append(errs, fmt.Errorf("sum of phase timeouts (%s) exceeds max_execution_time_ms (%s)", c.TotalPhaseTimeout(), c.maxExecutionTime))
	}
	if max, has := c.MaxAICost(); has {
		if max <= 0 {
			errs = append(errs, fmt.Errorf("max_ai_cost must be > 0 when set"))
		} else if estimate := c.EstimatedAICost(); estimate > max {
			errs = append(errs, fmt.Errorf("estimated ai cost (%s) exceeds max_ai_cost (%s)", estimate, max))
		}
	}

	return errs
}
