// Package compensation implements the saga's compensating-action vocabulary:
// the CompensationType catalog and the CompensationAction record the saga
// coordinator plans and executes against a failed turn.
package compensation

import (
	"time"

	"github.com/marcus-qen/turnengine/internal/money"
	"github.com/marcus-qen/turnengine/internal/phasetype"
)

// Severity ranks how disruptive a compensation type is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Type enumerates the eight compensation actions the saga coordinator can
// plan.
type Type string

const (
	RollbackWorldState         Type = "rollback_world_state"
	InvalidateSubjectiveBriefs Type = "invalidate_subjective_briefs"
	CancelInteractions         Type = "cancel_interactions"
	RemoveEvents               Type = "remove_events"
	RevertNarrativeChanges     Type = "revert_narrative_changes"
	NotifyParticipants         Type = "notify_participants"
	LogFailure                 Type = "log_failure"
	TriggerManualReview        Type = "trigger_manual_review"
)

// descriptor is the static metadata attached to each compensation type:
// severity, whether it is destructive, its default timeout/cost, and the
// phases it is registered to compensate for.
type descriptor struct {
	severity       Severity
	destructive    bool
	defaultTimeout time.Duration
	defaultCost    money.Micros
	compensatesFor []phasetype.Type
}

var catalog = map[Type]descriptor{
	RollbackWorldState: {
		severity: SeverityHigh, destructive: true,
		defaultTimeout: 5 * time.Second, defaultCost: money.Micros(50_000),
		compensatesFor: []phasetype.Type{phasetype.WorldUpdate, phasetype.EventIntegration},
	},
	InvalidateSubjectiveBriefs: {
		severity: SeverityLow, destructive: false,
		defaultTimeout: 2 * time.Second, defaultCost: money.Micros(5_000),
		compensatesFor: []phasetype.Type{phasetype.SubjectiveBrief},
	},
	CancelInteractions: {
		severity: SeverityMedium, destructive: true,
		defaultTimeout: 3 * time.Second, defaultCost: money.Micros(10_000),
		compensatesFor: []phasetype.Type{phasetype.InteractionOrchestration},
	},
	RemoveEvents: {
		severity: SeverityHigh, destructive: true,
		defaultTimeout: 3 * time.Second, defaultCost: money.Micros(15_000),
		compensatesFor: []phasetype.Type{phasetype.EventIntegration},
	},
	RevertNarrativeChanges: {
		severity: SeverityMedium, destructive: false,
		defaultTimeout: 2 * time.Second, defaultCost: money.Micros(8_000),
		compensatesFor: []phasetype.Type{phasetype.NarrativeIntegration},
	},
	NotifyParticipants: {
		severity: SeverityLow, destructive: false,
		defaultTimeout: 2 * time.Second, defaultCost: money.Micros(1_000),
		compensatesFor: phasetype.All,
	},
	LogFailure: {
		severity: SeverityLow, destructive: false,
		defaultTimeout: 1 * time.Second, defaultCost: 0,
		compensatesFor: phasetype.All,
	},
	TriggerManualReview: {
		severity: SeverityCritical, destructive: false,
		defaultTimeout: 1 * time.Second, defaultCost: 0,
		compensatesFor: []phasetype.Type{phasetype.WorldUpdate, phasetype.EventIntegration},
	},
}

// Severity returns the catalog severity for a compensation type.
func (t Type) Severity() Severity { return catalog[t].severity }

// Destructive reports whether executing t mutates external state in a way
// that cannot be cleanly undone.
func (t Type) Destructive() bool { return catalog[t].destructive }

// DefaultTimeout is the execution timeout applied unless overridden.
func (t Type) DefaultTimeout() time.Duration { return catalog[t].defaultTimeout }

// DefaultCost is the nominal cost charged when executing t.
func (t Type) DefaultCost() money.Micros { return catalog[t].defaultCost }

// CompensatesFor lists the phases this type is registered against.
func (t Type) CompensatesFor() []phasetype.Type {
	return append([]phasetype.Type(nil), catalog[t].compensatesFor...)
}

// ForPhase returns the ordered compensation types the saga coordinator
// schedules when the given phase must be rolled back.
func ForPhase(phase phasetype.Type) []Type {
	switch phase {
	case phasetype.WorldUpdate:
		return []Type{RollbackWorldState, LogFailure, NotifyParticipants}
	case phasetype.SubjectiveBrief:
		return []Type{InvalidateSubjectiveBriefs, LogFailure}
	case phasetype.InteractionOrchestration:
		return []Type{CancelInteractions, NotifyParticipants, LogFailure}
	case phasetype.EventIntegration:
		return []Type{RemoveEvents, RollbackWorldState, LogFailure}
	case phasetype.NarrativeIntegration:
		return []Type{RevertNarrativeChanges, LogFailure}
	default:
		return nil
	}
}

// PriorityForSeverity maps severity to the base 1-10 priority scale.
func PriorityForSeverity(s Severity) int {
	switch s {
	case SeverityCritical:
		return 9
	case SeverityHigh:
		return 7
	case SeverityMedium:
		return 5
	default:
		return 3
	}
}
