package turn

import (
	"time"

	"github.com/google/uuid"
)

// AuditEntry is one internal audit-trail record appended on every state
// transition and phase boundary.
type AuditEntry struct {
	Timestamp time.Time
	Kind      string
	State     State
	Version   int64
	Payload   map[string]any
}

// DomainEvent is one outward-facing event appended to the turn's event
// trail for external consumption.
type DomainEvent struct {
	EventID     string
	AggregateID string
	Version     int64
	Kind        string
	Payload     map[string]any
	OccurredAt  time.Time
}

// Event kinds emitted over a turn's lifecycle.
const (
	EventTurnCreated                 = "turn-created"
	EventPlanningStarted             = "planning-started"
	EventExecutionStarted            = "execution-started"
	EventPhaseStarted                = "phase-started"
	EventPhaseCompleted              = "phase-completed"
	EventPhaseFailed                 = "phase-failed"
	EventCompensationInitiated       = "compensation-initiated"
	EventCompensationActionCompleted = "compensation-action-completed"
	EventCompensationActionFailed    = "compensation-action-failed"
	EventTurnCompleted               = "turn-completed"
	EventTurnFailed                  = "turn-failed"
	EventTurnCompensationCompleted   = "turn-compensation-completed"
)

// emit appends both the internal audit entry and the outward domain event
// for one state-machine transition, bumping Version exactly once. Every
// mutating Turn method funnels through this so the two trails never drift
// apart.
func (t *Turn) emit(kind string, payload map[string]any) {
	t.Version++
	now := time.Now().UTC()
	t.UpdatedAt = now

	t.AuditTrail = append(t.AuditTrail, AuditEntry{
		Timestamp: now,
		Kind:      kind,
		State:     t.State,
		Version:   t.Version,
		Payload:   clonePayload(payload),
	})
	t.Events = append(t.Events, DomainEvent{
		EventID:     uuid.NewString(),
		AggregateID: t.TurnID,
		Version:     t.Version,
		Kind:        kind,
		Payload:     clonePayload(payload),
		OccurredAt:  now,
	})
}

func clonePayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
