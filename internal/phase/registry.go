package phase

import (
	"fmt"

	"github.com/marcus-qen/turnengine/internal/collaborator"
	"github.com/marcus-qen/turnengine/internal/phasetype"
)

// ExecutorRegistry maps each phase to the Executor that implements it. A
// missing entry is a server-configuration error discovered at startup, not
// a runtime failure.
type ExecutorRegistry struct {
	executors map[phasetype.Type]Executor
}

// NewExecutorRegistry wires the five stock executors against the given
// collaborator registry.
func NewExecutorRegistry(collaborators *collaborator.Registry) (*ExecutorRegistry, error) {
	world, _ := collaborators.Resolve(collaborator.TargetWorldContext)
	agent, _ := collaborators.Resolve(collaborator.TargetAgentContext)
	ai, _ := collaborators.Resolve(collaborator.TargetAIGateway)
	interaction, _ := collaborators.Resolve(collaborator.TargetInteractionContext)
	event, _ := collaborators.Resolve(collaborator.TargetEventContext)
	narrative, _ := collaborators.Resolve(collaborator.TargetNarrativeContext)

	r := &ExecutorRegistry{executors: map[phasetype.Type]Executor{
		phasetype.WorldUpdate:              NewWorldUpdateExecutor(world),
		phasetype.SubjectiveBrief:          NewSubjectiveBriefExecutor(ai, agent, world),
		phasetype.InteractionOrchestration: NewInteractionOrchestrationExecutor(interaction, world),
		phasetype.EventIntegration:         NewEventIntegrationExecutor(event),
		phasetype.NarrativeIntegration:     NewNarrativeIntegrationExecutor(ai, narrative),
	}}
	for _, p := range phasetype.All {
		if _, ok := r.executors[p]; !ok {
			return nil, fmt.Errorf("executor registry: no executor registered for phase %s", p)
		}
	}
	return r, nil
}

// Resolve returns the executor for a phase, and false if none is registered.
func (r *ExecutorRegistry) Resolve(phase phasetype.Type) (Executor, bool) {
	e, ok := r.executors[phase]
	return e, ok
}

// Register overrides or adds an executor, primarily for tests.
func (r *ExecutorRegistry) Register(phase phasetype.Type, executor Executor) {
	r.executors[phase] = executor
}
