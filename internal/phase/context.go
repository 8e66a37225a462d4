package phase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcus-qen/turnengine/internal/phasetype"
	"github.com/marcus-qen/turnengine/internal/turnconfig"
)

// PriorPhaseSummary is the slice of a previous phase's result that gets
// threaded forward so later phases can chain on it.
type PriorPhaseSummary struct {
	Success         bool
	EventsProcessed int
	EventsGenerated int
	Artifacts       []string
	Metadata        map[string]any
}

// ExecutionContext carries everything one phase invocation needs plus the
// mutable scratch buffers the framework and phase populate as they run. It
// belongs to the worker driving one turn; the scratch buffers are guarded by
// a mutex because Run executes the phase on its own goroutine.
type ExecutionContext struct {
	mu sync.Mutex

	TurnID        string
	PhaseType     phasetype.Type
	Configuration turnconfig.TurnConfiguration
	Participants  []string
	PriorPhases   map[string]PriorPhaseSummary
	ExecutionMeta map[string]any

	startedAt time.Time

	crossContextCalls  []CrossContextCall
	aiUsage            AIUsage
	eventsGenerated    []string
	eventsConsumed     []string
	artifacts          []string
	rollbackSnapshots  map[string]any
	performanceMetrics map[string]float64
}

// NewExecutionContext builds a context for one phase invocation.
func NewExecutionContext(turnID string, phaseType phasetype.Type, cfg turnconfig.TurnConfiguration, participants []string, priorPhases map[string]PriorPhaseSummary) *ExecutionContext {
	return &ExecutionContext{
		TurnID:             turnID,
		PhaseType:          phaseType,
		Configuration:      cfg,
		Participants:       append([]string(nil), participants...),
		PriorPhases:        priorPhases,
		ExecutionMeta:      map[string]any{},
		startedAt:          time.Now(),
		rollbackSnapshots:  map[string]any{},
		performanceMetrics: map[string]float64{},
	}
}

// ExecutionTimeMs returns elapsed time since the context was created.
func (c *ExecutionContext) ExecutionTimeMs() int64 {
	return time.Since(c.startedAt).Milliseconds()
}

// RecordCall appends a cross-context collaborator call to the log and
// returns its call id, for use by collaborator.Client wrappers.
func (c *ExecutionContext) RecordCall(target, operation string, parameters, response map[string]any, responseTime time.Duration, success bool) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.NewString()
	c.crossContextCalls = append(c.crossContextCalls, CrossContextCall{
		CallID:         id,
		Timestamp:      time.Now().UnixMilli(),
		Target:         target,
		Operation:      operation,
		Parameters:     parameters,
		Response:       response,
		ResponseTimeMs: responseTime.Milliseconds(),
		Success:        success,
	})
	return id
}

// RecordAIOperation tracks one AI-gateway call's cost/tokens.
func (c *ExecutionContext) RecordAIOperation(op AIOperation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aiUsage.AddOperation(op)
}

// AIUsage returns a snapshot of the accumulated AI usage, or nil if no AI
// calls were made, so Result.AIUsage stays nil rather than a zero-valued
// struct.
func (c *ExecutionContext) AIUsage() *AIUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.aiUsage.Operations) == 0 {
		return nil
	}
	usage := c.aiUsage
	usage.Operations = append([]AIOperation(nil), c.aiUsage.Operations...)
	return &usage
}

func (c *ExecutionContext) AddGeneratedEvent(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventsGenerated = append(c.eventsGenerated, id)
}

func (c *ExecutionContext) AddConsumedEvent(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventsConsumed = append(c.eventsConsumed, id)
}

func (c *ExecutionContext) AddArtifact(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.artifacts = append(c.artifacts, id)
}

func (c *ExecutionContext) SetRollbackSnapshot(key string, snapshot any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollbackSnapshots[key] = snapshot
}

func (c *ExecutionContext) RollbackSnapshots() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.rollbackSnapshots))
	for k, v := range c.rollbackSnapshots {
		out[k] = v
	}
	return out
}

func (c *ExecutionContext) SetPerformanceMetric(key string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.performanceMetrics[key] = value
}

// CrossContextCalls returns a snapshot of the recorded collaborator calls.
func (c *ExecutionContext) CrossContextCalls() []CrossContextCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CrossContextCall(nil), c.crossContextCalls...)
}

// EventsGenerated returns a snapshot of generated event ids.
func (c *ExecutionContext) EventsGenerated() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.eventsGenerated...)
}

// Artifacts returns a snapshot of created artifact ids.
func (c *ExecutionContext) Artifacts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.artifacts...)
}

// PerformanceMetrics returns a snapshot of recorded metrics.
func (c *ExecutionContext) PerformanceMetrics() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.performanceMetrics))
	for k, v := range c.performanceMetrics {
		out[k] = v
	}
	return out
}

// Deadline returns a context.Context bound to this phase's configured
// timeout, and the cancel function the framework must call.
func (c *ExecutionContext) Deadline(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, c.Configuration.PhaseTimeout(c.PhaseType))
}
