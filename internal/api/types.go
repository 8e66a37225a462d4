package api

import "time"

// RunRequest is the body of POST /v1/turns:run.
type RunRequest struct {
	Participants   []string       `json:"participants"`
	Configuration  map[string]any `json:"configuration,omitempty"`
	TurnID         string         `json:"turn_id,omitempty"`
	AsyncExecution bool           `json:"async_execution"`
}

// PhaseResultView is the per-phase slice of a TurnExecutionResponse.
type PhaseResultView struct {
	Phase            string   `json:"phase"`
	Success          bool     `json:"success"`
	ExecutionTimeMs  int64    `json:"execution_time_ms"`
	EventsProcessed  int      `json:"events_processed"`
	EventsGenerated  int      `json:"events_generated"`
	ArtifactsCreated []string `json:"artifacts_created"`
	AICost           *float64 `json:"ai_cost,omitempty"`
	ErrorMessage     string   `json:"error_message,omitempty"`
}

// CompensationActionView is one entry in a TurnExecutionResponse's
// compensation_actions list.
type CompensationActionView struct {
	ActionID         string    `json:"action_id"`
	CompensationType string    `json:"compensation_type"`
	TargetPhase      string    `json:"target_phase"`
	TriggeredAt      time.Time `json:"triggered_at"`
	Status           string    `json:"status"`
}

// TurnExecutionResponse is the response body for both sync and async
// POST /v1/turns:run.
type TurnExecutionResponse struct {
	TurnID              string                     `json:"turn_id"`
	Success             bool                       `json:"success"`
	ExecutionTimeMs     int64                      `json:"execution_time_ms"`
	PhasesCompleted     []string                   `json:"phases_completed"`
	PhaseResults        map[string]PhaseResultView `json:"phase_results"`
	CompensationActions []CompensationActionView   `json:"compensation_actions"`
	PerformanceMetrics  map[string]any             `json:"performance_metrics"`
	ErrorDetails        map[string]any             `json:"error_details,omitempty"`
	CompletedAt         time.Time                  `json:"completed_at"`
	CleanupToken        string                     `json:"cleanup_token,omitempty"`
}

// StatusResponse is the response body for GET /v1/turns/{id}/status.
type StatusResponse struct {
	TurnID          string   `json:"turn_id"`
	Status          string   `json:"status"`
	Progress        *float64 `json:"progress,omitempty"`
	ExecutionTimeMs *int64   `json:"execution_time_ms,omitempty"`
	CurrentPhase    string   `json:"current_phase,omitempty"`
}

// ListResponse is the response body for GET /v1/turns.
type ListResponse struct {
	Turns []StatusResponse `json:"turns"`
	Count int              `json:"count"`
}

// EventView is one domain event in an EventsResponse.
type EventView struct {
	EventID    string         `json:"event_id"`
	Version    int64          `json:"version"`
	Kind       string         `json:"kind"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// EventsResponse is the response body for GET /v1/turns/{id}/events. Events
// are populated once the turn reaches a terminal state.
type EventsResponse struct {
	TurnID string      `json:"turn_id"`
	Status string      `json:"status"`
	Events []EventView `json:"events"`
	Count  int         `json:"count"`
}

// CleanupResponse is the response body for DELETE /v1/turns/{id}.
type CleanupResponse struct {
	Status string `json:"status"`
	TurnID string `json:"turn_id"`
}

// HealthResponse is the response body for GET /v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	ActiveTurns   int    `json:"active_turns"`
	MaxConcurrent int    `json:"max_concurrent_turns"`
}

// ErrorResponse is the error envelope for 4xx/5xx responses.
type ErrorResponse struct {
	Detail    any    `json:"detail"`
	ErrorType string `json:"error_type"`
}
