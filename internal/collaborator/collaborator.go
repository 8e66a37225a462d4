// Package collaborator implements the uniform call interface every phase
// executor uses to reach external logical contexts (world, agent,
// interaction, event, AI gateway, narrative): call(target, operation,
// parameters) -> response.
package collaborator

import (
	"context"
	"fmt"
)

// Response is the uniform envelope every collaborator call returns.
type Response struct {
	Success bool
	Data    map[string]any
	Error   *CallError
}

// CallError is the structured error payload surfaced when Success is false,
// including transport failures converted into the envelope.
type CallError struct {
	ErrorType    string
	ErrorMessage string
}

func (e *CallError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.ErrorType, e.ErrorMessage)
}

// Ok builds a successful response.
func Ok(data map[string]any) Response {
	return Response{Success: true, Data: data}
}

// Failed builds a failed response carrying a structured error.
func Failed(errorType, message string) Response {
	return Response{Success: false, Error: &CallError{ErrorType: errorType, ErrorMessage: message}}
}

// Client is implemented by every logical collaborator context.
type Client interface {
	// Call invokes one operation against this collaborator with the given
	// parameters and returns the uniform response envelope. Transport-level
	// exceptions must be converted to a Failed response, never returned as
	// a Go error that escapes the call boundary, so callers only ever branch
	// on Response.Success.
	Call(ctx context.Context, operation string, parameters map[string]any) Response
}

// Registry resolves a collaborator Client by its logical target name
// (world_context, interaction_context, event_context, ai_gateway,
// agent_context, narrative_context).
type Registry struct {
	clients map[string]Client
}

// NewRegistry builds a registry from named clients.
func NewRegistry(clients map[string]Client) *Registry {
	r := &Registry{clients: make(map[string]Client, len(clients))}
	for k, v := range clients {
		r.clients[k] = v
	}
	return r
}

// Resolve looks up a client by target name.
func (r *Registry) Resolve(target string) (Client, bool) {
	c, ok := r.clients[target]
	return c, ok
}

// Call resolves the target and invokes it, converting a missing
// registration into a Failed response rather than panicking — a phase
// executor calling an unconfigured collaborator is a collaborator-class
// failure, not a server-config error (that distinction belongs to the
// phase->executor map, see internal/pipeline).
func (r *Registry) Call(ctx context.Context, target, operation string, parameters map[string]any) Response {
	client, ok := r.Resolve(target)
	if !ok {
		return Failed("not_configured", fmt.Sprintf("no collaborator registered for target %q", target))
	}
	return client.Call(ctx, operation, parameters)
}

const (
	TargetWorldContext       = "world_context"
	TargetInteractionContext = "interaction_context"
	TargetEventContext       = "event_context"
	TargetAIGateway          = "ai_gateway"
	TargetAgentContext       = "agent_context"
	TargetNarrativeContext   = "narrative_context"
)
