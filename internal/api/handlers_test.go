package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marcus-qen/turnengine/internal/api"
	"github.com/marcus-qen/turnengine/internal/collaborator"
	"github.com/marcus-qen/turnengine/internal/phase"
	"github.com/marcus-qen/turnengine/internal/pipeline"
	"github.com/marcus-qen/turnengine/internal/registry"
	"github.com/marcus-qen/turnengine/internal/saga"
)

// criticalWorld reports critical consistency issues from validate_consistency
// while behaving normally otherwise, forcing the world_update phase to fail.
type criticalWorld struct {
	inner collaborator.Client
}

func (w criticalWorld) Call(ctx context.Context, operation string, parameters map[string]any) collaborator.Response {
	if operation == "validate_consistency" {
		return collaborator.Ok(map[string]any{"critical_issues": []string{"entity ledger out of sync"}})
	}
	return w.inner.Call(ctx, operation, parameters)
}

type serverOptions struct {
	collaborators *collaborator.Registry
	maxConcurrent int
	cleanupSecret []byte
}

func newTestHandler(t *testing.T, opts serverOptions) (http.Handler, *registry.Registry) {
	t.Helper()
	collabs := opts.collaborators
	if collabs == nil {
		collabs = collaborator.DefaultRegistry()
	}
	executors, err := phase.NewExecutorRegistry(collabs)
	if err != nil {
		t.Fatalf("NewExecutorRegistry: %v", err)
	}
	orchestrator := pipeline.New(executors, saga.New(nil), nil)
	reg := registry.New()
	maxConcurrent := opts.maxConcurrent
	if maxConcurrent == 0 {
		maxConcurrent = 3
	}
	srv := api.New(orchestrator, reg, api.NewKPITracker(time.Hour), nil, maxConcurrent)
	if len(opts.cleanupSecret) > 0 {
		srv.SetCleanupSecret(opts.cleanupSecret)
	}
	return srv.Routes(), reg
}

func postRun(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/turns:run", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeRun(t *testing.T, rec *httptest.ResponseRecorder) api.TurnExecutionResponse {
	t.Helper()
	var resp api.TurnExecutionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode run response: %v (body %s)", err, rec.Body.String())
	}
	return resp
}

const happyPathBody = `{
	"participants": ["alice", "bob"],
	"configuration": {
		"ai_integration_enabled": false,
		"world_time_advance": 60,
		"narrative_analysis_depth": "basic",
		"max_execution_time_ms": 15000,
		"phase_timeouts": {
			"world_update": 2, "subjective_brief": 3, "interaction_orchestration": 3,
			"event_integration": 2, "narrative_integration": 3
		}
	},
	"async_execution": false
}`

func TestRunSyncHappyPathAIDisabled(t *testing.T) {
	handler, _ := newTestHandler(t, serverOptions{})
	rec := postRun(t, handler, happyPathBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeRun(t, rec)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	want := []string{"world_update", "subjective_brief", "interaction_orchestration", "event_integration", "narrative_integration"}
	if len(resp.PhasesCompleted) != len(want) {
		t.Fatalf("phases_completed = %v, want %v", resp.PhasesCompleted, want)
	}
	for i, p := range want {
		if resp.PhasesCompleted[i] != p {
			t.Fatalf("phases_completed[%d] = %s, want %s", i, resp.PhasesCompleted[i], p)
		}
	}
	for name, pr := range resp.PhaseResults {
		if pr.AICost != nil {
			t.Fatalf("phase %s reported ai_cost %v with AI disabled", name, *pr.AICost)
		}
	}
	if len(resp.CompensationActions) != 0 {
		t.Fatalf("expected no compensation actions, got %d", len(resp.CompensationActions))
	}
}

func TestRunRejectsEmptyParticipants(t *testing.T) {
	handler, _ := newTestHandler(t, serverOptions{})
	rec := postRun(t, handler, `{"participants": []}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var errResp api.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.ErrorType != "validation_error" {
		t.Fatalf("error_type = %q, want validation_error", errResp.ErrorType)
	}
}

func TestRunRejectsDuplicateParticipants(t *testing.T) {
	handler, _ := newTestHandler(t, serverOptions{})
	rec := postRun(t, handler, `{"participants": ["x", "x"]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRunRejectsInvalidTurnID(t *testing.T) {
	handler, _ := newTestHandler(t, serverOptions{})
	rec := postRun(t, handler, `{"participants": ["alice"], "turn_id": "not-a-uuid"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRunPhaseFailureCompensates(t *testing.T) {
	collabs := collaborator.DefaultRegistry()
	world, _ := collabs.Resolve(collaborator.TargetWorldContext)
	agent, _ := collabs.Resolve(collaborator.TargetAgentContext)
	ai, _ := collabs.Resolve(collaborator.TargetAIGateway)
	interaction, _ := collabs.Resolve(collaborator.TargetInteractionContext)
	event, _ := collabs.Resolve(collaborator.TargetEventContext)
	narrative, _ := collabs.Resolve(collaborator.TargetNarrativeContext)
	broken := collaborator.NewRegistry(map[string]collaborator.Client{
		collaborator.TargetWorldContext:       criticalWorld{inner: world},
		collaborator.TargetAgentContext:       agent,
		collaborator.TargetAIGateway:          ai,
		collaborator.TargetInteractionContext: interaction,
		collaborator.TargetEventContext:       event,
		collaborator.TargetNarrativeContext:   narrative,
	})

	handler, _ := newTestHandler(t, serverOptions{collaborators: broken})
	rec := postRun(t, handler, happyPathBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeRun(t, rec)
	if resp.Success {
		t.Fatal("expected success=false")
	}
	if len(resp.PhasesCompleted) != 0 {
		t.Fatalf("phases_completed = %v, want empty", resp.PhasesCompleted)
	}
	wu, ok := resp.PhaseResults["world_update"]
	if !ok {
		t.Fatalf("missing world_update phase result: %+v", resp.PhaseResults)
	}
	if wu.Success || wu.ErrorMessage == "" {
		t.Fatalf("world_update = %+v, want failed with error_message", wu)
	}
	if len(resp.CompensationActions) < 2 {
		t.Fatalf("expected >= 2 compensation actions, got %d", len(resp.CompensationActions))
	}
}

func TestRunAsyncAcceptance(t *testing.T) {
	handler, _ := newTestHandler(t, serverOptions{})
	body := `{"participants": ["alice"], "configuration": {"ai_integration_enabled": false}, "async_execution": true}`
	rec := postRun(t, handler, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeRun(t, rec)
	if !resp.Success || resp.ExecutionTimeMs != 0 || len(resp.PhasesCompleted) != 0 {
		t.Fatalf("async acceptance = %+v", resp)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		status := getStatus(t, handler, resp.TurnID)
		if status.Status == "completed" || status.Status == "failed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("turn %s never left status %q", resp.TurnID, status.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStatusUnknownTurnNotFound(t *testing.T) {
	handler, _ := newTestHandler(t, serverOptions{})
	status := getStatus(t, handler, "deadbeef-0000-0000-0000-000000000000")
	if status.Status != "not_found" {
		t.Fatalf("status = %q, want not_found", status.Status)
	}
}

func TestCleanupRemovesTurn(t *testing.T) {
	handler, _ := newTestHandler(t, serverOptions{})
	resp := decodeRun(t, postRun(t, handler, happyPathBody))

	req := httptest.NewRequest(http.MethodDelete, "/v1/turns/"+resp.TurnID, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cleanup status = %d", rec.Code)
	}
	var cleanup api.CleanupResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &cleanup); err != nil {
		t.Fatalf("decode cleanup: %v", err)
	}
	if cleanup.Status != "cleaned_up" || cleanup.TurnID != resp.TurnID {
		t.Fatalf("cleanup = %+v", cleanup)
	}

	status := getStatus(t, handler, resp.TurnID)
	if status.Status != "not_found" {
		t.Fatalf("post-cleanup status = %q, want not_found", status.Status)
	}
}

func TestCleanupTokenEnforced(t *testing.T) {
	handler, _ := newTestHandler(t, serverOptions{cleanupSecret: []byte("test-secret")})
	resp := decodeRun(t, postRun(t, handler, happyPathBody))
	if resp.CleanupToken == "" {
		t.Fatal("expected cleanup_token in run response when secret configured")
	}

	req := httptest.NewRequest(http.MethodDelete, "/v1/turns/"+resp.TurnID, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("tokenless cleanup status = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/v1/turns/"+resp.TurnID, nil)
	req.Header.Set("X-Cleanup-Token", resp.CleanupToken)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("tokened cleanup status = %d, want 200", rec.Code)
	}
}

func TestEventsEndpointExposesDomainTrail(t *testing.T) {
	handler, _ := newTestHandler(t, serverOptions{})
	resp := decodeRun(t, postRun(t, handler, happyPathBody))

	req := httptest.NewRequest(http.MethodGet, "/v1/turns/"+resp.TurnID+"/events", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("events status = %d", rec.Code)
	}
	var events api.EventsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if events.Count == 0 {
		t.Fatal("expected a non-empty event trail for a finished turn")
	}
	if events.Events[0].Kind != "turn-created" {
		t.Fatalf("first event kind = %q, want turn-created", events.Events[0].Kind)
	}
	last := events.Events[len(events.Events)-1]
	if last.Kind != "turn-completed" {
		t.Fatalf("last event kind = %q, want turn-completed", last.Kind)
	}
}

func TestRunRejectedWhenAtCapacity(t *testing.T) {
	handler, reg := newTestHandler(t, serverOptions{maxConcurrent: 1})
	reg.Put(registry.Summary{TurnID: "occupying-turn", Status: registry.StatusRunning, StartedAt: time.Now()})

	rec := postRun(t, handler, happyPathBody)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t, serverOptions{})
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	var health api.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "healthy" || health.MaxConcurrent != 3 {
		t.Fatalf("health = %+v", health)
	}
}

func TestMetricsEndpointServesExposition(t *testing.T) {
	handler, _ := newTestHandler(t, serverOptions{})
	decodeRun(t, postRun(t, handler, happyPathBody))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, series := range []string{"turn_duration_seconds", "turns_total", "turns_active", "phase_duration_seconds"} {
		if !bytes.Contains([]byte(body), []byte(series)) {
			t.Fatalf("metrics exposition missing %q", series)
		}
	}
}

func getStatus(t *testing.T, handler http.Handler, turnID string) api.StatusResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/turns/%s/status", turnID), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint = %d", rec.Code)
	}
	var status api.StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return status
}
