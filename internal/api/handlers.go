package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/marcus-qen/turnengine/internal/phase"
	"github.com/marcus-qen/turnengine/internal/phasetype"
	"github.com/marcus-qen/turnengine/internal/registry"
	"github.com/marcus-qen/turnengine/internal/turn"
	"github.com/marcus-qen/turnengine/internal/turnid"
)

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON", "validation_error")
		return
	}

	if err := validateParticipants(req.Participants); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}
	if err := validateTurnID(req.TurnID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	cfg, err := buildConfiguration(req.Participants, req.Configuration)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}
	if problems := cfg.Validate(); len(problems) > 0 {
		details := make([]string, 0, len(problems))
		for _, p := range problems {
			details = append(details, p.Error())
		}
		writeError(w, http.StatusBadRequest, details, "validation_error")
		return
	}

	if s.registry.CountRunning() >= s.maxConcurrentTurns {
		writeError(w, http.StatusTooManyRequests, "too many turns are currently executing, retry shortly", "capacity_exceeded")
		return
	}

	turnID, err := resolveTurnID(req.TurnID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	var cleanupToken string
	if len(s.cleanupSecret) > 0 {
		cleanupToken = deriveCleanupToken(s.cleanupSecret, turnID)
	}

	if req.AsyncExecution {
		s.registry.Put(registry.Summary{
			TurnID:       turnID,
			Status:       registry.StatusRunning,
			StartedAt:    time.Now(),
			CleanupToken: cleanupToken,
		})
		go s.runInBackground(turnID, cfg, req.Participants)

		writeJSON(w, http.StatusOK, TurnExecutionResponse{
			TurnID:              turnID,
			Success:             true,
			ExecutionTimeMs:     0,
			PhasesCompleted:     []string{},
			PhaseResults:        map[string]PhaseResultView{},
			CompensationActions: []CompensationActionView{},
			PerformanceMetrics:  map[string]any{},
			CompletedAt:         time.Now().UTC(),
			CleanupToken:        cleanupToken,
		})
		return
	}

	s.registry.Put(registry.Summary{TurnID: turnID, Status: registry.StatusRunning, StartedAt: time.Now(), CleanupToken: cleanupToken})
	tn, err := s.orchestrator.Run(r.Context(), turnID, cfg, req.Participants)
	if err != nil {
		s.registry.Remove(turnID)
		writeError(w, http.StatusInternalServerError, "turn could not be started", "internal_error")
		return
	}
	s.recordTerminal(tn)
	resp := turnToResponse(tn)
	resp.CleanupToken = cleanupToken
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	turnID := r.PathValue("turn_id")
	summary, ok := s.registry.Get(turnID)
	if !ok {
		writeJSON(w, http.StatusOK, StatusResponse{TurnID: turnID, Status: string(registry.StatusNotFound)})
		return
	}
	writeJSON(w, http.StatusOK, summaryToStatus(summary))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	entries := s.registry.List()
	out := make([]StatusResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, summaryToStatus(e))
	}
	writeJSON(w, http.StatusOK, ListResponse{Turns: out, Count: len(out)})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	turnID := r.PathValue("turn_id")
	if len(s.cleanupSecret) > 0 {
		presented := r.Header.Get("X-Cleanup-Token")
		if !verifyCleanupToken(s.cleanupSecret, turnID, presented) {
			writeError(w, http.StatusForbidden, "missing or invalid cleanup token", "cleanup_token_invalid")
			return
		}
	}
	s.registry.Remove(turnID)
	writeJSON(w, http.StatusOK, CleanupResponse{Status: "cleaned_up", TurnID: turnID})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	turnID := r.PathValue("turn_id")
	summary, ok := s.registry.Get(turnID)
	if !ok {
		writeJSON(w, http.StatusOK, EventsResponse{TurnID: turnID, Status: string(registry.StatusNotFound), Events: []EventView{}})
		return
	}
	events := make([]EventView, 0, len(summary.Events))
	for _, e := range summary.Events {
		events = append(events, EventView{
			EventID:    e.EventID,
			Version:    e.Version,
			Kind:       e.Kind,
			Payload:    e.Payload,
			OccurredAt: e.OccurredAt,
		})
	}
	writeJSON(w, http.StatusOK, EventsResponse{
		TurnID: turnID,
		Status: string(summary.Status),
		Events: events,
		Count:  len(events),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		ActiveTurns:   s.registry.CountRunning(),
		MaxConcurrent: s.maxConcurrentTurns,
	})
}

func (s *Server) handleBusinessKPIs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.kpi.Snapshot())
}

func resolveTurnID(requested string) (string, error) {
	if requested == "" {
		id, err := turnid.New()
		if err != nil {
			return "", err
		}
		return id.UUID(), nil
	}
	id, err := turnid.FromUUID(requested)
	if err != nil {
		return "", err
	}
	return id.UUID(), nil
}

func summaryToStatus(s registry.Summary) StatusResponse {
	resp := StatusResponse{TurnID: s.TurnID, Status: string(s.Status)}
	if s.Status == registry.StatusNotFound {
		return resp
	}
	progress := s.ProgressPct
	resp.Progress = &progress
	execMs := s.ExecutionTimeMs
	if s.Status == registry.StatusRunning {
		execMs = time.Since(s.StartedAt).Milliseconds()
	}
	resp.ExecutionTimeMs = &execMs
	if s.CurrentPhase != nil {
		resp.CurrentPhase = s.CurrentPhase.String()
	}
	return resp
}

func turnToResponse(tn *turn.Turn) TurnExecutionResponse {
	completed := make([]string, 0, len(phasetype.All))
	for _, p := range tn.CompletedPhases() {
		completed = append(completed, p.String())
	}

	results := make(map[string]PhaseResultView, len(tn.PhaseResults))
	for _, p := range phasetype.All {
		r, ok := tn.PhaseResults[p]
		if !ok {
			continue
		}
		results[p.String()] = phaseResultToView(p, r)
	}

	actions := make([]CompensationActionView, 0, len(tn.CompensationActions()))
	for _, a := range tn.CompensationActions() {
		actions = append(actions, CompensationActionView{
			ActionID:         a.ActionID,
			CompensationType: string(a.CompensationType),
			TargetPhase:      a.TargetPhase,
			TriggeredAt:      a.TriggeredAt,
			Status:           string(a.Status),
		})
	}

	success := tn.PipelineResult != nil && tn.PipelineResult.Success
	var execMs int64
	if tn.PipelineResult != nil {
		execMs = tn.PipelineResult.TotalExecutionTime.Milliseconds()
	}

	var errDetails map[string]any
	if !success {
		failed := tn.FailedPhases()
		if len(failed) > 0 {
			if r, ok := tn.PhaseResults[failed[0]]; ok && r.ErrorDetails != nil {
				errDetails = map[string]any{
					"phase":         failed[0].String(),
					"error_message": r.ErrorDetails.ErrorMessage,
					"error_kind":    r.ErrorDetails.ErrorKind,
				}
			}
		}
	}

	completedAt := time.Now().UTC()
	if tn.CompletedAt != nil {
		completedAt = *tn.CompletedAt
	}

	return TurnExecutionResponse{
		TurnID:              tn.TurnID,
		Success:             success,
		ExecutionTimeMs:     execMs,
		PhasesCompleted:     completed,
		PhaseResults:        results,
		CompensationActions: actions,
		PerformanceMetrics:  tn.PerformanceSummary(),
		ErrorDetails:        errDetails,
		CompletedAt:         completedAt,
	}
}

func phaseResultToView(p phasetype.Type, r phase.Result) PhaseResultView {
	view := PhaseResultView{
		Phase:            p.String(),
		Success:          r.Success,
		EventsProcessed:  r.EventsProcessed,
		EventsGenerated:  len(r.EventsGenerated),
		ArtifactsCreated: append([]string(nil), r.ArtifactsCreated...),
	}
	if r.PerformanceMetrics != nil {
		if v, ok := r.PerformanceMetrics["execution_time_ms"]; ok {
			view.ExecutionTimeMs = int64(v)
		}
	}
	if r.AIUsage != nil && !r.AIUsage.TotalCost.IsZero() {
		cost := r.AIUsage.TotalCost.Dollars()
		view.AICost = &cost
	}
	if r.ErrorDetails != nil {
		view.ErrorMessage = r.ErrorDetails.ErrorMessage
	}
	return view
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail any, errorType string) {
	writeJSON(w, status, ErrorResponse{Detail: detail, ErrorType: errorType})
}
