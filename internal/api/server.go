// Package api implements the turn engine's HTTP surface: turn
// execution (sync/async), status, listing, cleanup, health, Prometheus
// exposition and the business-KPI summary. It enforces request validation
// and the maxConcurrentTurns admission cap.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/marcus-qen/turnengine/internal/metrics"
	"github.com/marcus-qen/turnengine/internal/pipeline"
	"github.com/marcus-qen/turnengine/internal/registry"
	"github.com/marcus-qen/turnengine/internal/turn"
	"github.com/marcus-qen/turnengine/internal/turnconfig"
)

// excludedMiddlewarePaths are never wrapped in the http_requests_* metrics
// series.
var excludedMiddlewarePaths = map[string]bool{
	"/health":       true,
	"/v1/health":    true,
	"/metrics":      true,
	"/docs":         true,
	"/redoc":        true,
	"/openapi.json": true,
	"/favicon.ico":  true,
}

// AuditMirror receives finished turns for best-effort persistence of their
// audit trail. internal/audit's Sink satisfies it; the indirection keeps this
// package free of database/sql concerns.
type AuditMirror interface {
	Mirror(ctx context.Context, t *turn.Turn) error
}

// Server wires the pipeline orchestrator, active-turn registry and business
// KPI tracker behind the HTTP contract.
type Server struct {
	orchestrator       *pipeline.Orchestrator
	registry           *registry.Registry
	kpi                *KPITracker
	logger             *zap.Logger
	maxConcurrentTurns int
	cleanupSecret      []byte
	audit              AuditMirror
}

// New builds a Server. maxConcurrentTurns <= 0 falls back to the default
// of 3.
func New(orchestrator *pipeline.Orchestrator, reg *registry.Registry, kpi *KPITracker, logger *zap.Logger, maxConcurrentTurns int) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxConcurrentTurns <= 0 {
		maxConcurrentTurns = 3
	}
	return &Server{orchestrator: orchestrator, registry: reg, kpi: kpi, logger: logger, maxConcurrentTurns: maxConcurrentTurns}
}

// SetCleanupSecret enables per-turn cleanup tokens: run responses carry a
// derived token and DELETE requires it back. A nil/empty secret leaves the
// cleanup verb open, which is the default.
func (s *Server) SetCleanupSecret(secret []byte) {
	s.cleanupSecret = secret
}

// SetAuditSink enables best-effort mirroring of finished turns' audit trails.
func (s *Server) SetAuditSink(sink AuditMirror) {
	s.audit = sink
}

// Routes builds the engine's request mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/turns:run", s.handleRun)
	mux.HandleFunc("GET /v1/turns/{turn_id}/status", s.handleStatus)
	mux.HandleFunc("GET /v1/turns/{turn_id}/events", s.handleEvents)
	mux.HandleFunc("GET /v1/turns", s.handleList)
	mux.HandleFunc("DELETE /v1/turns/{turn_id}", s.handleCleanup)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /v1/metrics/business-kpis", s.handleBusinessKPIs)
	return s.withMetricsMiddleware(mux)
}

// withMetricsMiddleware records http_requests_total, http_request_duration_seconds
// and http_requests_in_progress for every route not in the exclusion list.
// Labels use the matched route pattern, not the raw path, keeping
// cardinality bounded.
func (s *Server) withMetricsMiddleware(next *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if excludedMiddlewarePaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		route := routeTemplate(next, r)
		metrics.HTTPRequestsInProgress.WithLabelValues(route).Inc()
		defer metrics.HTTPRequestsInProgress.WithLabelValues(route).Dec()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		metrics.RecordHTTPRequest(route, r.Method, statusLabel(sw.status), time.Since(start))
	})
}

// routeTemplate collapses a path like /v1/turns/abc-123/status to its
// template so metrics cardinality stays bounded. A request that matches no
// registered pattern is labelled with its raw path.
func routeTemplate(mux *http.ServeMux, r *http.Request) string {
	if _, pattern := mux.Handler(r); pattern != "" {
		return pattern
	}
	return r.URL.Path
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// runInBackground executes the pipeline for an async turn and updates the
// registry on completion. A panic inside a phase executor is converted to a
// failed phase result by phase.Run; pipeline.Orchestrator.Run does not
// recover panics raised anywhere else, and neither does this function.
func (s *Server) runInBackground(turnID string, cfg turnconfig.TurnConfiguration, participants []string) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.MaxExecutionTime()+30*time.Second)
	defer cancel()

	tn, err := s.orchestrator.Run(ctx, turnID, cfg, participants)
	if err != nil {
		s.logger.Error("async turn failed to start", zap.String("turn_id", turnID), zap.Error(err))
		s.registry.Put(registry.Summary{
			TurnID: turnID, Status: registry.StatusFailed, ErrorMessage: err.Error(), StartedAt: time.Now(),
		})
		return
	}
	s.recordTerminal(tn)
}

// recordTerminal folds a finished *turn.Turn into the registry and KPI
// tracker, shared by the sync and async execution paths.
func (s *Server) recordTerminal(tn *turn.Turn) {
	success := tn.PipelineResult != nil && tn.PipelineResult.Success
	status := registry.StatusFailed
	if tn.State == turn.StateCompleted {
		status = registry.StatusCompleted
	}
	startedAt := tn.CreatedAt
	if tn.StartedAt != nil {
		startedAt = *tn.StartedAt
	}
	summary := registry.Summary{
		TurnID:          tn.TurnID,
		Status:          status,
		ProgressPct:     tn.CompletionPercentage(),
		StartedAt:       startedAt,
		ExecutionTimeMs: tn.ExecutionTime().Milliseconds(),
		Events:          tn.Events,
	}
	if len(s.cleanupSecret) > 0 {
		summary.CleanupToken = deriveCleanupToken(s.cleanupSecret, tn.TurnID)
	}
	s.registry.Put(summary)
	if s.kpi != nil {
		s.kpi.Record(success, tn.ExecutionTime(), totalAICostDollars(tn))
	}
	if s.audit != nil {
		mirrorCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.audit.Mirror(mirrorCtx, tn); err != nil {
			s.logger.Warn("audit mirror failed", zap.String("turn_id", tn.TurnID), zap.Error(err))
		}
	}
}

func totalAICostDollars(tn *turn.Turn) float64 {
	total := 0.0
	for _, r := range tn.PhaseResults {
		if r.AIUsage != nil {
			total += r.AIUsage.TotalCost.Dollars()
		}
	}
	return total
}
