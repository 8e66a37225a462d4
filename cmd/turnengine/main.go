// Turn Engine — the turn orchestrator's HTTP server.
//
// Runs as a standalone binary. Serves:
//   - POST /v1/turns:run, GET /v1/turns/{id}/status, GET /v1/turns,
//     DELETE /v1/turns/{id} — the turn execution surface
//   - GET /v1/health, GET /metrics, GET /v1/metrics/business-kpis —
//     observability endpoints
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/marcus-qen/turnengine/internal/api"
	"github.com/marcus-qen/turnengine/internal/audit"
	"github.com/marcus-qen/turnengine/internal/collaborator"
	"github.com/marcus-qen/turnengine/internal/phase"
	"github.com/marcus-qen/turnengine/internal/pipeline"
	"github.com/marcus-qen/turnengine/internal/registry"
	"github.com/marcus-qen/turnengine/internal/saga"
	"github.com/marcus-qen/turnengine/internal/scheduler"
	"github.com/marcus-qen/turnengine/internal/telemetry"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := loadConfig()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.InitTraceProvider(ctx, cfg.OTLPEndpoint, version, telemetry.SamplerConfig{
		DefaultRatio:  cfg.SamplingRatio,
		CostThreshold: 1.0,
		CostRatio:     0.5,
		SlowThreshold: 10.0,
		SlowRatio:     0.8,
	})
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	collaborators := collaborator.DefaultRegistry()
	executors, err := phase.NewExecutorRegistry(collaborators)
	if err != nil {
		logger.Fatal("failed to build executor registry", zap.Error(err))
	}
	coordinator := saga.New(logger)
	saga.RegisterCollaboratorHandlers(coordinator, collaborators)
	orchestrator := pipeline.New(executors, coordinator, logger)

	turnRegistry := registry.New()
	kpi := api.NewKPITracker(cfg.KPIWindow)
	server := api.New(orchestrator, turnRegistry, kpi, logger, cfg.MaxConcurrentTurns)

	if cfg.CleanupSecret != "" {
		server.SetCleanupSecret([]byte(cfg.CleanupSecret))
	}
	if cfg.AuditDSN != "" {
		sink, err := audit.Open(ctx, cfg.AuditDriver, cfg.AuditDSN)
		if err != nil {
			logger.Fatal("failed to open audit sink", zap.Error(err))
		}
		defer sink.Close()
		server.SetAuditSink(sink)
	}

	sweeper, err := scheduler.New(cfg.SweepCron, cfg.RegistryRetention, turnRegistry, logger)
	if err != nil {
		logger.Fatal("failed to build registry sweeper", zap.Error(err))
	}
	sweeper.Start()
	defer sweeper.Stop()

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("starting turn engine",
		zap.String("addr", cfg.ListenAddr),
		zap.String("version", version),
		zap.Int("max_concurrent_turns", cfg.MaxConcurrentTurns),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

// Config holds the turn engine's runtime configuration, loaded from
// TURNENGINE_* environment variables.
type Config struct {
	ListenAddr         string
	MaxConcurrentTurns int
	OTLPEndpoint       string
	SamplingRatio      float64
	KPIWindow          time.Duration
	CleanupSecret      string
	AuditDriver        string
	AuditDSN           string
	SweepCron          string
	RegistryRetention  time.Duration
}

func loadConfig() Config {
	cfg := Config{
		ListenAddr:         ":8080",
		MaxConcurrentTurns: 3,
		OTLPEndpoint:       "",
		SamplingRatio:      0.1,
		KPIWindow:          time.Hour,
		AuditDriver:        "pgx",
		SweepCron:          "*/5 * * * *",
		RegistryRetention:  time.Hour,
	}
	if v := os.Getenv("TURNENGINE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("TURNENGINE_MAX_CONCURRENT_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentTurns = n
		}
	}
	if v := os.Getenv("TURNENGINE_OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}
	if v := os.Getenv("TURNENGINE_TRACE_SAMPLING_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SamplingRatio = f
		}
	}
	if v := os.Getenv("TURNENGINE_KPI_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.KPIWindow = time.Duration(n) * time.Second
		}
	}
	cfg.CleanupSecret = os.Getenv("TURNENGINE_CLEANUP_SECRET")
	if v := os.Getenv("TURNENGINE_AUDIT_DRIVER"); v != "" {
		cfg.AuditDriver = v
	}
	cfg.AuditDSN = os.Getenv("TURNENGINE_AUDIT_DSN")
	if v := os.Getenv("TURNENGINE_SWEEP_CRON"); v != "" {
		cfg.SweepCron = v
	}
	if v := os.Getenv("TURNENGINE_REGISTRY_RETENTION_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RegistryRetention = time.Duration(n) * time.Second
		}
	}
	return cfg
}
