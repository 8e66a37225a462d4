/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package metrics defines the Prometheus metrics for the turn execution
// engine, including the two headline KPIs: llm_cost_per_request_dollars and
// turn_duration_seconds.
//
// Metrics are registered on a dedicated registry (Registry), rather than
// the global default, so the HTTP layer controls exactly what is served on
// /metrics.
//
// Metric naming follows Prometheus conventions: a _total suffix for
// counters, a _seconds suffix for duration histograms.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the dedicated registry all turn-engine metrics register
// against.
var Registry = prometheus.NewRegistry()

// ParticipantsRange buckets a participant count into the fixed label set
// "1", "2-3", "4-5", "6-10", "10+" to keep cardinality bounded.
func ParticipantsRange(n int) string {
	switch {
	case n <= 1:
		return "1"
	case n <= 3:
		return "2-3"
	case n <= 5:
		return "4-5"
	case n <= 10:
		return "6-10"
	default:
		return "10+"
	}
}

var (
	// TurnDurationSeconds is the duration KPI. phase="complete" carries the
	// full-turn duration; phase=<name> the per-phase slice.
	TurnDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "turn_duration_seconds",
			Help:    "Duration of turn execution in seconds, full-turn (phase=complete) and per-phase.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 60, 120},
		},
		[]string{"phase", "participants_count_bucket", "ai_enabled", "success"},
	)

	// LLMCostPerRequestDollars is the cost KPI: the most recent per-turn
	// (phase=complete) and per-phase AI spend.
	LLMCostPerRequestDollars = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "llm_cost_per_request_dollars",
			Help: "Dollar cost of AI usage, per turn (phase=complete) and per phase.",
		},
		[]string{"phase", "model_type", "success", "narrative_depth"},
	)

	// TurnsTotal counts completed turns by terminal status.
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turns_total",
			Help: "Total turns processed by terminal status.",
		},
		[]string{"status", "participants_range", "ai_enabled"},
	)

	// TurnsActive is the number of turns currently executing.
	TurnsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "turns_active",
			Help: "Number of turns currently in PLANNING, EXECUTING or COMPENSATING.",
		},
	)

	// PhaseDurationSeconds is a histogram of per-phase execution time.
	PhaseDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "phase_duration_seconds",
			Help:    "Duration of a single phase execution in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"phase_type", "success", "participants_count_bucket"},
	)

	// PhaseEventsProcessedTotal counts events flowing through phases, split
	// by direction (event_type: processed vs generated).
	PhaseEventsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "phase_events_processed_total",
			Help: "Total events processed or generated across phase executions.",
		},
		[]string{"phase_type", "event_type", "success"},
	)

	// AIRequestsTotal counts AI gateway calls.
	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total AI gateway requests issued.",
		},
		[]string{"provider", "model", "phase"},
	)

	// AITokenUsageTotal counts tokens consumed.
	AITokenUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_token_usage_total",
			Help: "Total tokens consumed by AI gateway requests.",
		},
		[]string{"provider", "model", "phase"},
	)

	// AICostTotalDollars counts dollar cost accumulated.
	AICostTotalDollars = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_cost_total_dollars",
			Help: "Total dollar cost of AI gateway requests.",
		},
		[]string{"provider", "model", "phase"},
	)

	// CompensationsTotal counts compensation actions executed.
	CompensationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compensations_total",
			Help: "Total compensation actions executed.",
		},
		[]string{"compensation_type", "success", "rollback_reason"},
	)

	// CompensationDurationSeconds is a histogram of compensation action
	// execution time.
	CompensationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compensation_duration_seconds",
			Help:    "Duration of a single compensation action in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"compensation_type", "success"},
	)

	// ErrorsTotal counts errors by component, kind and severity.
	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total errors raised by component, error kind and severity.",
		},
		[]string{"component", "error_kind", "severity"},
	)

	// ErrorRecoveryAttemptsTotal counts saga retry attempts by compensation
	// type and outcome.
	ErrorRecoveryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "error_recovery_attempts_total",
			Help: "Total error-recovery (compensation retry) attempts.",
		},
		[]string{"compensation_type", "outcome"},
	)

	// CrossContextCallsTotal counts collaborator calls by target and
	// operation.
	CrossContextCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cross_context_calls_total",
			Help: "Total cross-context collaborator calls by target and operation.",
		},
		[]string{"target_context", "operation", "success"},
	)

	// CrossContextCallDurationSeconds is a histogram of collaborator call
	// latency.
	CrossContextCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cross_context_call_duration_seconds",
			Help:    "Duration of a single cross-context collaborator call in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"target_context", "operation"},
	)

	// HTTPRequestsTotal counts HTTP requests by route, method and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by route, method and status class.",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPRequestDurationSeconds is a histogram of HTTP request latency.
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"route", "method"},
	)

	// HTTPRequestsInProgress is the number of HTTP requests currently being
	// served.
	HTTPRequestsInProgress = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_progress",
			Help: "Number of HTTP requests currently in flight.",
		},
		[]string{"route"},
	)
)

func init() {
	Registry.MustRegister(
		TurnDurationSeconds,
		LLMCostPerRequestDollars,
		TurnsTotal,
		TurnsActive,
		PhaseDurationSeconds,
		PhaseEventsProcessedTotal,
		AIRequestsTotal,
		AITokenUsageTotal,
		AICostTotalDollars,
		CompensationsTotal,
		CompensationDurationSeconds,
		ErrorsTotal,
		ErrorRecoveryAttemptsTotal,
		CrossContextCallsTotal,
		CrossContextCallDurationSeconds,
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		HTTPRequestsInProgress,
	)
}

// RecordTurnComplete records the terminal metrics for one finished turn.
// status is "success" or "error"; the full-turn duration is filed under
// phase="complete".
func RecordTurnComplete(status string, participants int, aiEnabled, success bool, duration time.Duration) {
	rangeLabel := ParticipantsRange(participants)
	TurnsTotal.WithLabelValues(status, rangeLabel, boolLabel(aiEnabled)).Inc()
	TurnDurationSeconds.WithLabelValues("complete", rangeLabel, boolLabel(aiEnabled), boolLabel(success)).Observe(duration.Seconds())
}

// SetLLMCostPerRequest sets the cost KPI gauge for one turn or phase.
func SetLLMCostPerRequest(phase, modelType string, success bool, narrativeDepth string, costDollars float64) {
	LLMCostPerRequestDollars.WithLabelValues(phase, modelType, boolLabel(success), narrativeDepth).Set(costDollars)
}

// RecordPhaseComplete records the terminal metrics for one phase execution,
// including the per-phase slice of the duration KPI.
func RecordPhaseComplete(phase string, success bool, participants int, aiEnabled bool, duration time.Duration, eventsProcessed, eventsGenerated int) {
	rangeLabel := ParticipantsRange(participants)
	successLabel := boolLabel(success)
	PhaseDurationSeconds.WithLabelValues(phase, successLabel, rangeLabel).Observe(duration.Seconds())
	TurnDurationSeconds.WithLabelValues(phase, rangeLabel, boolLabel(aiEnabled), successLabel).Observe(duration.Seconds())
	PhaseEventsProcessedTotal.WithLabelValues(phase, "processed", successLabel).Add(float64(eventsProcessed))
	PhaseEventsProcessedTotal.WithLabelValues(phase, "generated", successLabel).Add(float64(eventsGenerated))
}

// RecordAIUsage records one AI gateway call's cost and token usage.
func RecordAIUsage(provider, model, phase string, costDollars float64, tokens int64) {
	AIRequestsTotal.WithLabelValues(provider, model, phase).Inc()
	AITokenUsageTotal.WithLabelValues(provider, model, phase).Add(float64(tokens))
	AICostTotalDollars.WithLabelValues(provider, model, phase).Add(costDollars)
}

// RecordCompensation records one terminated compensation action.
// rollbackReason names the failed phase that triggered the saga.
func RecordCompensation(compensationType string, success bool, rollbackReason string, duration time.Duration) {
	CompensationsTotal.WithLabelValues(compensationType, boolLabel(success), rollbackReason).Inc()
	CompensationDurationSeconds.WithLabelValues(compensationType, boolLabel(success)).Observe(duration.Seconds())
}

// RecordErrorRecoveryAttempt records one saga retry attempt.
func RecordErrorRecoveryAttempt(compensationType, outcome string) {
	ErrorRecoveryAttemptsTotal.WithLabelValues(compensationType, outcome).Inc()
}

// RecordError records one error by originating component, kind and severity.
func RecordError(component, errorKind, severity string) {
	ErrorsTotal.WithLabelValues(component, errorKind, severity).Inc()
}

// RecordCrossContextCall records one collaborator call's outcome and
// latency.
func RecordCrossContextCall(target, operation string, success bool, duration time.Duration) {
	CrossContextCallsTotal.WithLabelValues(target, operation, boolLabel(success)).Inc()
	CrossContextCallDurationSeconds.WithLabelValues(target, operation).Observe(duration.Seconds())
}

// RecordHTTPRequest records one completed HTTP request.
func RecordHTTPRequest(route, method, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(route, method, status).Inc()
	HTTPRequestDurationSeconds.WithLabelValues(route, method).Observe(duration.Seconds())
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
