/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package telemetry configures OpenTelemetry tracing for the turn engine.
//
// Spans follow the OTel GenAI semantic conventions where applicable:
//   - gen_ai.system — the LLM provider
//   - gen_ai.request.model — the model name
//   - gen_ai.usage.input_tokens / gen_ai.usage.output_tokens — token counts
//
// Custom span attributes use the `turnengine.` prefix.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "turnengine.io/pipeline"

// Tracer returns the package-level tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// InitTraceProvider initialises the OTel trace provider with an OTLP gRPC
// exporter and the intelligent sampler. If endpoint is empty, tracing is
// disabled (noop provider is used).
// Returns a shutdown function that must be called on application exit.
func InitTraceProvider(ctx context.Context, endpoint string, version string, cfg SamplerConfig) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(), // TLS configurable via env (OTEL_EXPORTER_OTLP_INSECURE)
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String("turnengine"),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(NewIntelligentSampler(cfg)),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// --- Span helpers ---

// StartTurnSpan creates the "turn_execution" root span for one turn.
func StartTurnSpan(ctx context.Context, turnID string, participantCount int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "turn_execution",
		trace.WithAttributes(
			attribute.String("turnengine.turn_id", turnID),
			attribute.Int("turnengine.participant_count", participantCount),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndTurnSpan enriches the root span with the turn's terminal outcome.
func EndTurnSpan(span trace.Span, outcome string, costDollars float64, compensated bool) {
	span.SetAttributes(
		attribute.String("turnengine.outcome", outcome),
		attribute.Float64("turnengine.ai_cost_dollars", costDollars),
		attribute.Bool("turnengine.compensated", compensated),
	)
	span.End()
}

// StartPhaseSpan creates the "phase.<name>" child span for one phase
// execution.
func StartPhaseSpan(ctx context.Context, phase string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "phase."+phase,
		trace.WithAttributes(
			attribute.String("turnengine.phase", phase),
		),
	)
}

// EndPhaseSpan enriches a phase span with its outcome.
func EndPhaseSpan(span trace.Span, success bool, errorKind string, eventsProcessed int) {
	span.SetAttributes(
		attribute.Bool("turnengine.success", success),
		attribute.Int("turnengine.events_processed", eventsProcessed),
	)
	if !success {
		span.SetAttributes(attribute.String("turnengine.error_kind", errorKind))
	}
	span.End()
}

// StartAIGatewaySpan creates a child span for an AI gateway call, following
// GenAI conventions.
func StartAIGatewaySpan(ctx context.Context, model, provider string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "gen_ai.chat",
		trace.WithAttributes(
			attribute.String("gen_ai.system", provider),
			attribute.String("gen_ai.request.model", model),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndAIGatewaySpan enriches the AI gateway span with usage data.
func EndAIGatewaySpan(span trace.Span, inputTokens, outputTokens int64, costDollars float64) {
	span.SetAttributes(
		attribute.Int64("gen_ai.usage.input_tokens", inputTokens),
		attribute.Int64("gen_ai.usage.output_tokens", outputTokens),
		attribute.Float64("turnengine.cost_dollars", costDollars),
	)
	span.End()
}

// StartCompensationSpan creates a child span for one compensation action.
func StartCompensationSpan(ctx context.Context, compensationType, targetPhase string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "compensation.action",
		trace.WithAttributes(
			attribute.String("turnengine.compensation_type", compensationType),
			attribute.String("turnengine.target_phase", targetPhase),
		),
	)
}

// EndCompensationSpan enriches the compensation span with its outcome.
func EndCompensationSpan(span trace.Span, status string, retryCount int) {
	span.SetAttributes(
		attribute.String("turnengine.status", status),
		attribute.Int("turnengine.retry_count", retryCount),
	)
	span.End()
}
