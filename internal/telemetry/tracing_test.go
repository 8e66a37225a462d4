/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer installs an in-memory span exporter for test assertions.
func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return exporter
}

func TestInitTraceProviderNoopWhenEmpty(t *testing.T) {
	shutdown, err := InitTraceProvider(context.Background(), "", "test", SamplerConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestTurnSpanAttributes(t *testing.T) {
	exporter := setupTestTracer(t)

	_, span := StartTurnSpan(context.Background(), "turn-123", 3)
	EndTurnSpan(span, "succeeded", 0.42, false)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "turn_execution" {
		t.Errorf("span name = %q, want turn_execution", spans[0].Name)
	}

	attrs := spans[0].Attributes
	foundTurn := false
	foundCost := false
	foundOutcome := false
	for _, a := range attrs {
		switch string(a.Key) {
		case "turnengine.turn_id":
			foundTurn = a.Value.AsString() == "turn-123"
		case "turnengine.ai_cost_dollars":
			foundCost = a.Value.AsFloat64() == 0.42
		case "turnengine.outcome":
			foundOutcome = a.Value.AsString() == "succeeded"
		}
	}
	if !foundTurn {
		t.Error("missing turnengine.turn_id attribute")
	}
	if !foundCost {
		t.Error("missing turnengine.ai_cost_dollars attribute")
	}
	if !foundOutcome {
		t.Error("missing turnengine.outcome attribute")
	}
}

func TestPhaseSpanIsChildOfTurnSpan(t *testing.T) {
	exporter := setupTestTracer(t)

	ctx, turnSpan := StartTurnSpan(context.Background(), "turn-123", 2)
	_, phaseSpan := StartPhaseSpan(ctx, "world_update")
	EndPhaseSpan(phaseSpan, true, "", 5)
	EndTurnSpan(turnSpan, "succeeded", 0, false)

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}

	phaseStub := spans[0] // phase span ends first
	turnStub := spans[1]
	if phaseStub.Name != "phase.world_update" {
		t.Errorf("phase span name = %q", phaseStub.Name)
	}
	if phaseStub.Parent.TraceID() != turnStub.SpanContext.TraceID() {
		t.Error("phase span should share trace ID with turn span")
	}
	if !phaseStub.Parent.SpanID().IsValid() {
		t.Error("phase span should have a valid parent span ID")
	}
}

func TestPhaseSpanRecordsErrorKind(t *testing.T) {
	exporter := setupTestTracer(t)

	_, span := StartPhaseSpan(context.Background(), "event_integration")
	EndPhaseSpan(span, false, "timeout", 0)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	foundKind := false
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "turnengine.error_kind" && a.Value.AsString() == "timeout" {
			foundKind = true
		}
	}
	if !foundKind {
		t.Error("missing turnengine.error_kind attribute on failed phase span")
	}
}

func TestAIGatewaySpanFollowsGenAIConventions(t *testing.T) {
	exporter := setupTestTracer(t)

	_, span := StartAIGatewaySpan(context.Background(), "brief-model", "ai_gateway")
	EndAIGatewaySpan(span, 1000, 500, 0.01)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name != "gen_ai.chat" {
		t.Errorf("span name = %q, want gen_ai.chat", spans[0].Name)
	}
	foundModel := false
	foundInput := false
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "gen_ai.request.model" && a.Value.AsString() == "brief-model" {
			foundModel = true
		}
		if string(a.Key) == "gen_ai.usage.input_tokens" && a.Value.AsInt64() == 1000 {
			foundInput = true
		}
	}
	if !foundModel {
		t.Error("missing gen_ai.request.model")
	}
	if !foundInput {
		t.Error("missing gen_ai.usage.input_tokens")
	}
}

func samplingParams(attrs ...attribute.KeyValue) sdktrace.SamplingParameters {
	return sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		Name:          "turn_execution",
		Attributes:    attrs,
	}
}

func TestSamplerAlwaysSamplesErrors(t *testing.T) {
	s := NewIntelligentSampler(DefaultSamplerConfig())
	for i := 0; i < 50; i++ {
		result := s.ShouldSample(samplingParams(attribute.String("error.kind", "timeout")))
		if result.Decision != sdktrace.RecordAndSample {
			t.Fatal("spans with error attributes must always sample")
		}
	}
}

func TestSamplerAlwaysSamplesFailedTurns(t *testing.T) {
	s := NewIntelligentSampler(DefaultSamplerConfig())
	result := s.ShouldSample(samplingParams(attribute.Bool("turnengine.success", false)))
	if result.Decision != sdktrace.RecordAndSample {
		t.Fatal("failed turns must always sample")
	}
}

func TestSamplerDescription(t *testing.T) {
	s := NewIntelligentSampler(DefaultSamplerConfig())
	if s.Description() == "" {
		t.Fatal("sampler must describe itself")
	}
}
