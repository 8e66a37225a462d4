/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func getCounterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := cv.WithLabelValues(labels...).Write(m); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func getGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}

func getGaugeVecValue(t *testing.T, gv *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := gv.WithLabelValues(labels...).Write(m); err != nil {
		t.Fatalf("write gauge vec: %v", err)
	}
	return m.GetGauge().GetValue()
}

func getHistogramCount(t *testing.T, hv *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	observer := hv.WithLabelValues(labels...)
	c, ok := observer.(prometheus.Metric)
	if !ok {
		t.Fatal("histogram observer does not implement prometheus.Metric")
	}
	if err := c.Write(m); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestParticipantsRange(t *testing.T) {
	cases := map[int]string{
		0: "1", 1: "1", 2: "2-3", 3: "2-3", 4: "4-5", 5: "4-5",
		6: "6-10", 10: "6-10", 11: "10+", 100: "10+",
	}
	for n, want := range cases {
		if got := ParticipantsRange(n); got != want {
			t.Errorf("ParticipantsRange(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestRecordTurnComplete(t *testing.T) {
	RecordTurnComplete("success", 2, false, true, 3*time.Second)

	val := getCounterValue(t, TurnsTotal, "success", "2-3", "false")
	if val < 1 {
		t.Errorf("TurnsTotal = %f, want >= 1", val)
	}
	count := getHistogramCount(t, TurnDurationSeconds, "complete", "2-3", "false", "true")
	if count < 1 {
		t.Errorf("TurnDurationSeconds sample count = %d, want >= 1", count)
	}
}

func TestRecordPhaseComplete(t *testing.T) {
	RecordPhaseComplete("world_update", true, 2, true, 500*time.Millisecond, 4, 3)

	processed := getCounterValue(t, PhaseEventsProcessedTotal, "world_update", "processed", "true")
	if processed < 4 {
		t.Errorf("processed events = %f, want >= 4", processed)
	}
	generated := getCounterValue(t, PhaseEventsProcessedTotal, "world_update", "generated", "true")
	if generated < 3 {
		t.Errorf("generated events = %f, want >= 3", generated)
	}
	count := getHistogramCount(t, PhaseDurationSeconds, "world_update", "true", "2-3")
	if count < 1 {
		t.Errorf("PhaseDurationSeconds sample count = %d, want >= 1", count)
	}
}

func TestRecordAIUsage(t *testing.T) {
	RecordAIUsage("ai_gateway", "brief-model", "subjective_brief", 0.012, 900)

	reqs := getCounterValue(t, AIRequestsTotal, "ai_gateway", "brief-model", "subjective_brief")
	if reqs < 1 {
		t.Errorf("AIRequestsTotal = %f, want >= 1", reqs)
	}
	tokens := getCounterValue(t, AITokenUsageTotal, "ai_gateway", "brief-model", "subjective_brief")
	if tokens < 900 {
		t.Errorf("AITokenUsageTotal = %f, want >= 900", tokens)
	}
	cost := getCounterValue(t, AICostTotalDollars, "ai_gateway", "brief-model", "subjective_brief")
	if cost < 0.012 {
		t.Errorf("AICostTotalDollars = %f, want >= 0.012", cost)
	}
}

func TestLLMCostGaugeUpdates(t *testing.T) {
	SetLLMCostPerRequest("complete", "aggregate", true, "standard", 0.42)
	if got := getGaugeVecValue(t, LLMCostPerRequestDollars, "complete", "aggregate", "true", "standard"); got != 0.42 {
		t.Errorf("cost gauge = %f, want 0.42", got)
	}
	SetLLMCostPerRequest("complete", "aggregate", true, "standard", 0.05)
	if got := getGaugeVecValue(t, LLMCostPerRequestDollars, "complete", "aggregate", "true", "standard"); got != 0.05 {
		t.Errorf("cost gauge after update = %f, want 0.05", got)
	}
}

func TestRecordCompensation(t *testing.T) {
	RecordCompensation("rollback_world_state", true, "world_update", 100*time.Millisecond)
	RecordCompensation("rollback_world_state", false, "world_update", 100*time.Millisecond)

	ok := getCounterValue(t, CompensationsTotal, "rollback_world_state", "true", "world_update")
	failed := getCounterValue(t, CompensationsTotal, "rollback_world_state", "false", "world_update")
	if ok < 1 || failed < 1 {
		t.Errorf("CompensationsTotal = %f/%f, want both >= 1", ok, failed)
	}
}

func TestTurnsActiveGauge(t *testing.T) {
	before := getGaugeValue(t, TurnsActive)
	TurnsActive.Inc()
	TurnsActive.Inc()
	if got := getGaugeValue(t, TurnsActive); got != before+2 {
		t.Errorf("TurnsActive = %f, want %f", got, before+2)
	}
	TurnsActive.Dec()
	TurnsActive.Dec()
	if got := getGaugeValue(t, TurnsActive); got != before {
		t.Errorf("TurnsActive after Dec = %f, want %f", got, before)
	}
}

func TestLabelIsolation(t *testing.T) {
	RecordError("world_update", "consistency", "critical")
	RecordError("event_integration", "collaborator", "high")

	a := getCounterValue(t, ErrorsTotal, "world_update", "consistency", "critical")
	b := getCounterValue(t, ErrorsTotal, "event_integration", "collaborator", "high")
	crossed := getCounterValue(t, ErrorsTotal, "world_update", "collaborator", "high")

	if a < 1 || b < 1 {
		t.Errorf("ErrorsTotal = %f/%f, want both >= 1", a, b)
	}
	if crossed != 0 {
		t.Errorf("crossed label combination = %f, want 0", crossed)
	}
}
