/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package telemetry

import (
	"strings"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// SamplerConfig tunes the intelligent sampler's thresholds: errors always
// sample, expensive or slow turns sample at an elevated rate, everything
// else falls back to DefaultRatio.
type SamplerConfig struct {
	DefaultRatio  float64
	CostThreshold float64 // dollars; turns above this sample at CostRatio
	CostRatio     float64
	SlowThreshold float64 // seconds; turns above this sample at SlowRatio
	SlowRatio     float64
}

// DefaultSamplerConfig returns the production default thresholds.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		DefaultRatio:  0.1,
		CostThreshold: 1.0,
		CostRatio:     0.5,
		SlowThreshold: 10.0,
		SlowRatio:     0.8,
	}
}

// intelligentSampler always samples spans carrying an error attribute, and
// otherwise boosts the sampling ratio for costly or slow turns, falling back
// to a ratio-based sampler for everything else.
type intelligentSampler struct {
	cfg     SamplerConfig
	byRatio map[float64]sdktrace.Sampler
}

// NewIntelligentSampler builds the attribute-aware sampler.
func NewIntelligentSampler(cfg SamplerConfig) sdktrace.Sampler {
	if cfg.DefaultRatio == 0 && cfg.CostRatio == 0 && cfg.SlowRatio == 0 {
		cfg = DefaultSamplerConfig()
	}
	return &intelligentSampler{
		cfg: cfg,
		byRatio: map[float64]sdktrace.Sampler{
			cfg.DefaultRatio: sdktrace.TraceIDRatioBased(cfg.DefaultRatio),
			cfg.CostRatio:    sdktrace.TraceIDRatioBased(cfg.CostRatio),
			cfg.SlowRatio:    sdktrace.TraceIDRatioBased(cfg.SlowRatio),
		},
	}
}

func (s *intelligentSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	ratio := s.cfg.DefaultRatio
	for _, attr := range p.Attributes {
		if strings.HasPrefix(string(attr.Key), "error") {
			return s.decide(p, 1.0)
		}
		switch attr.Key {
		case "turnengine.success":
			if !attr.Value.AsBool() {
				return s.decide(p, 1.0)
			}
		case "turnengine.ai_cost_dollars":
			if attr.Value.AsFloat64() > s.cfg.CostThreshold && s.cfg.CostRatio > ratio {
				ratio = s.cfg.CostRatio
			}
		case "turnengine.duration_seconds":
			if attr.Value.AsFloat64() > s.cfg.SlowThreshold && s.cfg.SlowRatio > ratio {
				ratio = s.cfg.SlowRatio
			}
		}
	}
	return s.decide(p, ratio)
}

func (s *intelligentSampler) decide(p sdktrace.SamplingParameters, ratio float64) sdktrace.SamplingResult {
	if ratio >= 1.0 {
		return sdktrace.SamplingResult{
			Decision:   sdktrace.RecordAndSample,
			Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
		}
	}
	sampler, ok := s.byRatio[ratio]
	if !ok {
		sampler = sdktrace.TraceIDRatioBased(ratio)
	}
	return sampler.ShouldSample(p)
}

func (s *intelligentSampler) Description() string {
	return "IntelligentSampler{error=always,cost>1.0=>0.5,slow>10s=>0.8,default=0.1}"
}
