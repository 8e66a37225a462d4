package api

import (
	"sort"
	"sync"
	"time"
)

// completion is one finished turn's contribution to the business KPI
// rolling window.
type completion struct {
	at             time.Time
	success        bool
	durationSecs   float64
	llmCostDollars float64
}

// KPITracker aggregates the last N completions within a trailing window
// (default one hour) to serve GET /v1/metrics/business-kpis. It is a thin
// derived view over the same completions the metrics registry counts, kept
// separate because the KPI endpoint needs percentile math the Prometheus
// histogram abstraction does not expose directly.
type KPITracker struct {
	mu     sync.Mutex
	window time.Duration
	events []completion
}

// NewKPITracker builds a tracker with the given trailing window.
func NewKPITracker(window time.Duration) *KPITracker {
	if window <= 0 {
		window = time.Hour
	}
	return &KPITracker{window: window}
}

// Record appends one finished turn's KPI contribution.
func (k *KPITracker) Record(success bool, duration time.Duration, llmCostDollars float64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.events = append(k.events, completion{
		at:             time.Now(),
		success:        success,
		durationSecs:   duration.Seconds(),
		llmCostDollars: llmCostDollars,
	})
	k.evictLocked()
}

func (k *KPITracker) evictLocked() {
	cutoff := time.Now().Add(-k.window)
	i := 0
	for i < len(k.events) && k.events[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		k.events = k.events[i:]
	}
}

// Summary is the computed business KPI snapshot.
type Summary struct {
	WindowSeconds          float64 `json:"window_seconds"`
	SampleCount            int     `json:"sample_count"`
	LLMCostPerRequestAvg   float64 `json:"llm_cost_per_request_avg"`
	TurnDurationAvgSeconds float64 `json:"turn_duration_seconds_avg"`
	TurnDurationP95Seconds float64 `json:"turn_duration_seconds_p95"`
	SuccessRate            float64 `json:"success_rate"`
	TotalTurns             int     `json:"total_turns"`
	TotalLLMCostDollars    float64 `json:"total_llm_cost_dollars"`
}

// Snapshot computes the KPI summary over the current trailing window.
func (k *KPITracker) Snapshot() Summary {
	k.mu.Lock()
	k.evictLocked()
	events := append([]completion(nil), k.events...)
	k.mu.Unlock()

	s := Summary{WindowSeconds: k.window.Seconds(), TotalTurns: len(events), SampleCount: len(events)}
	if len(events) == 0 {
		return s
	}

	var durationSum, costSum float64
	successes := 0
	durations := make([]float64, 0, len(events))
	for _, e := range events {
		durationSum += e.durationSecs
		costSum += e.llmCostDollars
		durations = append(durations, e.durationSecs)
		if e.success {
			successes++
		}
	}
	sort.Float64s(durations)

	s.TurnDurationAvgSeconds = durationSum / float64(len(events))
	s.LLMCostPerRequestAvg = costSum / float64(len(events))
	s.SuccessRate = float64(successes) / float64(len(events))
	s.TotalLLMCostDollars = costSum
	s.TurnDurationP95Seconds = percentile(durations, 0.95)
	return s
}

// percentile expects a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := p * float64(len(sorted)-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
