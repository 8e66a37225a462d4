package api

import (
	"testing"
	"time"
)

func TestKPISnapshotEmpty(t *testing.T) {
	k := NewKPITracker(time.Hour)
	s := k.Snapshot()
	if s.SampleCount != 0 || s.SuccessRate != 0 {
		t.Fatalf("empty snapshot = %+v", s)
	}
}

func TestKPISnapshotAggregates(t *testing.T) {
	k := NewKPITracker(time.Hour)
	k.Record(true, 1*time.Second, 0.10)
	k.Record(true, 2*time.Second, 0.20)
	k.Record(false, 3*time.Second, 0.30)

	s := k.Snapshot()
	if s.TotalTurns != 3 {
		t.Fatalf("total = %d", s.TotalTurns)
	}
	if s.TurnDurationAvgSeconds != 2 {
		t.Fatalf("avg duration = %v, want 2", s.TurnDurationAvgSeconds)
	}
	if s.SuccessRate < 0.66 || s.SuccessRate > 0.67 {
		t.Fatalf("success rate = %v, want 2/3", s.SuccessRate)
	}
	wantCost := (0.10 + 0.20 + 0.30) / 3
	if diff := s.LLMCostPerRequestAvg - wantCost; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("cost avg = %v, want %v", s.LLMCostPerRequestAvg, wantCost)
	}
	if s.TurnDurationP95Seconds < s.TurnDurationAvgSeconds {
		t.Fatalf("p95 = %v below avg %v", s.TurnDurationP95Seconds, s.TurnDurationAvgSeconds)
	}
}

func TestKPIDefaultWindow(t *testing.T) {
	k := NewKPITracker(0)
	if s := k.Snapshot(); s.WindowSeconds != 3600 {
		t.Fatalf("window = %v, want 3600", s.WindowSeconds)
	}
}
