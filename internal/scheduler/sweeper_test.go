package scheduler_test

import (
	"testing"
	"time"

	"github.com/marcus-qen/turnengine/internal/registry"
	"github.com/marcus-qen/turnengine/internal/scheduler"
)

func TestSweepEvictsStaleTerminalEntries(t *testing.T) {
	reg := registry.New()
	stale := time.Now().Add(-2 * time.Hour)
	reg.Put(registry.Summary{TurnID: "stale-completed", Status: registry.StatusCompleted, StartedAt: stale})
	reg.Put(registry.Summary{TurnID: "stale-failed", Status: registry.StatusFailed, StartedAt: stale})
	reg.Put(registry.Summary{TurnID: "stale-running", Status: registry.StatusRunning, StartedAt: stale})
	reg.Put(registry.Summary{TurnID: "fresh-completed", Status: registry.StatusCompleted, StartedAt: time.Now()})

	s, err := scheduler.New("*/5 * * * *", time.Hour, reg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Sweep()

	if _, ok := reg.Get("stale-completed"); ok {
		t.Fatal("stale completed entry should have been evicted")
	}
	if _, ok := reg.Get("stale-failed"); ok {
		t.Fatal("stale failed entry should have been evicted")
	}
	if _, ok := reg.Get("stale-running"); !ok {
		t.Fatal("running entries must never be evicted, however old")
	}
	if _, ok := reg.Get("fresh-completed"); !ok {
		t.Fatal("fresh terminal entries must be retained")
	}
}

func TestNewRejectsBadCronSpec(t *testing.T) {
	if _, err := scheduler.New("not a cron spec", time.Hour, registry.New(), nil); err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}
