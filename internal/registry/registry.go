// Package registry implements the active-turn registry: an in-memory map
// from turn id to a lifecycle summary, used by the HTTP layer's status,
// list and cleanup endpoints. It is the only place outside a turn's own
// worker goroutine that reads turn state, so it never touches the
// *turn.Turn aggregate directly — it only stores the small summary the API
// server hands it when a run is admitted and again when the turn finishes.
package registry

import (
	"sync"
	"time"

	"github.com/marcus-qen/turnengine/internal/phasetype"
	"github.com/marcus-qen/turnengine/internal/turn"
)

// Status is the lifecycle status reported on the HTTP status endpoint.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusNotFound  Status = "not_found"
)

// Summary is the snapshot stored per turn id. It is copied in and out of
// the registry by value so callers never share mutable state with a
// worker's in-flight aggregate: external inspectors observe the snapshot,
// they never mutate the aggregate.
type Summary struct {
	TurnID          string
	Status          Status
	CurrentPhase    *phasetype.Type
	ProgressPct     float64
	StartedAt       time.Time
	ExecutionTimeMs int64
	ErrorMessage    string
	CleanupToken    string

	// Events is the finished turn's domain event trail, populated only once
	// the turn reaches a terminal state. Read-only after that point.
	Events []turn.DomainEvent
}

// Registry is guarded by a single mutex with short critical sections.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Summary
}

// New builds an empty active-turn registry.
func New() *Registry {
	return &Registry{entries: map[string]Summary{}}
}

// Put inserts or overwrites a turn's summary.
func (r *Registry) Put(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[s.TurnID] = s
}

// Get returns the summary for a turn id and whether it is present.
func (r *Registry) Get(turnID string) (Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.entries[turnID]
	return s, ok
}

// List returns a snapshot of every registered turn, ordered by started-at
// ascending, oldest first.
func (r *Registry) List() []Summary {
	r.mu.Lock()
	out := make([]Summary, 0, len(r.entries))
	for _, s := range r.entries {
		out = append(out, s)
	}
	r.mu.Unlock()
	sortByStart(out)
	return out
}

func sortByStart(entries []Summary) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].StartedAt.Before(entries[j-1].StartedAt); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

// Remove evicts a turn's entry. Cleanup endpoints only evict registry
// entries; they never cancel an in-flight worker.
func (r *Registry) Remove(turnID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[turnID]; !ok {
		return false
	}
	delete(r.entries, turnID)
	return true
}

// Count returns the number of currently-registered turns, regardless of
// status.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CountRunning returns the number of turns whose status is StatusRunning.
func (r *Registry) CountRunning() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.entries {
		if s.Status == StatusRunning {
			n++
		}
	}
	return n
}
