// Package scheduler runs the periodic housekeeping the turn engine needs
// outside any single turn's request/response cycle: expiring stale entries
// from the active-turn registry. It is a single fixed cron-driven sweep,
// not a job-definition framework.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/marcus-qen/turnengine/internal/registry"
)

// Sweeper periodically evicts terminal (completed/failed) registry entries
// older than the retention window, so a long-running server's active-turn
// registry doesn't grow without bound when cleanup is never called.
type Sweeper struct {
	cron      *cron.Cron
	registry  *registry.Registry
	retention time.Duration
	logger    *zap.Logger
}

// New builds a Sweeper that runs on the given cron spec (standard 5-field
// cron syntax, e.g. "*/5 * * * *" for every five minutes) and evicts
// terminal entries older than retention.
func New(spec string, retention time.Duration, reg *registry.Registry, logger *zap.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sweeper{
		cron:      cron.New(),
		registry:  reg,
		retention: retention,
		logger:    logger,
	}
	if _, err := s.cron.AddFunc(spec, s.Sweep); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins running the sweep on its schedule. Non-blocking.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for any in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep runs one eviction pass immediately. The cron schedule calls this on
// its own cadence; it is also callable directly.
func (s *Sweeper) Sweep() {
	cutoff := time.Now().Add(-s.retention)
	evicted := 0
	for _, entry := range s.registry.List() {
		if entry.Status == registry.StatusRunning {
			continue
		}
		if entry.StartedAt.Before(cutoff) {
			s.registry.Remove(entry.TurnID)
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Info("scheduler: swept stale turn registry entries", zap.Int("evicted", evicted))
	}
}
