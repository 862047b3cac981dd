// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/stepcoach/internal/domain/game/model"
	"github.com/ManuGH/stepcoach/internal/log"
	"github.com/ManuGH/stepcoach/internal/metrics"
)

// SweeperConfig defines the polling cadence.
type SweeperConfig struct {
	Interval    time.Duration
	Concurrency int // Sessions polled in parallel per pass
}

// Sweeper drives sessions that receive no evidence: interrupts, timeouts,
// dwell-closed windows and reclaimed finalize leases.
type Sweeper struct {
	Orch *Orchestrator
	Conf SweeperConfig
}

// Run starts the sweeper loop. It periodically calls SweepOnce on a ticker.
func (s *Sweeper) Run(ctx context.Context) {
	if s.Conf.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.Conf.Interval)
	defer ticker.Stop()

	log.L().Info().Dur("interval", s.Conf.Interval).Msg("background sweeper started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce polls every stored session exactly once and returns how many
// are still live. This method is deterministic and suitable for unit testing.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	ids, err := s.Orch.store.ListSessionIDs(ctx)
	if err != nil {
		log.L().Warn().Err(err).Msg("sweeper: failed to list sessions")
		return 0
	}

	limit := s.Conf.Concurrency
	if limit <= 0 {
		limit = 8
	}
	var live atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, sid := range ids {
		g.Go(func() error {
			state, err := s.Orch.Poll(gctx, sid)
			if err != nil {
				log.L().Warn().Err(err).Str(log.FieldSessionID, sid).Msg("sweeper: poll failed")
			}
			if state == model.SessionStarted || state == model.SessionInProgress {
				live.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := int(live.Load())
	metrics.ActiveSessions.Set(float64(n))
	return n
}
