// Package reaper periodically removes expired scan jobs and fails jobs
// stuck in the running state past the watchdog deadline.
package reaper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xenlix/aeoscan/internal/metrics"
	"github.com/xenlix/aeoscan/internal/scan"
)

const stuckErrText = "scan watchdog timeout"

// Config controls sweep cadence and the stuck-job deadline.
type Config struct {
	Interval   time.Duration
	StuckAfter time.Duration
}

// Reaper owns the background sweep loop.
type Reaper struct {
	cfg    Config
	store  scan.JobStore
	clock  scan.Clock
	logger *zap.Logger
}

// New constructs a Reaper.
func New(cfg Config, store scan.JobStore, clock scan.Clock, logger *zap.Logger) *Reaper {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.StuckAfter == 0 {
		cfg.StuckAfter = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{cfg: cfg, store: store, clock: clock, logger: logger}
}

// Run sweeps on the configured interval until the context finishes.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep performs one pass: delete expired jobs, then fail stuck ones.
// Errors are logged; the next tick retries.
func (r *Reaper) Sweep(ctx context.Context) {
	now := r.clock.Now()

	expired, err := r.store.DeleteExpired(ctx, now)
	if err != nil {
		r.logger.Error("delete expired jobs failed", zap.Error(err))
	} else if expired > 0 {
		r.logger.Info("deleted expired jobs", zap.Int("count", expired))
		metrics.ObserveReaped("expired", expired)
	}

	stuck, err := r.store.FailStuck(ctx, now.Add(-r.cfg.StuckAfter), stuckErrText)
	if err != nil {
		r.logger.Error("fail stuck jobs failed", zap.Error(err))
	} else if stuck > 0 {
		r.logger.Warn("failed stuck jobs", zap.Int("count", stuck))
		metrics.ObserveReaped("stuck", stuck)
	}
}
