package recon

import (
	"context"
	"fmt"
	"time"

	"ms-registration/internal/logger"
)

// SweepLock is a lease restricting the expiry sweep to one instance at a
// time when the service is horizontally scaled.
type SweepLock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Sweeper periodically expires stale pending tickets. Correctness does not
// depend on the lock (the compare-and-swap handles races); the lock only
// avoids redundant sweeps across replicas.
type Sweeper struct {
	engine   *Engine
	lock     SweepLock
	interval time.Duration
	logger   *logger.Logger
}

func NewSweeper(engine *Engine, lock SweepLock, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{engine: engine, lock: lock, interval: interval, logger: log}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("SWEEP", fmt.Sprintf("Expiry sweeper running every %s", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("SWEEP", "Expiry sweeper stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	acquired, err := s.lock.TryAcquire(ctx)
	if err != nil {
		s.logger.Error("SWEEP", fmt.Sprintf("Failed to acquire sweep lock: %v", err))
		return
	}
	if !acquired {
		s.logger.Debug("SWEEP", "Another instance holds the sweep lock, skipping")
		return
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logger.Error("SWEEP", fmt.Sprintf("Failed to release sweep lock: %v", err))
		}
	}()

	expired, err := s.engine.ExpireStale(ctx, time.Now())
	if err != nil {
		s.logger.Error("SWEEP", fmt.Sprintf("Expiry sweep failed: %v", err))
		return
	}
	if expired > 0 {
		s.logger.Info("SWEEP", fmt.Sprintf("Expired %d stale pending tickets", expired))
	}
}
