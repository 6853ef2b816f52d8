package background

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper is satisfied by services.SessionService.
type Sweeper interface {
	Sweep(ctx context.Context) (stamped, purged int64, err error)
}

// SweepManager periodically stamps passively expired sessions and purges
// terminated ones past the retention window. Liveness never depends on the
// sweep running; it is bookkeeping for the session listings and retention.
type SweepManager struct {
	sessions Sweeper
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewSweepManager creates a new sweep manager
func NewSweepManager(sessions Sweeper, logger *slog.Logger, interval time.Duration) *SweepManager {
	return &SweepManager{
		sessions: sessions,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep task
func (sm *SweepManager) Start(ctx context.Context) {
	ticker := time.NewTicker(sm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	sm.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			sm.runSweep(ctx)
		case <-sm.stopCh:
			sm.logger.Info("session sweep manager stopped")
			return
		case <-ctx.Done():
			sm.logger.Info("session sweep manager context cancelled")
			return
		}
	}
}

func (sm *SweepManager) runSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	stamped, purged, err := sm.sessions.Sweep(sweepCtx)
	if err != nil {
		sm.logger.Error("session sweep failed", slog.Any("error", err))
		return
	}

	if stamped > 0 || purged > 0 {
		sm.logger.Info("session sweep completed",
			slog.Int64("stamped_expired", stamped),
			slog.Int64("purged", purged))
	}
}

// Stop signals the sweep manager to stop
func (sm *SweepManager) Stop() {
	close(sm.stopCh)
}
