package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Guizzs26/msupply-sync/internal/service"
	"github.com/Guizzs26/msupply-sync/pkg/infra"
)

// Syncer runs one sync cycle
type Syncer interface {
	Sync(ctx context.Context) error
	IsSyncing() bool
}

// Recoverer finishes reconciliation interrupted by a crash
type Recoverer interface {
	RecoverIfNeeded(ctx context.Context) (bool, error)
}

// Scheduler triggers a sync cycle every interval, retrying sooner with backoff after failures
type Scheduler struct {
	syncer    Syncer
	recoverer Recoverer
	interval  time.Duration
	backoff   *infra.Backoff
	logger    *slog.Logger
}

func New(syncer Syncer, recoverer Recoverer, interval time.Duration, l *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:    syncer,
		recoverer: recoverer,
		interval:  interval,
		backoff:   infra.NewBackoff(time.Second, interval, 2.0),
		logger:    l.With("component", "scheduler"),
	}
}

// Run blocks until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	if s.recoverer != nil {
		if ran, err := s.recoverer.RecoverIfNeeded(ctx); err != nil {
			s.logger.Error("Startup recovery failed, will retry after next sync", "error", err)
		} else if ran {
			s.logger.Info("Startup recovery complete")
		}
	}

	for {
		wait := s.tick(ctx)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		}
	}
}

// tick runs at most one cycle and returns how long to wait before the next
func (s *Scheduler) tick(ctx context.Context) time.Duration {
	if ctx.Err() != nil {
		return 0
	}
	if s.syncer.IsSyncing() {
		return s.interval
	}

	err := s.syncer.Sync(ctx)
	switch {
	case err == nil:
		s.backoff.Reset()
		return s.interval
	case errors.Is(err, service.ErrSyncInProgress):
		return s.interval
	case errors.Is(err, context.Canceled):
		return 0
	default:
		wait := s.backoff.Next()
		s.logger.Warn("Sync failed, retrying", "retry_in", wait, "attempt", s.backoff.Attempts(), "error", err)
		return wait
	}
}
