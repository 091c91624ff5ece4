package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper runs one dispatcher pass.
type Sweeper interface {
	RunSweep(ctx context.Context) (*Report, error)
}

// Scheduler is the in-process trigger for sweeps. Deployments that call
// the cron endpoint instead can leave it disabled; both end up in the
// same RunSweep.
type Scheduler struct {
	sweeper       Sweeper
	logger        *zap.Logger
	checkInterval time.Duration
	startDelay    time.Duration
	notifyCh      chan struct{}
}

func New(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		sweeper:       sweeper,
		logger:        logger,
		checkInterval: interval,
		startDelay:    2 * time.Second,
		notifyCh:      make(chan struct{}, 1),
	}
}

// Notify triggers an immediate check. Non-blocking if a check is already pending.
func (s *Scheduler) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
		// Channel already has a pending notification, skip
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler started", zap.Duration("interval", s.checkInterval))
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	// Give the HTTP server and migrations a moment before the first sweep
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.startDelay):
	}

	s.check(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.check(ctx)
		case <-s.notifyCh:
			s.logger.Debug("scheduler triggered by notification")
			s.check(ctx)
		}
	}
}

func (s *Scheduler) check(ctx context.Context) {
	if _, err := s.sweeper.RunSweep(ctx); err != nil {
		s.logger.Error("sweep failed", zap.Error(err))
	}
}
