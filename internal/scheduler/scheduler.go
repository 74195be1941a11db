package scheduler

import (
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Purger drops expired cache entries.
type Purger interface {
	Purge() int
}

// Sweeper drops expired rate-limit windows.
type Sweeper interface {
	Sweep() int
}

// Scheduler periodically sweeps expired cache entries and limiter windows.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cache     Purger
	limiter   Sweeper
	interval  time.Duration
	logger    *zap.Logger
}

// New creates a new Scheduler.
func New(interval time.Duration, cache Purger, limiter Sweeper, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		cache:     cache,
		limiter:   limiter,
		interval:  interval,
		logger:    logger.Named("scheduler"),
	}
}

// Start schedules the sweep job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.cache == nil && s.limiter == nil {
		s.logger.Info("nothing to sweep; scheduler idle")
		return nil
	}

	interval := s.interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	_, err := s.scheduler.Every(interval).SingletonMode().Do(s.RunOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce performs a single sweep.
func (s *Scheduler) RunOnce() {
	var purged, swept int
	if s.cache != nil {
		purged = s.cache.Purge()
	}
	if s.limiter != nil {
		swept = s.limiter.Sweep()
	}
	s.logger.Debug("sweep completed",
		zap.Int("cache_entries_purged", purged),
		zap.Int("limiter_windows_swept", swept),
	)
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
