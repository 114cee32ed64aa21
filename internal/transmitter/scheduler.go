package transmitter

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// ScheduleSpec fires a delivery run every hour from 08:00 to 17:00,
// Monday through Friday, matching the integration engine's intake windows.
const ScheduleSpec = "0 8-17 * * MON-FRI"

// Scheduler triggers recurring delivery runs. Runs never overlap: a trigger
// that fires while the previous run is still active is skipped and logged.
type Scheduler struct {
	spec    string
	running atomic.Bool
	logger  *slog.Logger
}

// NewScheduler creates a Scheduler on the standard delivery schedule.
func NewScheduler(logger *slog.Logger) *Scheduler {
	return NewSchedulerWithSpec(ScheduleSpec, logger)
}

// NewSchedulerWithSpec creates a Scheduler on a custom cron spec.
func NewSchedulerWithSpec(spec string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{spec: spec, logger: logger}
}

// Start registers run on the schedule and blocks until ctx is cancelled,
// then waits for an in-flight run to finish.
func (s *Scheduler) Start(ctx context.Context, run func(context.Context) error) error {
	c := cron.New()
	if _, err := c.AddFunc(s.spec, func() { s.tryRun(ctx, run) }); err != nil {
		return err
	}
	c.Start()
	s.logger.Info("delivery schedule active", "spec", s.spec)

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	return ctx.Err()
}

// tryRun executes run unless one is already active. The guard keeps the
// "at most one active run" property even if a run outlasts the hour.
func (s *Scheduler) tryRun(ctx context.Context, run func(context.Context) error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous delivery run still active, skipping trigger")
		return
	}
	defer s.running.Store(false)

	if err := run(ctx); err != nil {
		s.logger.Error("scheduled delivery run failed", "error", err)
	}
}
