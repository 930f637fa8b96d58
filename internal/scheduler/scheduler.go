// Package scheduler runs periodic maintenance against an engine: daily
// interest accrual on a cron spec, and optional scheduled snapshots. Job
// failures are logged and retried on the next tick, never fatal.
package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ledgerd/ledgerd/internal/engine"
)

// Options configures a Scheduler.
type Options struct {
	// InterestCronSpec schedules interest accrual (e.g. "0 0 * * *" for
	// midnight daily). Empty disables the job.
	InterestCronSpec string
	// InterestRateBasisPoints is the annual rate applied on each run.
	InterestRateBasisPoints int64
	// SnapshotCronSpec schedules snapshots in addition to the engine's own
	// triggers. Empty disables the job.
	SnapshotCronSpec string
	Logger           *slog.Logger
}

// Scheduler drives time-based engine maintenance.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// New builds a Scheduler for the engine. Invalid cron specs are rejected up
// front.
func New(e *engine.Engine, opts Options) (*Scheduler, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := cron.New()
	if opts.InterestCronSpec != "" {
		_, err := c.AddFunc(opts.InterestCronSpec, func() {
			credited, err := e.ApplyInterest(opts.InterestRateBasisPoints, time.Now())
			if err != nil {
				logger.Error("scheduled interest accrual failed", "err", err)
				return
			}
			logger.Info("scheduled interest accrual complete", "credited", credited)
		})
		if err != nil {
			return nil, fmt.Errorf("scheduler: interest spec %q: %w", opts.InterestCronSpec, err)
		}
	}
	if opts.SnapshotCronSpec != "" {
		_, err := c.AddFunc(opts.SnapshotCronSpec, func() {
			if err := e.Snapshot(); err != nil {
				logger.Error("scheduled snapshot failed", "err", err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("scheduler: snapshot spec %q: %w", opts.SnapshotCronSpec, err)
		}
	}

	return &Scheduler{cron: c, logger: logger}, nil
}

// Start begins running jobs in their own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
