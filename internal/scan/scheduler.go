package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/runnerr0/linktrail/internal/errors"
	"github.com/runnerr0/linktrail/internal/logger"
)

// Runner runs one scan.
type Runner interface {
	Run(ctx context.Context, opts RunOptions) (*Report, error)
}

// SchedulerOptions configures a Scheduler. Schedule, a cron expression,
// takes precedence over Interval.
type SchedulerOptions struct {
	Interval   time.Duration
	Schedule   string
	RunOnStart bool
	// OnReport, when set, is called after every run that was not skipped
	// because another scan was in progress.
	OnReport func(*Report, error)
}

// Scheduler triggers scans on a timer and on demand. Runs never overlap:
// a trigger that arrives while a scan is running is held (at most one)
// and runs right after it.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	schedule *cronexpr.Expression
	opts     SchedulerOptions
	trigger  chan struct{}
	logger   logger.Logger
}

// NewScheduler creates a Scheduler for runner.
func NewScheduler(runner Runner, opts SchedulerOptions, log logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Scheduler{
		runner:   runner,
		interval: opts.Interval,
		opts:     opts,
		trigger:  make(chan struct{}, 1),
		logger:   log,
	}
	if opts.Schedule != "" {
		expr, err := cronexpr.Parse(opts.Schedule)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeValidation, "schedule %q", opts.Schedule)
		}
		s.schedule = expr
	} else if opts.Interval <= 0 {
		return nil, errors.Validation("scan interval must be positive")
	}
	return s, nil
}

// Trigger requests a scan as soon as possible. It returns false when a
// request is already pending.
func (s *Scheduler) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run blocks, scanning on schedule and on trigger, until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", logger.String("every", s.describe()))
	if s.opts.RunOnStart {
		s.Trigger()
	}

	for {
		timer := time.NewTimer(s.next(time.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return nil
		case <-timer.C:
		case <-s.trigger:
			timer.Stop()
		}
		s.runOnce(ctx)
	}
}

// next returns how long to wait from now until the next scheduled scan.
func (s *Scheduler) next(now time.Time) time.Duration {
	if s.schedule == nil {
		return s.interval
	}
	at := s.schedule.Next(now)
	if at.IsZero() {
		// The expression has no future match; fall back to a daily check.
		return 24 * time.Hour
	}
	return at.Sub(now)
}

func (s *Scheduler) describe() string {
	if s.schedule != nil {
		return s.opts.Schedule
	}
	return fmt.Sprint(s.interval)
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	rep, err := s.runner.Run(ctx, RunOptions{})
	if errors.Is(err, errors.ErrScanInProgress) {
		s.logger.Debug("scan skipped, another is in progress")
		return
	}
	if err != nil && ctx.Err() == nil {
		s.logger.Error("scheduled scan failed", logger.Error(err))
	}
	if s.opts.OnReport != nil {
		s.opts.OnReport(rep, err)
	}
}
