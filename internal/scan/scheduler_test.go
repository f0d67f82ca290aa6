package scan

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/linktrail/internal/errors"
)

type countingRunner struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func newCountingRunner() *countingRunner {
	return &countingRunner{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (r *countingRunner) Run(ctx context.Context, _ RunOptions) (*Report, error) {
	r.calls.Add(1)
	r.started <- struct{}{}
	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &Report{}, nil
}

func TestScheduler_TriggerCoalesces(t *testing.T) {
	r := newCountingRunner()
	s, err := NewScheduler(r, SchedulerOptions{Interval: time.Hour}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.True(t, s.Trigger())
	<-r.started

	// While the first scan runs, only one further request is held.
	assert.True(t, s.Trigger())
	assert.False(t, s.Trigger())
	assert.False(t, s.Trigger())

	close(r.release)
	<-r.started
	assert.Never(t, func() bool { return r.calls.Load() > 2 }, 100*time.Millisecond, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestScheduler_IntervalAndRunOnStart(t *testing.T) {
	r := newCountingRunner()
	close(r.release)

	var reports atomic.Int32
	s, err := NewScheduler(r, SchedulerOptions{
		Interval:   20 * time.Millisecond,
		RunOnStart: true,
		OnReport:   func(*Report, error) { reports.Add(1) },
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return r.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, reports.Load(), int32(3))
}

type busyRunner struct{ calls atomic.Int32 }

func (r *busyRunner) Run(context.Context, RunOptions) (*Report, error) {
	r.calls.Add(1)
	return nil, errors.New(errors.CodeScanInProgress, "busy")
}

func TestScheduler_SkipsReportWhenBusy(t *testing.T) {
	r := &busyRunner{}
	var reports atomic.Int32
	s, err := NewScheduler(r, SchedulerOptions{Interval: time.Hour, OnReport: func(*Report, error) { reports.Add(1) }}, nil)
	require.NoError(t, err)

	s.runOnce(context.Background())
	assert.Equal(t, int32(1), r.calls.Load())
	assert.Zero(t, reports.Load())
}

func TestScheduler_CronNext(t *testing.T) {
	s, err := NewScheduler(newCountingRunner(), SchedulerOptions{Schedule: "*/5 * * * *"}, nil)
	require.NoError(t, err)

	now := time.Date(2024, 8, 1, 10, 2, 30, 0, time.UTC)
	assert.Equal(t, 2*time.Minute+30*time.Second, s.next(now))
	assert.Equal(t, "*/5 * * * *", s.describe())
}

func TestNewScheduler_Invalid(t *testing.T) {
	_, err := NewScheduler(newCountingRunner(), SchedulerOptions{Schedule: "not a schedule"}, nil)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = NewScheduler(newCountingRunner(), SchedulerOptions{}, nil)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}
