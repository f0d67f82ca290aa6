package scan

import (
	"context"
	stderrors "errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/runnerr0/linktrail/internal/errors"
	"github.com/runnerr0/linktrail/internal/history"
	"github.com/runnerr0/linktrail/internal/logger"
)

// SourceResult is the outcome of reading one source.
type SourceResult struct {
	Source       history.Source
	Observations []history.Observation
	Err          error
	StartedAt    time.Time
	Duration     time.Duration
}

// Coordinator reads many sources in parallel on a bounded pool, each with
// its own time budget.
type Coordinator struct {
	reader  history.Reader
	workers int
	timeout time.Duration
	logger  logger.Logger
}

// NewCoordinator creates a Coordinator. workers below one means one;
// a zero timeout means no per-source budget.
func NewCoordinator(reader history.Reader, workers int, timeout time.Duration, log logger.Logger) *Coordinator {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Coordinator{reader: reader, workers: workers, timeout: timeout, logger: log}
}

// Collect reads every source and returns one result per source, in input
// order. A failing source yields a result with Err set and never affects
// the others. When ctx is cancelled, Collect discards everything read so
// far and returns ctx's error.
func (c *Coordinator) Collect(ctx context.Context, sources []history.Source, since map[string]time.Time) ([]SourceResult, error) {
	results := make([]SourceResult, len(sources))

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, src := range sources {
		if ctx.Err() != nil {
			break
		}
		i, src := i, src
		g.Go(func() error {
			results[i] = c.readOne(ctx, src, history.ReadOptions{Since: since[src.Key()]})
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

type readResult struct {
	obs []history.Observation
	err error
}

func (c *Coordinator) readOne(ctx context.Context, src history.Source, opts history.ReadOptions) SourceResult {
	res := SourceResult{Source: src, StartedAt: time.Now()}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	var (
		sctx   context.Context
		cancel context.CancelFunc
	)
	if c.timeout > 0 {
		sctx, cancel = context.WithTimeout(ctx, c.timeout)
	} else {
		sctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	// The read runs on its own goroutine so a reader that is slow to
	// notice cancellation still cannot hold the worker past its budget.
	done := make(chan readResult, 1)
	go func() {
		obs, err := c.reader.Read(sctx, src, opts)
		done <- readResult{obs: obs, err: err}
	}()

	var r readResult
	select {
	case r = <-done:
	case <-sctx.Done():
		r.err = sctx.Err()
	}
	res.Duration = time.Since(res.StartedAt)

	if r.err == nil {
		res.Observations = r.obs
		c.logger.Debug("source read",
			logger.String("source", src.Key()),
			logger.Int("observations", len(r.obs)),
			logger.Duration("took", res.Duration))
		return res
	}

	res.Err = r.err
	if ctx.Err() == nil && stderrors.Is(sctx.Err(), context.DeadlineExceeded) && errors.CodeOf(r.err) != errors.CodeSourceTimeout {
		res.Err = errors.Wrapf(r.err, errors.CodeSourceTimeout, "%s: read exceeded %s", src.Key(), c.timeout)
	}
	if ctx.Err() == nil {
		c.logger.Warn("source failed",
			logger.String("source", src.Key()),
			logger.String("code", string(errors.CodeOf(res.Err))),
			logger.Error(res.Err))
	}
	return res
}
