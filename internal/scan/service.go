// Package scan runs scan cycles: discover sources, read them in parallel,
// and hand everything that was read to the reconciliation engine as one
// batch.
package scan

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/runnerr0/linktrail/internal/errors"
	"github.com/runnerr0/linktrail/internal/filter"
	"github.com/runnerr0/linktrail/internal/history"
	"github.com/runnerr0/linktrail/internal/logger"
	"github.com/runnerr0/linktrail/internal/metrics"
	"github.com/runnerr0/linktrail/internal/reconcile"
)

// Store is the part of the catalog a scan reads before reconciling.
type Store interface {
	reconcile.TxRunner
	SourceWatermarks(ctx context.Context) (map[string]time.Time, error)
	ActiveRules(ctx context.Context) ([]filter.Rule, error)
}

// SourceFunc lists the sources of one scan.
type SourceFunc func() []history.Source

// Options configures a Service.
type Options struct {
	Workers         int
	SourceTimeout   time.Duration
	FullRescan      bool // ignore watermarks on every run
	FilterOptions   filter.Options
	MetricsTextfile string
}

// RunOptions tunes a single run.
type RunOptions struct {
	// Full re-reads every URL of every source instead of only those
	// visited since the source's watermark.
	Full bool
}

// SourceOutcome reports how one source fared.
type SourceOutcome struct {
	Source       string `json:"source"`
	Name         string `json:"name,omitempty"`
	Path         string `json:"path"`
	Observations int    `json:"observations"`
	DurationMS   int64  `json:"duration_ms"`
	Code         string `json:"code,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Failed reports whether the source could not be read.
func (o SourceOutcome) Failed() bool {
	return o.Error != ""
}

// Report describes one completed scan.
type Report struct {
	ID           string            `json:"id"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
	Full         bool              `json:"full"`
	Sources      []SourceOutcome   `json:"sources"`
	Failed       int               `json:"failed"`
	FilterErrors []string          `json:"filter_errors,omitempty"`
	Reconcile    *reconcile.Report `json:"reconcile"`
}

// Result classifies the scan for metrics.
func (r *Report) Result() string {
	switch {
	case r.Failed == 0:
		return metrics.ResultOK
	case r.Failed < len(r.Sources):
		return metrics.ResultPartial
	default:
		return metrics.ResultFailed
	}
}

// Service runs scans. At most one scan runs at a time per Service.
type Service struct {
	store       Store
	sources     SourceFunc
	coordinator *Coordinator
	engine      *reconcile.Engine
	metrics     *metrics.Metrics
	opts        Options
	logger      logger.Logger

	running atomic.Bool
}

// NewService wires a Service. A nil metrics gets a private registry.
func NewService(store Store, sources SourceFunc, reader history.Reader, m *metrics.Metrics, opts Options, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		store:       store,
		sources:     sources,
		coordinator: NewCoordinator(reader, opts.Workers, opts.SourceTimeout, log),
		engine:      reconcile.NewEngine(store, log),
		metrics:     m,
		opts:        opts,
		logger:      log,
	}
}

// Running reports whether a scan is in flight.
func (s *Service) Running() bool {
	return s.running.Load()
}

// Run performs one scan. It returns SCAN_IN_PROGRESS when another scan of
// this Service has not finished yet. Per-source failures are reported in
// the Report, not as an error; only a cancelled context or a failed
// commit is. A cancelled scan commits nothing.
func (s *Service) Run(ctx context.Context, ro RunOptions) (*Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, errors.New(errors.CodeScanInProgress, "scan already in progress")
	}
	defer s.running.Store(false)

	rep := &Report{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Full:      ro.Full || s.opts.FullRescan,
	}
	log := s.logger.With(logger.String("scan_id", rep.ID))

	sources := s.sources()
	log.Info("scan started", logger.Int("sources", len(sources)), logger.Bool("full", rep.Full))

	since := map[string]time.Time{}
	if !rep.Full {
		var err error
		if since, err = s.store.SourceWatermarks(ctx); err != nil {
			return nil, s.fail(rep, len(sources), err)
		}
	}

	results, err := s.coordinator.Collect(ctx, sources, since)
	if err != nil {
		log.Info("scan cancelled", logger.Error(err))
		return nil, s.fail(rep, len(sources), err)
	}

	batch := reconcile.Batch{Sources: make([]reconcile.SourceStatus, 0, len(results))}
	for _, r := range results {
		out := SourceOutcome{
			Source:       r.Source.Key(),
			Name:         r.Source.Name,
			Path:         r.Source.Path,
			Observations: len(r.Observations),
			DurationMS:   r.Duration.Milliseconds(),
		}
		if r.Err != nil {
			out.Code = string(errors.CodeOf(r.Err))
			out.Error = r.Err.Error()
			rep.Failed++
			s.metrics.SourceFailed(out.Code)
		}
		rep.Sources = append(rep.Sources, out)

		batch.Observations = append(batch.Observations, r.Observations...)
		batch.Sources = append(batch.Sources, reconcile.SourceStatus{
			Source:       r.Source,
			Observations: len(r.Observations),
			ScannedAt:    r.StartedAt,
			Err:          r.Err,
		})
	}

	filters, err := s.compileFilters(ctx, rep, log)
	if err != nil {
		return nil, s.fail(rep, len(sources), err)
	}

	rep.Reconcile, err = s.engine.Reconcile(ctx, batch, filters)
	if err != nil {
		log.Error("reconcile failed", logger.Error(err))
		return nil, s.fail(rep, len(sources), err)
	}

	rep.FinishedAt = time.Now().UTC()
	s.metrics.Reconciled(rep.Reconcile)
	s.metrics.ScanFinished(rep.Result(), len(sources), rep.FinishedAt.Sub(rep.StartedAt), rep.FinishedAt)
	s.flushMetrics(log)

	log.Info("scan finished",
		logger.Int("sources", len(sources)),
		logger.Int("failed", rep.Failed),
		logger.Int("created", rep.Reconcile.Created),
		logger.Int("updated", rep.Reconcile.Updated),
		logger.Duration("took", rep.FinishedAt.Sub(rep.StartedAt)))
	return rep, nil
}

// compileFilters loads the active rules. Rules that do not compile are
// logged, listed in the report, and left out.
func (s *Service) compileFilters(ctx context.Context, rep *Report, log logger.Logger) (*filter.Set, error) {
	rules, err := s.store.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	set, errs := filter.Compile(rules, s.opts.FilterOptions)
	for _, e := range errs {
		log.Warn("filter ignored", logger.Error(e))
		rep.FilterErrors = append(rep.FilterErrors, e.Error())
	}
	return set, nil
}

func (s *Service) fail(rep *Report, sources int, err error) error {
	result := metrics.ResultFailed
	if stderrors.Is(err, context.Canceled) {
		result = metrics.ResultCancelled
	}
	now := time.Now().UTC()
	s.metrics.ScanFinished(result, sources, now.Sub(rep.StartedAt), now)
	s.flushMetrics(s.logger)
	return err
}

func (s *Service) flushMetrics(log logger.Logger) {
	if s.opts.MetricsTextfile == "" {
		return
	}
	if err := s.metrics.WriteTextfile(s.opts.MetricsTextfile); err != nil {
		log.Warn("failed to write metrics", logger.Error(err))
	}
}
