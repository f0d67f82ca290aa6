// Package reconcile merges batches of source observations into the
// catalog.
//
// Browsers report cumulative visit counts per URL. The engine keeps, per
// (source, raw URL), the last cumulative count it consumed and adds only
// the difference on the next scan, so repeated scans never count a visit
// twice and a URL seen from several profiles sums their independent
// counters. A count lower than the checkpoint means the browser's own
// history was cleared: the whole observed count is added and the reset is
// logged.
package reconcile

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/runnerr0/linktrail/internal/canonical"
	"github.com/runnerr0/linktrail/internal/errors"
	"github.com/runnerr0/linktrail/internal/filter"
	"github.com/runnerr0/linktrail/internal/history"
	"github.com/runnerr0/linktrail/internal/logger"
	"github.com/runnerr0/linktrail/internal/storage"
)

// TxRunner runs a function inside one atomic catalog write.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *storage.Tx) error) error
}

// SourceStatus is the outcome of reading one source, recorded in the
// source registry together with the batch.
type SourceStatus struct {
	Source       history.Source
	Observations int
	ScannedAt    time.Time
	Err          error
}

// Batch is everything one completed scan hands to the engine.
type Batch struct {
	Observations []history.Observation
	Sources      []SourceStatus
}

// Report summarizes one reconciliation. Created, Updated, Unchanged and
// Trashed count distinct links; the skip counters count observations.
type Report struct {
	Observations    int   `json:"observations"`
	Created         int   `json:"created"`
	Updated         int   `json:"updated"`
	Unchanged       int   `json:"unchanged"`
	Trashed         int   `json:"trashed"` // trashed links whose counters were merged
	SkippedInvalid  int   `json:"skipped_invalid"`
	SkippedFiltered int   `json:"skipped_filtered"`
	CounterResets   int   `json:"counter_resets"`
	VisitsAdded     int64 `json:"visits_added"`
}

// Engine applies batches to the catalog.
type Engine struct {
	store  TxRunner
	logger logger.Logger
}

// NewEngine creates an Engine writing through store.
func NewEngine(store TxRunner, log logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{store: store, logger: log}
}

// linkState tracks one link touched by the batch.
type linkState struct {
	link    *storage.Link
	created bool
	dirty   bool
}

// Reconcile merges batch into the catalog in a single transaction. Either
// every link, checkpoint and registry change of the batch is committed, or
// none is and the error is returned. Per-observation problems (invalid or
// excluded URLs) are counted, never fatal.
func (e *Engine) Reconcile(ctx context.Context, batch Batch, filters *filter.Set) (*Report, error) {
	var report Report

	err := e.store.WithTx(ctx, func(tx *storage.Tx) error {
		report = Report{Observations: len(batch.Observations)}

		checkpoints := make(map[string]map[string]storage.Checkpoint)
		links := make(map[string]*linkState)
		var order []string

		for _, o := range batch.Observations {
			if err := ctx.Err(); err != nil {
				return err
			}

			canon, err := canonical.Canonicalize(o.URL)
			if err != nil {
				report.SkippedInvalid++
				continue
			}
			if filters.Excluded(canon) {
				report.SkippedFiltered++
				continue
			}

			cps, ok := checkpoints[o.SourceKey()]
			if !ok {
				cps, err = tx.Checkpoints(ctx, o.Browser, o.Profile)
				if err != nil {
					return err
				}
				checkpoints[o.SourceKey()] = cps
			}

			delta, reset := visitDelta(cps[o.URL].CumulativeCount, o.VisitCount)
			if reset {
				report.CounterResets++
				e.logger.Warn("visit counter reset",
					logger.String("browser", o.Browser),
					logger.String("profile", o.Profile),
					logger.String("url", o.URL),
					logger.Int64("prior", cps[o.URL].CumulativeCount),
					logger.Int64("observed", o.VisitCount))
			}

			next := storage.Checkpoint{
				Browser:         o.Browser,
				Profile:         o.Profile,
				URL:             o.URL,
				CumulativeCount: o.VisitCount,
				LastVisitAt:     o.LastVisit,
			}
			if prev, ok := cps[o.URL]; !ok || prev.CumulativeCount != next.CumulativeCount || !prev.LastVisitAt.Equal(next.LastVisitAt) {
				if err := tx.PutCheckpoint(ctx, next); err != nil {
					return err
				}
				cps[o.URL] = next
			}

			st, ok := links[canon]
			if !ok {
				l, err := tx.LinkByCanonical(ctx, canon)
				if err != nil {
					return err
				}
				if l == nil {
					st = &linkState{link: newLink(canon, o, tx.Now()), created: true, dirty: true}
					st.link.VisitCount = delta
					report.VisitsAdded = AddVisits(report.VisitsAdded, delta)
					links[canon] = st
					order = append(order, canon)
					continue
				}
				st = &linkState{link: l}
				links[canon] = st
				order = append(order, canon)
			}

			if applyObservation(st.link, o, delta) {
				st.dirty = true
			}
			report.VisitsAdded = AddVisits(report.VisitsAdded, delta)
		}

		for _, canon := range order {
			st := links[canon]
			switch {
			case st.created:
				if err := tx.InsertLink(ctx, st.link); err != nil {
					return err
				}
				report.Created++
			case !st.dirty:
				report.Unchanged++
			default:
				if err := tx.SaveLink(ctx, st.link); err != nil {
					return err
				}
				if st.link.Trashed() {
					report.Trashed++
				} else {
					report.Updated++
				}
			}
		}

		return recordSources(ctx, tx, batch)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("reconciled batch",
		logger.Int("observations", report.Observations),
		logger.Int("created", report.Created),
		logger.Int("updated", report.Updated),
		logger.Int("unchanged", report.Unchanged),
		logger.Int("trashed", report.Trashed),
		logger.Int("skipped_invalid", report.SkippedInvalid),
		logger.Int("skipped_filtered", report.SkippedFiltered),
		logger.Int("counter_resets", report.CounterResets))
	return &report, nil
}

// visitDelta converts a cumulative count into the visits not yet counted.
func visitDelta(prior, observed int64) (delta int64, reset bool) {
	if observed < 0 {
		observed = 0
	}
	if observed >= prior {
		return observed - prior, false
	}
	return observed, true
}

func newLink(canon string, o history.Observation, now time.Time) *storage.Link {
	title := NormalizeTitle(o.Title)
	if title == "" {
		title = canon
	}
	return &storage.Link{
		CanonicalURL: canon,
		RawURL:       o.URL,
		Title:        title,
		Domain:       canonical.Domain(canon),
		FirstSeenAt:  now,
		LastVisitAt:  o.LastVisit,
		LastSource:   o.SourceKey(),
	}
}

// applyObservation merges o into l and reports whether l changed. User
// fields and the trash state are never touched. Display fields follow the
// most recently visited observation.
func applyObservation(l *storage.Link, o history.Observation, delta int64) bool {
	changed := false

	if delta > 0 {
		l.VisitCount = AddVisits(l.VisitCount, delta)
		changed = true
	}

	if !o.LastVisit.Before(l.LastVisitAt) {
		if o.URL != l.RawURL {
			l.RawURL = o.URL
			changed = true
		}
		if title := NormalizeTitle(o.Title); title != "" && title != l.Title {
			l.Title = title
			changed = true
		}
		if o.SourceKey() != l.LastSource {
			l.LastSource = o.SourceKey()
			changed = true
		}
	}

	if o.LastVisit.After(l.LastVisitAt) {
		l.LastVisitAt = o.LastVisit
		changed = true
	}

	return changed
}

// recordSources writes the registry row of every source in the batch.
func recordSources(ctx context.Context, tx *storage.Tx, batch Batch) error {
	watermarks := make(map[string]time.Time)
	for _, o := range batch.Observations {
		if o.LastVisit.After(watermarks[o.SourceKey()]) {
			watermarks[o.SourceKey()] = o.LastVisit
		}
	}

	for _, s := range batch.Sources {
		st := storage.SourceState{
			Browser:          s.Source.Browser,
			Profile:          s.Source.Profile,
			Name:             s.Source.Name,
			Path:             s.Source.Path,
			LastScannedAt:    s.ScannedAt,
			LastObservations: s.Observations,
		}
		if s.Err != nil {
			st.LastErrorCode = string(errors.CodeOf(s.Err))
			st.LastError = s.Err.Error()
			if err := tx.RecordSourceFailure(ctx, st); err != nil {
				return fmt.Errorf("source %s: %w", s.Source.Key(), err)
			}
			continue
		}
		st.Watermark = watermarks[s.Source.Key()]
		if err := tx.RecordSourceSuccess(ctx, st); err != nil {
			return fmt.Errorf("source %s: %w", s.Source.Key(), err)
		}
	}
	return nil
}

// AddVisits adds two non-negative visit counts, saturating at
// math.MaxInt64 instead of wrapping.
func AddVisits(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// NormalizeTitle composes Unicode (NFC) and collapses runs of whitespace.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(norm.NFC.String(title)), " ")
}
