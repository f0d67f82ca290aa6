// Package metrics holds the Prometheus collectors updated by scans and
// imports. There is no listener; the registry is written to a
// node_exporter textfile after each run when a path is configured.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/runnerr0/linktrail/internal/reconcile"
	"github.com/runnerr0/linktrail/internal/transfer"
)

const namespace = "linktrail"

// Scan results.
const (
	ResultOK        = "ok"
	ResultPartial   = "partial"
	ResultFailed    = "failed"
	ResultCancelled = "cancelled"
)

// Metrics is a private registry of linktrail collectors.
type Metrics struct {
	registry *prometheus.Registry

	scans          *prometheus.CounterVec
	sourceFailures *prometheus.CounterVec
	links          *prometheus.CounterVec
	skipped        *prometheus.CounterVec
	counterResets  prometheus.Counter
	visitsAdded    prometheus.Counter
	scanDuration   prometheus.Histogram
	lastScan       prometheus.Gauge
	sourcesScanned prometheus.Gauge
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Scans run, by result.",
		}, []string{"result"}),
		sourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Sources that could not be read, by error code.",
		}, []string{"code"}),
		links: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_total",
			Help:      "Links written by scans and imports, by action.",
		}, []string{"action"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_total",
			Help:      "Observations and records skipped, by reason.",
		}, []string{"reason"}),
		counterResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "counter_resets_total",
			Help:      "Source visit counters seen going backwards.",
		}),
		visitsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visits_added_total",
			Help:      "Visits added to the catalog by scans.",
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of a scan from discovery to commit.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		lastScan: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_scan_timestamp_seconds",
			Help:      "Unix time the last scan finished.",
		}),
		sourcesScanned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sources",
			Help:      "Sources included in the last scan.",
		}),
	}

	m.registry.MustRegister(
		m.scans, m.sourceFailures, m.links, m.skipped,
		m.counterResets, m.visitsAdded, m.scanDuration,
		m.lastScan, m.sourcesScanned,
	)
	return m
}

// Registry returns the registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ScanFinished records one finished scan.
func (m *Metrics) ScanFinished(result string, sources int, d time.Duration, finished time.Time) {
	m.scans.WithLabelValues(result).Inc()
	m.scanDuration.Observe(d.Seconds())
	m.lastScan.Set(float64(finished.Unix()))
	m.sourcesScanned.Set(float64(sources))
}

// SourceFailed records a source that could not be read.
func (m *Metrics) SourceFailed(code string) {
	if code == "" {
		code = "UNKNOWN"
	}
	m.sourceFailures.WithLabelValues(code).Inc()
}

// Reconciled records the outcome of a reconciliation.
func (m *Metrics) Reconciled(rep *reconcile.Report) {
	if rep == nil {
		return
	}
	m.links.WithLabelValues("created").Add(float64(rep.Created))
	m.links.WithLabelValues("updated").Add(float64(rep.Updated + rep.Trashed))
	m.skipped.WithLabelValues("invalid").Add(float64(rep.SkippedInvalid))
	m.skipped.WithLabelValues("filtered").Add(float64(rep.SkippedFiltered))
	m.counterResets.Add(float64(rep.CounterResets))
	m.visitsAdded.Add(float64(rep.VisitsAdded))
}

// Imported records the outcome of an import.
func (m *Metrics) Imported(rep *transfer.ImportReport) {
	if rep == nil {
		return
	}
	m.links.WithLabelValues("imported").Add(float64(rep.Created))
	m.links.WithLabelValues("merged").Add(float64(rep.Merged + rep.MergedTrashed))
	m.skipped.WithLabelValues("invalid").Add(float64(rep.SkippedInvalid))
	m.skipped.WithLabelValues("filtered").Add(float64(rep.SkippedFiltered))
}

// WriteTextfile writes the registry in the text exposition format,
// atomically replacing path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
