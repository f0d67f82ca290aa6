package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/runnerr0/linktrail/internal/config"
	"github.com/runnerr0/linktrail/internal/discovery"
	"github.com/runnerr0/linktrail/internal/filter"
	"github.com/runnerr0/linktrail/internal/history"
	"github.com/runnerr0/linktrail/internal/logger"
	"github.com/runnerr0/linktrail/internal/metrics"
	"github.com/runnerr0/linktrail/internal/scan"
	"github.com/runnerr0/linktrail/internal/storage"
)

// app bundles what a command needs: config, logger and an open catalog.
type app struct {
	cfg    *config.Config
	log    logger.Logger
	db     *sql.DB
	store  *storage.SQLiteStore
	dbPath string
	env    discovery.Env
}

// openApp loads the config, builds the logger and opens the catalog.
// Priority for the database path: --db flag > config file > defaults.
func openApp(globals *GlobalFlags) (*app, error) {
	cfg, err := loadConfig(globals)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if globals != nil && globals.Verbose {
		level = "debug"
	}
	logFile, err := config.ExpandPath(cfg.Logging.File)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Options{Level: level, Format: cfg.Logging.Format, File: logFile})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, err
	}
	if globals != nil && globals.DB != "" {
		if dbPath, err = config.ExpandPath(globals.DB); err != nil {
			return nil, err
		}
	}

	a, err := newApp(cfg, log, dbPath)
	if err != nil {
		return nil, err
	}
	a.env = discovery.CurrentEnv()
	return a, nil
}

func loadConfig(globals *GlobalFlags) (*config.Config, error) {
	if globals != nil && globals.Config != "" {
		path, err := config.ExpandPath(globals.Config)
		if err != nil {
			return nil, err
		}
		return config.LoadOrCreateAt(path)
	}
	return config.LoadOrCreate()
}

// newApp opens the catalog at dbPath, seeding default filters into a new
// catalog when the config asks for it.
func newApp(cfg *config.Config, log logger.Logger, dbPath string) (*app, error) {
	var seed []string
	if cfg.Filters.SeedDefaults {
		seed = cfg.Filters.DenylistDomains
	}

	db, err := storage.Open(dbPath, storage.OpenOptions{
		JournalMode:   cfg.Storage.SQLiteJournalMode,
		BusyTimeoutMS: cfg.Storage.BusyTimeoutMS,
		SeedDomains:   seed,
	})
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}

	return &app{cfg: cfg, log: log, db: db, store: store, dbPath: dbPath}, nil
}

func (a *app) Close() {
	a.store.Close()
	a.db.Close()
	_ = a.log.Sync()
}

func (a *app) filterOptions() filter.Options {
	return filter.Options{SubdomainMatch: a.cfg.Filters.SubdomainMatch}
}

// activeFilters compiles the stored active filters. Broken ones are
// reported on stderr and left out.
func (a *app) activeFilters(ctx context.Context) (*filter.Set, error) {
	rules, err := a.store.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	set, errs := filter.Compile(rules, a.filterOptions())
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "warning: %v\n", e)
	}
	return set, nil
}

func (a *app) finder() *discovery.Finder {
	return discovery.NewFinder(a.env, a.log)
}

func (a *app) metricsPath(suffix string) string {
	path, err := config.ExpandPath(a.cfg.Metrics.TextfilePath)
	if err != nil || path == "" {
		return ""
	}
	if suffix == "" {
		return path
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + "_" + suffix + filepath.Ext(path)
}

// scanService wires discovery, the history reader and the catalog.
func (a *app) scanService(reader history.Reader) *scan.Service {
	if reader == nil {
		tempDir, _ := config.ExpandPath(a.cfg.Scan.TempDir)
		reader = history.NewChromiumReader(tempDir, a.log)
	}
	finder := a.finder()
	sources := func() []history.Source { return finder.Sources(a.cfg) }

	return scan.NewService(a.store, sources, reader, metrics.New(), scan.Options{
		Workers:         a.cfg.Scan.Workers,
		SourceTimeout:   a.cfg.Scan.SourceTimeout(),
		FullRescan:      a.cfg.Scan.FullRescan,
		FilterOptions:   a.filterOptions(),
		MetricsTextfile: a.metricsPath(""),
	}, a.log)
}

// signalContext is cancelled on interrupt or termination.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseDuration parses a human-friendly duration string like "30d", "7d", "24h", "2w".
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("invalid duration: empty string")
	}

	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]

	n, err := strconv.Atoi(numStr)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	switch suffix {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	default:
		return 0, fmt.Errorf("invalid duration: %q (use d, h, w, or m suffix)", s)
	}
}

// formatTime renders t in local time, or "-" when unknown.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// rfc3339 renders t for JSON output, empty when unknown.
func rfc3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// formatBytes formats a byte count into a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatNumber formats an int64 with comma separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if i > 0 {
			result.WriteString(",")
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
