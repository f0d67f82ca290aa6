package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/runnerr0/linktrail/internal/storage"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version           string            `json:"version"`
	DatabasePath      string            `json:"database_path"`
	DatabaseSizeBytes int64             `json:"database_size_bytes"`
	ActiveLinks       int64             `json:"active_links"`
	TrashedLinks      int64             `json:"trashed_links"`
	FavoriteLinks     int64             `json:"favorite_links"`
	TotalVisits       int64             `json:"total_visits"`
	Categories        int64             `json:"categories"`
	Tags              int64             `json:"tags"`
	Filters           int64             `json:"filters"`
	ActiveFilters     int64             `json:"active_filters"`
	Sources           int64             `json:"sources"`
	Browsers          []string          `json:"browsers"`
	ScanInterval      int               `json:"scan_interval_seconds"`
	ScanSchedule      string            `json:"scan_schedule,omitempty"`
	TopDomains        []domainCountJSON `json:"top_domains"`
}

type domainCountJSON struct {
	Domain string `json:"domain"`
	Count  int64  `json:"count"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	a, err := openApp(c.globals)
	if err != nil {
		return err
	}
	defer a.Close()

	return c.run(context.Background(), a)
}

func (c *StatusCommand) run(ctx context.Context, a *app) error {
	stats, err := a.store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	// Prefer the file size on disk; the page count is a fallback.
	dbSize := stats.DatabaseSizeBytes
	if info, err := os.Stat(a.dbPath); err == nil {
		dbSize = info.Size()
	}

	if c.jsonOutput() {
		return c.printStatusJSON(a, stats, dbSize)
	}
	return c.printStatusHuman(a, stats, dbSize)
}

func (c *StatusCommand) printStatusHuman(a *app, stats *storage.Stats, dbSize int64) error {
	fmt.Println("Linktrail Status")
	fmt.Println("================")
	fmt.Printf("Version:       %s\n", c.version)
	fmt.Printf("Database:      %s (%s)\n", a.dbPath, formatBytes(dbSize))
	fmt.Printf("Links:         %s\n", formatNumber(stats.ActiveLinks))
	fmt.Printf("Visits:        %s\n", formatNumber(stats.TotalVisits))
	fmt.Printf("Favorites:     %s\n", formatNumber(stats.FavoriteLinks))
	fmt.Printf("Trash:         %s\n", formatNumber(stats.TrashedLinks))
	fmt.Printf("Categories:    %s\n", formatNumber(stats.Categories))
	fmt.Printf("Tags:          %s\n", formatNumber(stats.Tags))
	fmt.Printf("Filters:       %s (%s active)\n", formatNumber(stats.Filters), formatNumber(stats.ActiveFilters))
	fmt.Printf("Sources:       %s\n", formatNumber(stats.Sources))

	// Top domains
	if len(stats.TopDomains) > 0 {
		fmt.Println()
		fmt.Println("Top Domains:")
		for _, d := range stats.TopDomains {
			fmt.Printf("  %-24s %s\n", d.Domain, formatNumber(d.Count))
		}
	}

	fmt.Println()
	browsers := a.cfg.EnabledBrowsers()
	if len(browsers) == 0 {
		fmt.Println("Browsers:      none enabled")
	} else {
		fmt.Printf("Browsers:      %s\n", strings.Join(browsers, ", "))
	}
	if a.cfg.Scan.Schedule != "" {
		fmt.Printf("Schedule:      %s\n", a.cfg.Scan.Schedule)
	} else {
		fmt.Printf("Interval:      %s\n", a.cfg.Scan.Interval())
	}

	return nil
}

func (c *StatusCommand) printStatusJSON(a *app, stats *storage.Stats, dbSize int64) error {
	out := statusJSON{
		Version:           c.version,
		DatabasePath:      a.dbPath,
		DatabaseSizeBytes: dbSize,
		ActiveLinks:       stats.ActiveLinks,
		TrashedLinks:      stats.TrashedLinks,
		FavoriteLinks:     stats.FavoriteLinks,
		TotalVisits:       stats.TotalVisits,
		Categories:        stats.Categories,
		Tags:              stats.Tags,
		Filters:           stats.Filters,
		ActiveFilters:     stats.ActiveFilters,
		Sources:           stats.Sources,
		Browsers:          a.cfg.EnabledBrowsers(),
		ScanInterval:      a.cfg.Scan.IntervalSeconds,
		ScanSchedule:      a.cfg.Scan.Schedule,
		TopDomains:        make([]domainCountJSON, len(stats.TopDomains)),
	}
	if out.Browsers == nil {
		out.Browsers = []string{}
	}

	for i, d := range stats.TopDomains {
		out.TopDomains[i] = domainCountJSON{Domain: d.Domain, Count: d.Count}
	}

	return printJSON(out)
}
