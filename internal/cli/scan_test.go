package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/linktrail/internal/config"
	"github.com/runnerr0/linktrail/internal/history"
	"github.com/runnerr0/linktrail/internal/history/historytest"
	"github.com/runnerr0/linktrail/internal/scan"
	"github.com/runnerr0/linktrail/internal/storage"
)

// withProfile registers a Chromium profile holding rows as an explicit
// source of a.
func withProfile(t *testing.T, a *app, browser, profile string, rows ...historytest.Row) history.Source {
	t.Helper()
	src := historytest.NewProfile(t, browser, profile, rows...)
	a.cfg.Sources = append(a.cfg.Sources, config.SourceConfig{Browser: browser, Profile: profile, Path: src.Path})
	return src
}

func TestScan_ReadsConfiguredProfiles(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	visit := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	src := withProfile(t, a, "chrome", "Default",
		historytest.Row{URL: "https://example.org/a/", Title: "Alpha", VisitCount: 3, LastVisit: visit},
		historytest.Row{URL: "https://example.org/a#x", Title: "Alpha", VisitCount: 2, LastVisit: visit},
		historytest.Row{URL: "chrome://settings", Title: "Settings", VisitCount: 1, LastVisit: visit},
	)
	a.cfg.Sources = append(a.cfg.Sources, config.SourceConfig{
		Browser: "brave", Profile: "Default", Path: filepath.Join(t.TempDir(), "missing"),
	})

	output := captureOutput(t, func() {
		require.NoError(t, (&ScanCommand{}).run(ctx, a.scanService(nil)))
	})
	assert.Contains(t, output, "Sources: 2 (1 failed)")
	assert.Contains(t, output, "ok    chrome/Default")
	assert.Contains(t, output, "FAIL  brave/Default")
	assert.Contains(t, output, "Links:   1 created")
	assert.Contains(t, output, "Skipped: 1 invalid, 0 filtered")
	assert.Contains(t, output, "Visits:  +5")

	links, err := a.store.ListLinks(ctx, storage.LinkQuery{})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "https://example.org/a", links[0].CanonicalURL)
	assert.Equal(t, int64(5), links[0].VisitCount)

	// A second scan with grown counters adds only the difference.
	historytest.WriteRows(t, src,
		historytest.Row{URL: "https://example.org/a/", Title: "Alpha", VisitCount: 4, LastVisit: visit.Add(time.Hour)},
		historytest.Row{URL: "https://example.org/a#x", Title: "Alpha", VisitCount: 2, LastVisit: visit},
	)
	cmd := &ScanCommand{baseCommand: jsonBase()}
	output = captureOutput(t, func() {
		require.NoError(t, cmd.run(ctx, a.scanService(nil)))
	})
	var rep scan.Report
	require.NoError(t, json.Unmarshal([]byte(output), &rep))
	assert.Equal(t, int64(1), rep.Reconcile.VisitsAdded)

	got, err := a.store.GetLink(ctx, links[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), got.VisitCount)
}

func TestScan_WritesMetricsTextfile(t *testing.T) {
	a := newTestApp(t)
	withProfile(t, a, "chrome", "Default",
		historytest.Row{URL: "https://example.org/", Title: "Home", VisitCount: 1, LastVisit: time.Now()})
	path := filepath.Join(t.TempDir(), "metrics", "linktrail.prom")
	a.cfg.Metrics.TextfilePath = path

	captureOutput(t, func() {
		require.NoError(t, (&ScanCommand{}).run(context.Background(), a.scanService(nil)))
	})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "linktrail_scans_total")
}

func TestSources_MergesDiscoveryAndRegistry(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	withProfile(t, a, "chrome", "Default",
		historytest.Row{URL: "https://example.org/", Title: "Home", VisitCount: 1, LastVisit: time.Now()})
	withProfile(t, a, "edge", "Profile 1")

	output := captureOutput(t, func() {
		require.NoError(t, (&SourcesCommand{}).run(ctx, a.store, a.finder().Sources(a.cfg)))
	})
	assert.Contains(t, output, "chrome - Default")
	assert.Contains(t, output, "Last scan:    never")

	captureOutput(t, func() {
		require.NoError(t, (&ScanCommand{}).run(ctx, a.scanService(nil)))
	})

	// chrome is no longer on this machine but stays in the registry.
	a.cfg.Sources = a.cfg.Sources[1:]
	cmd := &SourcesCommand{baseCommand: jsonBase()}
	output = captureOutput(t, func() {
		require.NoError(t, cmd.run(ctx, a.store, a.finder().Sources(a.cfg)))
	})
	var rows []sourceJSON
	require.NoError(t, json.Unmarshal([]byte(output), &rows))
	require.Len(t, rows, 2)

	byKey := map[string]sourceJSON{}
	for _, r := range rows {
		byKey[r.Source] = r
	}
	assert.True(t, byKey["edge/Profile 1"].Discovered)
	assert.NotEmpty(t, byKey["edge/Profile 1"].LastScannedAt)
	assert.False(t, byKey["chrome/Default"].Discovered)
	assert.Equal(t, 1, byKey["chrome/Default"].LastObservations)
}

func TestSources_Empty(t *testing.T) {
	a := newTestApp(t)
	output := captureOutput(t, func() {
		require.NoError(t, (&SourcesCommand{}).run(context.Background(), a.store, nil))
	})
	assert.Contains(t, output, "No browser profiles found")
}

func TestStatus_EmptyCatalog(t *testing.T) {
	a := newTestApp(t)
	cmd := &StatusCommand{baseCommand: baseCommand{globals: &GlobalFlags{}, version: "dev"}}

	output := captureOutput(t, func() {
		require.NoError(t, cmd.run(context.Background(), a))
	})
	assert.Contains(t, output, "Linktrail Status")
	assert.Contains(t, output, "Version:       dev")
	assert.Contains(t, output, "Links:         0")
	assert.Contains(t, output, "Browsers:      none enabled")
	assert.Contains(t, output, "Interval:      5m0s")
	assert.NotContains(t, output, "Top Domains")
}

func TestStatus_WithData(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	addLink(t, a, "https://example.org/a", "Alpha")
	addLink(t, a, "https://example.org/b", "Beta")
	gone := addLink(t, a, "https://other.net/", "Other")
	_, err := a.store.TrashLinks(ctx, []string{gone.ID})
	require.NoError(t, err)
	a.cfg.Scan.Schedule = "*/15 * * * *"

	output := captureOutput(t, func() {
		require.NoError(t, (&StatusCommand{}).run(ctx, a))
	})
	assert.Contains(t, output, "Links:         2")
	assert.Contains(t, output, "Trash:         1")
	assert.Contains(t, output, "Top Domains:")
	assert.Contains(t, output, "example.org")
	assert.Contains(t, output, "Schedule:      */15 * * * *")

	cmd := &StatusCommand{baseCommand: jsonBase()}
	output = captureOutput(t, func() {
		require.NoError(t, cmd.run(ctx, a))
	})
	var out statusJSON
	require.NoError(t, json.Unmarshal([]byte(output), &out))
	assert.Equal(t, int64(2), out.ActiveLinks)
	assert.Equal(t, int64(1), out.TrashedLinks)
	assert.Greater(t, out.DatabaseSizeBytes, int64(0))
	assert.Equal(t, []string{}, out.Browsers)
	require.NotEmpty(t, out.TopDomains)
	assert.Equal(t, "example.org", out.TopDomains[0].Domain)
	assert.Equal(t, int64(2), out.TopDomains[0].Count)
}
