package scan

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/linktrail/internal/errors"
	"github.com/runnerr0/linktrail/internal/filter"
	"github.com/runnerr0/linktrail/internal/history"
	"github.com/runnerr0/linktrail/internal/history/historytest"
	"github.com/runnerr0/linktrail/internal/storage"
)

// fakeReader serves canned observations per source key.
type fakeReader struct {
	mu      sync.Mutex
	obs     map[string][]history.Observation
	errs    map[string]error
	hang    map[string]bool // block until the read context is done
	started chan string
	release chan struct{} // when set, every read waits for it
	since   map[string]time.Time
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		obs:     map[string][]history.Observation{},
		errs:    map[string]error{},
		hang:    map[string]bool{},
		started: make(chan string, 16),
		since:   map[string]time.Time{},
	}
}

func (f *fakeReader) Read(ctx context.Context, src history.Source, opts history.ReadOptions) ([]history.Observation, error) {
	f.mu.Lock()
	f.since[src.Key()] = opts.Since
	obs, err, hang, release := f.obs[src.Key()], f.errs[src.Key()], f.hang[src.Key()], f.release
	f.mu.Unlock()
	f.started <- src.Key()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return obs, err
}

func (f *fakeReader) sinceFor(key string) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.since[key]
}

func openStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"), storage.OpenOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := storage.NewSQLiteStore(db)
	require.NoError(t, err)
	return s
}

func src(browser, profile string) history.Source {
	return history.Source{Browser: browser, Profile: profile, Path: "/profiles/" + browser + "/" + profile}
}

func observe(s history.Source, url string, count int64, last time.Time) history.Observation {
	return history.Observation{Browser: s.Browser, Profile: s.Profile, URL: url, Title: url, VisitCount: count, LastVisit: last}
}

func staticSources(sources ...history.Source) SourceFunc {
	return func() []history.Source { return sources }
}

var day = time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)

func TestRun_PartialFailureIsolation(t *testing.T) {
	store := openStore(t)
	chrome, edge, brave := src("chrome", "Default"), src("edge", "Default"), src("brave", "Default")

	r := newFakeReader()
	r.obs[chrome.Key()] = []history.Observation{observe(chrome, "https://example.com/a", 2, day)}
	r.obs[edge.Key()] = []history.Observation{observe(edge, "https://example.com/a", 3, day), observe(edge, "https://go.dev", 1, day)}
	r.hang[brave.Key()] = true

	svc := NewService(store, staticSources(chrome, edge, brave), r, nil,
		Options{Workers: 3, SourceTimeout: 50 * time.Millisecond, FilterOptions: filter.DefaultOptions()}, nil)

	rep, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Failed)
	require.Len(t, rep.Sources, 3)
	assert.False(t, rep.Sources[0].Failed())
	assert.False(t, rep.Sources[1].Failed())
	assert.True(t, rep.Sources[2].Failed())
	assert.Equal(t, string(errors.CodeSourceTimeout), rep.Sources[2].Code)
	assert.Equal(t, "partial", rep.Result())

	assert.Equal(t, 2, rep.Reconcile.Created)
	links, err := store.ListLinks(context.Background(), storage.LinkQuery{})
	require.NoError(t, err)
	require.Len(t, links, 2)
	counts := map[string]int64{}
	for _, l := range links {
		counts[l.CanonicalURL] = l.VisitCount
	}
	assert.Equal(t, int64(5), counts["https://example.com/a"])

	states, err := store.ListSources(context.Background())
	require.NoError(t, err)
	require.Len(t, states, 3)
	for _, st := range states {
		if st.Key() == brave.Key() {
			assert.Equal(t, string(errors.CodeSourceTimeout), st.LastErrorCode)
			assert.True(t, st.Watermark.IsZero())
		} else {
			assert.Empty(t, st.LastErrorCode)
			assert.True(t, day.Equal(st.Watermark))
		}
	}
}

func TestRun_ReaderErrorsKeepTheirCode(t *testing.T) {
	store := openStore(t)
	a, b := src("chrome", "Default"), src("chrome", "Profile 1")
	r := newFakeReader()
	r.errs[a.Key()] = errors.New(errors.CodeMalformedSourceSchema, "urls table missing")
	r.obs[b.Key()] = []history.Observation{observe(b, "https://example.com", 1, day)}

	svc := NewService(store, staticSources(a, b), r, nil, Options{Workers: 1, SourceTimeout: time.Second}, nil)
	rep, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, string(errors.CodeMalformedSourceSchema), rep.Sources[0].Code)
	assert.Equal(t, 1, rep.Reconcile.Created)
}

func TestRun_AllSourcesFailed(t *testing.T) {
	store := openStore(t)
	a := src("chrome", "Default")
	r := newFakeReader()
	r.errs[a.Key()] = errors.New(errors.CodeSourceUnavailable, "gone")

	svc := NewService(store, staticSources(a), r, nil, Options{Workers: 1}, nil)
	rep, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "failed", rep.Result())
	assert.Equal(t, 0, rep.Reconcile.Created)
}

func TestRun_UsesWatermarksUnlessFull(t *testing.T) {
	store := openStore(t)
	chrome := src("chrome", "Default")
	r := newFakeReader()
	r.obs[chrome.Key()] = []history.Observation{observe(chrome, "https://example.com", 1, day)}

	svc := NewService(store, staticSources(chrome), r, nil, Options{Workers: 1}, nil)

	_, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.True(t, r.sinceFor(chrome.Key()).IsZero())

	_, err = svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.True(t, day.Equal(r.sinceFor(chrome.Key())))

	rep, err := svc.Run(context.Background(), RunOptions{Full: true})
	require.NoError(t, err)
	assert.True(t, rep.Full)
	assert.True(t, r.sinceFor(chrome.Key()).IsZero())

	// Rescans of an unchanged source add nothing.
	links, err := store.ListLinks(context.Background(), storage.LinkQuery{})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, int64(1), links[0].VisitCount)
}

func TestRun_AppliesStoredFilters(t *testing.T) {
	store := openStore(t)
	_, err := store.AddFilter(context.Background(), storage.Filter{Pattern: "sts.secosso.net", Kind: filter.KindDomain, Active: true})
	require.NoError(t, err)

	chrome := src("chrome", "Default")
	r := newFakeReader()
	r.obs[chrome.Key()] = []history.Observation{
		observe(chrome, "https://sts.secosso.net/adfs/ls", 4, day),
		observe(chrome, "https://example.com", 1, day),
	}

	svc := NewService(store, staticSources(chrome), r, nil, Options{Workers: 1, FilterOptions: filter.DefaultOptions()}, nil)
	rep, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Reconcile.SkippedFiltered)
	assert.Equal(t, 1, rep.Reconcile.Created)
}

func TestRun_InProgress(t *testing.T) {
	store := openStore(t)
	chrome := src("chrome", "Default")
	r := newFakeReader()
	r.release = make(chan struct{})

	svc := NewService(store, staticSources(chrome), r, nil, Options{Workers: 1}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background(), RunOptions{})
		done <- err
	}()
	<-r.started
	assert.True(t, svc.Running())

	_, err := svc.Run(context.Background(), RunOptions{})
	assert.True(t, errors.Is(err, errors.ErrScanInProgress))

	close(r.release)
	require.NoError(t, <-done)
	assert.False(t, svc.Running())
}

func TestRun_CancelledCommitsNothing(t *testing.T) {
	store := openStore(t)
	a, b := src("chrome", "Default"), src("edge", "Default")
	r := newFakeReader()
	r.obs[a.Key()] = []history.Observation{observe(a, "https://example.com", 1, day)}
	r.hang[b.Key()] = true

	svc := NewService(store, staticSources(a, b), r, nil, Options{Workers: 2, SourceTimeout: time.Minute}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-r.started
		<-r.started
		cancel()
	}()

	rep, err := svc.Run(ctx, RunOptions{})
	assert.Nil(t, rep)
	assert.ErrorIs(t, err, context.Canceled)

	n, err := store.CountLinks(context.Background(), storage.LinkQuery{})
	require.NoError(t, err)
	assert.Zero(t, n)
	states, err := store.ListSources(context.Background())
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestRun_WritesMetricsTextfile(t *testing.T) {
	store := openStore(t)
	chrome := src("chrome", "Default")
	r := newFakeReader()
	r.obs[chrome.Key()] = []history.Observation{observe(chrome, "https://example.com", 1, day)}

	path := filepath.Join(t.TempDir(), "linktrail.prom")
	svc := NewService(store, staticSources(chrome), r, nil, Options{Workers: 1, MetricsTextfile: path}, nil)
	_, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `linktrail_scans_total{result="ok"} 1`)
	assert.Contains(t, string(data), `linktrail_links_total{action="created"} 1`)
}

func TestRun_ChromiumReaderEndToEnd(t *testing.T) {
	store := openStore(t)
	profile := historytest.NewProfile(t, "chrome", "Default",
		historytest.Row{URL: "https://Example.com/a/", Title: "A", VisitCount: 3, LastVisit: day},
		historytest.Row{URL: "chrome://settings", Title: "Settings", VisitCount: 9, LastVisit: day},
	)
	reader := history.NewChromiumReader(t.TempDir(), nil)
	svc := NewService(store, staticSources(profile), reader, nil, Options{Workers: 2, SourceTimeout: 10 * time.Second}, nil)

	rep, err := svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Failed)
	assert.Equal(t, 1, rep.Reconcile.Created)
	assert.Equal(t, 1, rep.Reconcile.SkippedInvalid)

	historytest.WriteRows(t, profile,
		historytest.Row{URL: "https://Example.com/a/", Title: "A", VisitCount: 5, LastVisit: day.Add(time.Hour)},
	)
	_, err = svc.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	links, err := store.ListLinks(context.Background(), storage.LinkQuery{})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "https://example.com/a", links[0].CanonicalURL)
	assert.Equal(t, int64(5), links[0].VisitCount)
}
