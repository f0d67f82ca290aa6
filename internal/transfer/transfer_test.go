package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/linktrail/internal/errors"
	"github.com/runnerr0/linktrail/internal/filter"
	"github.com/runnerr0/linktrail/internal/history"
	"github.com/runnerr0/linktrail/internal/reconcile"
	"github.com/runnerr0/linktrail/internal/storage"
)

func openStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"), storage.OpenOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := storage.NewSQLiteStore(db)
	require.NoError(t, err)
	return s
}

func at(day int) time.Time {
	return time.Date(2024, 7, day, 9, 30, 0, 0, time.UTC)
}

func scan(t *testing.T, s *storage.SQLiteStore, url string, count int64, last time.Time) {
	t.Helper()
	_, err := reconcile.NewEngine(s, nil).Reconcile(context.Background(), reconcile.Batch{
		Observations: []history.Observation{{
			Browser: "chrome", Profile: "Default", URL: url, Title: "Scanned " + url,
			VisitCount: count, LastVisit: last,
		}},
	}, filter.Empty())
	require.NoError(t, err)
}

func find(t *testing.T, s *storage.SQLiteStore, canon string, trashed bool) storage.Link {
	t.Helper()
	links, err := s.ListLinks(context.Background(), storage.LinkQuery{Trashed: trashed})
	require.NoError(t, err)
	for _, l := range links {
		if l.CanonicalURL == canon {
			return l
		}
	}
	t.Fatalf("no link for %s", canon)
	return storage.Link{}
}

func importJSON(t *testing.T, s *storage.SQLiteStore, doc string, filters *filter.Set) *ImportReport {
	t.Helper()
	rep, err := NewImporter(s, nil).Import(context.Background(), strings.NewReader(doc), filters)
	require.NoError(t, err)
	return rep
}

func TestExport_Document(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	scan(t, s, "https://example.com/a/", 4, at(2))
	scan(t, s, "https://example.com/gone", 1, at(3))

	cat, err := s.CreateCategory(ctx, "Work", "#112233")
	require.NoError(t, err)
	a := find(t, s, "https://example.com/a", false)
	note := "read later"
	tags := []string{"go", "docs"}
	_, err = s.UpdateLink(ctx, a.ID, storage.LinkUpdate{CategoryID: &cat.ID, Note: &note, Tags: &tags})
	require.NoError(t, err)
	gone := find(t, s, "https://example.com/gone", false)
	_, err = s.TrashLinks(ctx, []string{gone.ID})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := Export(ctx, s, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var doc Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, DocumentVersion, doc.Version)
	assert.False(t, doc.ExportedAt.IsZero())
	assert.Equal(t, []CategoryRecord{{Name: "Work", Color: "#112233"}}, doc.Categories)
	assert.ElementsMatch(t, []string{"go", "docs"}, doc.Tags)

	require.Len(t, doc.Links, 1)
	rec := doc.Links[0]
	assert.Equal(t, "https://example.com/a", rec.URL)
	assert.Equal(t, "Work", rec.Category)
	assert.ElementsMatch(t, []string{"go", "docs"}, rec.Tags)
	assert.Equal(t, "read later", rec.Note)
	assert.Equal(t, int64(4), rec.VisitCount)
	require.NotNil(t, rec.LastVisitAt)
	assert.True(t, at(2).Equal(*rec.LastVisitAt))

	// Stable field presence for round trips.
	assert.Contains(t, buf.String(), `"favorite": false`)
	assert.NotContains(t, buf.String(), "checkpoint")
}

func TestExportImport_RoundTrip(t *testing.T) {
	src := openStore(t)
	ctx := context.Background()
	scan(t, src, "https://example.com/a", 4, at(2))
	scan(t, src, "https://go.dev/doc", 9, at(5))

	cat, err := src.CreateCategory(ctx, "Reading", "#abcdef")
	require.NoError(t, err)
	l := find(t, src, "https://go.dev/doc", false)
	tags := []string{"go"}
	fav := true
	_, err = src.UpdateLink(ctx, l.ID, storage.LinkUpdate{CategoryID: &cat.ID, Tags: &tags, Favorite: &fav})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = Export(ctx, src, &buf)
	require.NoError(t, err)

	dst := openStore(t)
	rep := importJSON(t, dst, buf.String(), filter.Empty())
	assert.Equal(t, 2, rep.Created)
	assert.Equal(t, 0, rep.Merged)

	got := find(t, dst, "https://go.dev/doc", false)
	assert.Equal(t, int64(9), got.VisitCount)
	assert.Equal(t, "Reading", got.CategoryName)
	assert.Equal(t, []string{"go"}, got.Tags)
	assert.True(t, got.Favorite)
	assert.Equal(t, l.Title, got.Title)
	assert.True(t, l.FirstSeenAt.Equal(got.FirstSeenAt))
	assert.True(t, at(5).Equal(got.LastVisitAt))

	cats, err := dst.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "#abcdef", cats[0].Color)
}

func TestImport_MergesIntoActiveLink(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	scan(t, s, "https://example.com/a", 4, at(2))
	local := find(t, s, "https://example.com/a", false)
	note := "mine"
	_, err := s.UpdateLink(ctx, local.ID, storage.LinkUpdate{Note: &note})
	require.NoError(t, err)

	rep := importJSON(t, s, `{
		"version": "1.0",
		"links": [{
			"url": "https://EXAMPLE.com/a/",
			"title": "Imported title",
			"category": "Inbox",
			"tags": ["later"],
			"note": "theirs",
			"favorite": true,
			"visit_count": 6,
			"last_visit_at": "2024-07-04T00:00:00Z"
		}]
	}`, filter.Empty())
	assert.Equal(t, 1, rep.Merged)
	assert.Equal(t, 0, rep.Created)

	got := find(t, s, "https://example.com/a", false)
	assert.Equal(t, int64(10), got.VisitCount)
	assert.Equal(t, "mine", got.Note, "local user fields win")
	assert.True(t, got.Favorite)
	assert.Equal(t, "Inbox", got.CategoryName, "empty local category is filled")
	assert.Equal(t, []string{"later"}, got.Tags)
	assert.Equal(t, "Imported title", got.Title)
	assert.True(t, time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC).Equal(got.LastVisitAt))
	assert.True(t, local.FirstSeenAt.Equal(got.FirstSeenAt))
}

func TestImport_OlderRecordKeepsDisplayFields(t *testing.T) {
	s := openStore(t)
	scan(t, s, "https://example.com/a", 4, at(10))

	importJSON(t, s, `{"links":[{"url":"https://example.com/a","title":"Old","visit_count":1,"last_visit_at":"2024-07-01T00:00:00Z"}]}`, filter.Empty())

	got := find(t, s, "https://example.com/a", false)
	assert.Equal(t, int64(5), got.VisitCount)
	assert.Equal(t, "Scanned https://example.com/a", got.Title)
	assert.True(t, at(10).Equal(got.LastVisitAt), "last visit never regresses")
}

func TestImport_TrashedLinkStaysTrashed(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	scan(t, s, "https://example.com/old", 2, at(1))
	l := find(t, s, "https://example.com/old", false)
	_, err := s.TrashLinks(ctx, []string{l.ID})
	require.NoError(t, err)

	rep := importJSON(t, s, `{"version":"1.0","links":[{"url":"https://example.com/old","title":"Renamed","favorite":true,"visit_count":3,"last_visit_at":"2024-07-08T00:00:00Z"}]}`, filter.Empty())
	assert.Equal(t, 1, rep.MergedTrashed)
	assert.Equal(t, 0, rep.Created)

	n, err := s.CountLinks(ctx, storage.LinkQuery{})
	require.NoError(t, err)
	assert.Zero(t, n, "import never resurrects trashed links")

	got := find(t, s, "https://example.com/old", true)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, int64(5), got.VisitCount)
	assert.False(t, got.Favorite, "user fields of trashed links are not merged")
	require.NotNil(t, got.DeletedAt)
}

func TestImport_DoesNotTouchCheckpoints(t *testing.T) {
	s := openStore(t)
	scan(t, s, "https://example.com/a", 5, at(1))

	importJSON(t, s, `{"links":[{"url":"https://example.com/a","visit_count":10}]}`, filter.Empty())
	assert.Equal(t, int64(15), find(t, s, "https://example.com/a", false).VisitCount)

	// The browser reports 7 cumulative visits; only the 2 beyond its own
	// checkpoint are new.
	scan(t, s, "https://example.com/a", 7, at(2))
	assert.Equal(t, int64(17), find(t, s, "https://example.com/a", false).VisitCount)

	require.NoError(t, s.WithTx(context.Background(), func(tx *storage.Tx) error {
		cps, err := tx.Checkpoints(context.Background(), "chrome", "Default")
		require.NoError(t, err)
		assert.Len(t, cps, 1)
		assert.Equal(t, int64(7), cps["https://example.com/a"].CumulativeCount)
		return nil
	}))
}

func TestImport_SkipsInvalidAndFiltered(t *testing.T) {
	s := openStore(t)
	filters, errs := filter.Compile([]filter.Rule{{Pattern: "sts.secosso.net", Kind: filter.KindDomain, Active: true}}, filter.DefaultOptions())
	require.Empty(t, errs)

	rep := importJSON(t, s, `{
		"version": "1.3",
		"generator": "someone else",
		"categories": [{"name": "Keep", "color": "#ABC", "icon": "star"}, {"color": "#000000"}],
		"tags": ["a", 7, ""],
		"links": [
			{"url": "https://example.com/ok", "visit_count": 2, "extra": {"nested": true}},
			{"title": "no url"},
			{"url": "https://example.com/neg", "visit_count": -1},
			{"url": "chrome://settings"},
			{"url": "https://login.sts.secosso.net/adfs"},
			{"url": 12},
			"not an object"
		]
	}`, filters)

	assert.Equal(t, 7, rep.Records)
	assert.Equal(t, 1, rep.Created)
	assert.Equal(t, 1, rep.SkippedFiltered)
	assert.Equal(t, 5, rep.SkippedInvalid)

	cats, err := s.ListCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Keep", cats[0].Name)
	assert.Equal(t, "#aabbcc", cats[0].Color)

	tags, err := s.ListTags(context.Background())
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "a", tags[0].Name)
}

func TestImport_DuplicateRecordsAccumulate(t *testing.T) {
	s := openStore(t)
	rep := importJSON(t, s, `{"links":[
		{"url":"https://example.com/x","visit_count":2},
		{"url":"https://example.com/x/","visit_count":3}
	]}`, filter.Empty())
	assert.Equal(t, 1, rep.Created)
	assert.Equal(t, 1, rep.Merged)
	assert.Equal(t, int64(5), find(t, s, "https://example.com/x", false).VisitCount)
}

func TestImport_HugeCountSaturates(t *testing.T) {
	s := openStore(t)
	scan(t, s, "https://example.com/a", 5, at(1))

	rep := importJSON(t, s, `{"links":[
		{"url":"https://good.example/x","visit_count":1},
		{"url":"https://example.com/a","visit_count":9223372036854775807}
	]}`, filter.Empty())
	assert.Equal(t, 1, rep.Created)
	assert.Equal(t, 1, rep.Merged)

	assert.Equal(t, int64(1), find(t, s, "https://good.example/x", false).VisitCount)
	assert.Equal(t, int64(math.MaxInt64), find(t, s, "https://example.com/a", false).VisitCount)
}

func TestExportImport_RepeatedTrailingSlashMerges(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	scan(t, s, "https://example.com/docs//", 4, at(2))

	var buf bytes.Buffer
	_, err := Export(ctx, s, &buf)
	require.NoError(t, err)

	rep := importJSON(t, s, buf.String(), filter.Empty())
	assert.Equal(t, 0, rep.Created)
	assert.Equal(t, 1, rep.Merged)

	n, err := s.CountLinks(ctx, storage.LinkQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(8), find(t, s, "https://example.com/docs", false).VisitCount)

	scan(t, s, "https://example.com/docs/", 1, at(3))
	n, err = s.CountLinks(ctx, storage.LinkQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestImport_RejectsDocument(t *testing.T) {
	s := openStore(t)
	im := NewImporter(s, nil)

	_, err := im.Import(context.Background(), strings.NewReader("{not json"), filter.Empty())
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = im.Import(context.Background(), strings.NewReader(`{"version":"2.0","links":[]}`), filter.Empty())
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestImport_CancelledLeavesCatalogUnchanged(t *testing.T) {
	s := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewImporter(s, nil).Import(ctx, strings.NewReader(`{"links":[{"url":"https://example.com/a"}]}`), filter.Empty())
	require.Error(t, err)

	n, err := s.CountLinks(context.Background(), storage.LinkQuery{})
	require.NoError(t, err)
	assert.Zero(t, n)
}
