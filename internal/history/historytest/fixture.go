// Package historytest builds Chromium-style History databases for tests.
package historytest

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/linktrail/internal/history"
)

// Row is one entry of the urls table.
type Row struct {
	URL        string
	Title      string
	VisitCount int64
	LastVisit  time.Time
}

// schema mirrors the columns of Chromium's urls table.
const schema = `
CREATE TABLE urls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url LONGVARCHAR,
	title LONGVARCHAR,
	visit_count INTEGER DEFAULT 0 NOT NULL,
	typed_count INTEGER DEFAULT 0 NOT NULL,
	last_visit_time INTEGER NOT NULL,
	hidden INTEGER DEFAULT 0 NOT NULL
);
CREATE TABLE meta (key LONGVARCHAR NOT NULL UNIQUE PRIMARY KEY, value LONGVARCHAR);
INSERT INTO meta (key, value) VALUES ('version', '67');
`

// NewProfile creates a profile directory under t.TempDir() holding a
// History database with rows, and returns its Source.
func NewProfile(t testing.TB, browser, profile string, rows ...Row) history.Source {
	t.Helper()

	dir := filepath.Join(t.TempDir(), browser, profile)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	src := history.Source{Browser: browser, Profile: profile, Path: dir}
	WriteRows(t, src, rows...)
	return src
}

// WriteRows creates the History database of src if needed and replaces
// its urls rows with rows.
func WriteRows(t testing.TB, src history.Source, rows ...Row) {
	t.Helper()

	path := filepath.Join(src.Path, history.HistoryFile)
	_, statErr := os.Stat(path)

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	if os.IsNotExist(statErr) {
		_, err = db.Exec(schema)
		require.NoError(t, err)
	}

	_, err = db.Exec("DELETE FROM urls")
	require.NoError(t, err)

	for _, r := range rows {
		_, err := db.Exec(
			"INSERT INTO urls (url, title, visit_count, last_visit_time) VALUES (?, ?, ?, ?)",
			r.URL, r.Title, r.VisitCount, history.ToChromeTime(r.LastVisit),
		)
		require.NoError(t, err)
	}
}

// WriteEmptyDatabase creates a valid SQLite database at path that has no
// history tables.
func WriteEmptyDatabase(t testing.TB, path string) {
	t.Helper()

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("CREATE TABLE unrelated (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)
}
