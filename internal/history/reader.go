// Package history reads Chromium-family browser history stores.
//
// A profile's History file is usually locked by the running browser and
// may be mid-write, so it is never read in place: Reader copies it (with
// its WAL and rollback journal, when present) into a private temp
// directory, reads the copy, and removes the directory on every exit path.
package history

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/runnerr0/linktrail/internal/errors"
	"github.com/runnerr0/linktrail/internal/logger"
)

// HistoryFile is the name of the history database inside a profile directory.
const HistoryFile = "History"

// companion files copied alongside History when present.
var companionSuffixes = []string{"-wal", "-journal"}

// requiredColumns of the urls table.
var requiredColumns = []string{"url", "title", "visit_count", "last_visit_time"}

// Reader reads observation snapshots from a single source.
type Reader interface {
	Read(ctx context.Context, src Source, opts ReadOptions) ([]Observation, error)
}

// ChromiumReader implements Reader for Chromium-family profiles.
type ChromiumReader struct {
	tempDir string
	logger  logger.Logger
}

// NewChromiumReader creates a reader that stages copies under tempDir
// (os.TempDir() when empty).
func NewChromiumReader(tempDir string, log logger.Logger) *ChromiumReader {
	if log == nil {
		log = logger.NewNop()
	}
	return &ChromiumReader{tempDir: tempDir, logger: log}
}

// Read copies the profile's History store and returns one Observation per
// URL row. Errors carry SOURCE_UNAVAILABLE, SOURCE_TIMEOUT, or
// MALFORMED_SOURCE_SCHEMA codes; a cancelled context is returned as is.
func (r *ChromiumReader) Read(ctx context.Context, src Source, opts ReadOptions) ([]Observation, error) {
	historyPath := filepath.Join(src.Path, HistoryFile)
	if _, err := os.Stat(historyPath); err != nil {
		return nil, errors.Wrapf(err, errors.CodeSourceUnavailable, "%s: history store", src.Key())
	}

	stage, err := os.MkdirTemp(r.tempDir, "linktrail-"+uuid.NewString()+"-")
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeSourceUnavailable, "%s: create staging dir", src.Key())
	}
	defer func() {
		if err := os.RemoveAll(stage); err != nil {
			r.logger.Warn("failed to remove staging copy",
				logger.String("source", src.Key()),
				logger.String("dir", stage),
				logger.Error(err))
		}
	}()

	copyPath := filepath.Join(stage, HistoryFile)
	if err := copyFile(ctx, historyPath, copyPath); err != nil {
		return nil, classify(ctx, src, "copy history store", err)
	}
	for _, suffix := range companionSuffixes {
		err := copyFile(ctx, historyPath+suffix, copyPath+suffix)
		if err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			return nil, classify(ctx, src, "copy "+HistoryFile+suffix, err)
		}
	}

	obs, err := r.readCopy(ctx, src, copyPath, opts)
	if err != nil {
		return nil, classify(ctx, src, "read history copy", err)
	}

	r.logger.Debug("read history store",
		logger.String("source", src.Key()),
		logger.Int("observations", len(obs)))
	return obs, nil
}

// copyURI builds a read-only sqlite3 DSN for path. The path is escaped
// so '?' or '#' in a directory name is not taken as a query.
func copyURI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "file:" + (&url.URL{Path: p}).EscapedPath() + "?_query_only=1"
}

func (r *ChromiumReader) readCopy(ctx context.Context, src Source, path string, opts ReadOptions) ([]Observation, error) {
	db, err := sql.Open("sqlite3", copyURI(path))
	if err != nil {
		return nil, err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := checkSchema(ctx, db); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT url, title, visit_count, last_visit_time
		FROM urls
		WHERE last_visit_time >= ?
	`, ToChromeTime(opts.Since))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeMalformedSourceSchema, "query urls")
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var (
			rawURL     string
			title      sql.NullString
			visitCount sql.NullInt64
			lastVisit  sql.NullInt64
		)
		if err := rows.Scan(&rawURL, &title, &visitCount, &lastVisit); err != nil {
			return nil, errors.Wrap(err, errors.CodeMalformedSourceSchema, "scan urls row")
		}
		if rawURL == "" {
			continue
		}
		count := visitCount.Int64
		if count < 0 {
			count = 0
		}
		out = append(out, Observation{
			Browser:    src.Browser,
			Profile:    src.Profile,
			URL:        rawURL,
			Title:      title.String,
			VisitCount: count,
			LastVisit:  FromChromeTime(lastVisit.Int64),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// checkSchema verifies the copy is a SQLite database with a urls table
// carrying the columns the reader depends on.
func checkSchema(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info(urls)")
	if err != nil {
		return errors.Wrap(err, errors.CodeMalformedSourceSchema, "inspect urls table")
	}
	defer rows.Close()

	have := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return errors.Wrap(err, errors.CodeMalformedSourceSchema, "inspect urls table")
		}
		have[name] = true
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, errors.CodeMalformedSourceSchema, "inspect urls table")
	}

	if len(have) == 0 {
		return errors.New(errors.CodeMalformedSourceSchema, "urls table missing")
	}
	var missing []string
	for _, col := range requiredColumns {
		if !have[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return errors.Newf(errors.CodeMalformedSourceSchema, "urls table missing columns %v", missing).
			WithDetails(map[string]any{"missing": missing})
	}
	return nil
}

// classify maps a read failure onto the source error taxonomy.
func classify(ctx context.Context, src Source, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if stderrors.Is(ctxErr, context.DeadlineExceeded) {
			return errors.Wrapf(ctxErr, errors.CodeSourceTimeout, "%s: %s", src.Key(), op)
		}
		return ctxErr
	}

	var domainErr *errors.Error
	if errors.As(err, &domainErr) {
		return errors.Wrapf(err, domainErr.Code, "%s: %s", src.Key(), op)
	}
	if stderrors.Is(err, fs.ErrNotExist) || stderrors.Is(err, fs.ErrPermission) {
		return errors.Wrapf(err, errors.CodeSourceUnavailable, "%s: %s", src.Key(), op)
	}
	if op == "read history copy" {
		// Anything else the driver says about the copy means it is not a
		// history store we understand, e.g. "file is not a database".
		return errors.Wrapf(err, errors.CodeMalformedSourceSchema, "%s: %s", src.Key(), op)
	}
	return errors.Wrapf(err, errors.CodeSourceUnavailable, "%s: %s", src.Key(), op)
}

// copyFile copies src to dst, stopping early when ctx is done.
func copyFile(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, &ctxReader{ctx: ctx, r: in}); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}
	return out.Close()
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
