package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/runnerr0/linktrail/internal/errors"
)

// Store defines the catalog operations used outside the reconcile and
// import write paths.
type Store interface {
	ListLinks(ctx context.Context, q LinkQuery) ([]Link, error)
	CountLinks(ctx context.Context, q LinkQuery) (int64, error)
	GetLink(ctx context.Context, id string) (*Link, error)
	UpdateLink(ctx context.Context, id string, u LinkUpdate) (*Link, error)
	ToggleFavorite(ctx context.Context, id string) (bool, error)
	TrashLinks(ctx context.Context, ids []string) (int64, error)
	RestoreLinks(ctx context.Context, ids []string) (int64, error)
	PurgeTrash(ctx context.Context) (int64, error)
	ExportLinks(ctx context.Context) ([]Link, error)

	CreateCategory(ctx context.Context, name, color string) (*Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	UpdateCategory(ctx context.Context, id, name, color string) (*Category, error)
	DeleteCategory(ctx context.Context, id string) error
	CategoryByName(ctx context.Context, name string) (*Category, error)

	CreateTag(ctx context.Context, name string) (*Tag, error)
	ListTags(ctx context.Context) ([]Tag, error)
	DeleteTag(ctx context.Context, id string) error

	AddFilter(ctx context.Context, f Filter) (*Filter, error)
	ListFilters(ctx context.Context, activeOnly bool) ([]Filter, error)
	SetFilterActive(ctx context.Context, id string, active bool) error
	DeleteFilter(ctx context.Context, id string) error

	ListSources(ctx context.Context) ([]SourceState, error)
	SourceWatermarks(ctx context.Context) (map[string]time.Time, error)

	GetStats(ctx context.Context) (*Stats, error)

	WithTx(ctx context.Context, fn func(tx *Tx) error) error
	Close() error
}

// SQLiteStore implements Store backed by a SQLite database.
//
// Every write runs inside WithTx, which serializes writers on a
// process-wide mutex so one reconciliation or import commits as a unit
// without interleaving with another. Readers are not blocked; under WAL
// they see the last committed state.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex

	getLink *sql.Stmt
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLiteStore from an already-opened and migrated database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}

	var err error
	s.getLink, err = db.Prepare(`SELECT ` + linkColumns + ` FROM ` + linkFrom + ` WHERE l.id = ?`)
	if err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

// DB returns the underlying database handle.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close releases prepared statements. The underlying *sql.DB is NOT
// closed; that is the caller's responsibility.
func (s *SQLiteStore) Close() error {
	if s.getLink != nil {
		return s.getLink.Close()
	}
	return nil
}

// WithTx runs fn inside a write transaction holding the store's write
// lock. The transaction commits when fn returns nil and rolls back
// otherwise, leaving the catalog unchanged. Failures other than coded
// domain errors surface as STORE_WRITE.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeWrite("begin transaction", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck

	if err := fn(&Tx{tx: sqlTx, now: time.Now().UTC()}); err != nil {
		var domainErr *errors.Error
		if errors.As(err, &domainErr) || stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return storeWrite("write", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return storeWrite("commit", err)
	}
	return nil
}

func storeWrite(op string, err error) error {
	return errors.Wrap(err, errors.CodeStoreWrite, op)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime formats a time for storage, always in UTC.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// nullTime stores the zero time as NULL.
func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

// parseTime tries the storage layout and other common SQLite timestamp
// formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", s)
}

// parseNullableTime parses an optional time column; NULL yields the zero time.
func parseNullableTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	return parseTime(s.String)
}

// nullString stores the empty string as NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	var sqlErr sqlite3.Error
	if stderrors.As(err, &sqlErr) {
		return sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func stringArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

// likePattern escapes LIKE wildcards in s and wraps it in %...%.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
