package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// OpenOptions tunes the catalog database connection.
type OpenOptions struct {
	JournalMode   string // wal (default), delete, or truncate
	BusyTimeoutMS int
	SeedDomains   []string // default domain filters for a new catalog
}

// Open opens (creating if needed) the catalog database at path and brings
// its schema up to date. Foreign keys are enabled on every pooled
// connection through the DSN.
func Open(path string, opts OpenOptions) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	journal := opts.JournalMode
	if journal == "" {
		journal = "wal"
	}
	busy := opts.BusyTimeoutMS
	if busy <= 0 {
		busy = 5000
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=%s&_busy_timeout=%d&_txlock=immediate", path, journal, busy)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := NewMigrationRunner(db, WithDefaultFilters(opts.SeedDomains)).Run(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return db, nil
}
