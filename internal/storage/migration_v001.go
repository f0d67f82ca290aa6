package storage

import (
	"database/sql"
	"time"

	"github.com/runnerr0/linktrail/internal/id"
)

// migrateV001 creates the initial catalog schema. Every statement uses IF
// NOT EXISTS for idempotency.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		// ── Tables ──────────────────────────────────────────────

		`CREATE TABLE IF NOT EXISTS categories (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE COLLATE NOCASE,
			color      TEXT NOT NULL DEFAULT '#808080',
			created_at TEXT NOT NULL
		)`,

		// canonical_url is unique across active and trashed links alike: a
		// trashed link keeps its slot so scans and imports merge into it.
		`CREATE TABLE IF NOT EXISTS links (
			id            TEXT PRIMARY KEY,
			canonical_url TEXT NOT NULL UNIQUE,
			raw_url       TEXT NOT NULL,
			title         TEXT NOT NULL DEFAULT '',
			domain        TEXT NOT NULL DEFAULT '',
			visit_count   INTEGER NOT NULL DEFAULT 0 CHECK (visit_count >= 0),
			first_seen_at TEXT NOT NULL,
			last_visit_at TEXT,
			category_id   TEXT REFERENCES categories(id) ON DELETE SET NULL,
			note          TEXT NOT NULL DEFAULT '',
			is_favorite   INTEGER NOT NULL DEFAULT 0,
			last_source   TEXT NOT NULL DEFAULT '',
			deleted_at    TEXT,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS tags (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE COLLATE NOCASE,
			created_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS link_tags (
			link_id TEXT NOT NULL REFERENCES links(id) ON DELETE CASCADE,
			tag_id  TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			PRIMARY KEY (link_id, tag_id)
		)`,

		`CREATE TABLE IF NOT EXISTS filters (
			id          TEXT PRIMARY KEY,
			pattern     TEXT NOT NULL,
			kind        TEXT NOT NULL CHECK (kind IN ('domain', 'prefix', 'contains', 'regex')),
			description TEXT NOT NULL DEFAULT '',
			active      INTEGER NOT NULL DEFAULT 1,
			is_default  INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL,
			UNIQUE(kind, pattern)
		)`,

		`CREATE TABLE IF NOT EXISTS sources (
			browser           TEXT NOT NULL,
			profile           TEXT NOT NULL,
			name              TEXT NOT NULL DEFAULT '',
			path              TEXT NOT NULL DEFAULT '',
			last_scanned_at   TEXT,
			watermark         TEXT,
			last_error_code   TEXT NOT NULL DEFAULT '',
			last_error        TEXT NOT NULL DEFAULT '',
			last_observations INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (browser, profile)
		)`,

		// One row per raw URL: several raw URLs of one source may collapse
		// onto the same canonical URL and each carries its own counter.
		`CREATE TABLE IF NOT EXISTS source_checkpoints (
			browser          TEXT NOT NULL,
			profile          TEXT NOT NULL,
			url              TEXT NOT NULL,
			cumulative_count INTEGER NOT NULL DEFAULT 0,
			last_visit_at    TEXT,
			updated_at       TEXT NOT NULL,
			PRIMARY KEY (browser, profile, url)
		)`,

		// ── Indexes ────────────────────────────────────────────

		`CREATE INDEX IF NOT EXISTS idx_links_deleted_at    ON links(deleted_at)`,
		`CREATE INDEX IF NOT EXISTS idx_links_last_visit_at ON links(last_visit_at)`,
		`CREATE INDEX IF NOT EXISTS idx_links_domain        ON links(domain)`,
		`CREATE INDEX IF NOT EXISTS idx_links_category_id   ON links(category_id)`,
		`CREATE INDEX IF NOT EXISTS idx_link_tags_tag_id    ON link_tags(tag_id)`,
		`CREATE INDEX IF NOT EXISTS idx_filters_active      ON filters(active)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

// seedDefaultFilters inserts one active domain filter per domain. Uses
// INSERT OR IGNORE so re-running is safe.
func seedDefaultFilters(tx *sql.Tx, domains []string) error {
	const insertSQL = `INSERT OR IGNORE INTO filters (id, pattern, kind, description, active, is_default, created_at)
		VALUES (?, ?, 'domain', ?, 1, 1, ?)`

	now := formatTime(time.Now())
	for _, d := range domains {
		fid, err := id.Generate(id.PrefixFilter)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(insertSQL, fid, d, "Default exclusion", now); err != nil {
			return err
		}
	}

	return nil
}
