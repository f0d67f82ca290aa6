package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/runnerr0/linktrail/internal/errors"
	"github.com/runnerr0/linktrail/internal/id"
)

// Tx exposes the primitives the reconcile and import write paths compose
// into a single atomic commit. A Tx is only valid inside the WithTx
// callback that received it.
type Tx struct {
	tx  *sql.Tx
	now time.Time
}

// Now returns the timestamp shared by every write of the transaction.
func (t *Tx) Now() time.Time {
	return t.now
}

func (t *Tx) orNow(ts time.Time) time.Time {
	if ts.IsZero() {
		return t.now
	}
	return ts
}

// LinkByCanonical returns the link, trashed or not, owning canonicalURL,
// or nil when there is none.
func (t *Tx) LinkByCanonical(ctx context.Context, canonicalURL string) (*Link, error) {
	l, err := scanLink(t.tx.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM `+linkFrom+` WHERE l.canonical_url = ?`, canonicalURL))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("link by canonical url: %w", err)
	}
	return l, nil
}

// LinkByID returns a link by ID, with its tags.
func (t *Tx) LinkByID(ctx context.Context, linkID string) (*Link, error) {
	l, err := scanLink(t.tx.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM `+linkFrom+` WHERE l.id = ?`, linkID))
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundf("link %s not found", linkID)
	}
	if err != nil {
		return nil, fmt.Errorf("get link: %w", err)
	}
	links := []Link{*l}
	if err := loadTags(ctx, t.tx, links); err != nil {
		return nil, err
	}
	return &links[0], nil
}

// InsertLink creates a link. ID, CreatedAt, UpdatedAt and an unset
// FirstSeenAt are filled in.
func (t *Tx) InsertLink(ctx context.Context, l *Link) error {
	if l.ID == "" {
		lid, err := id.Generate(id.PrefixLink)
		if err != nil {
			return fmt.Errorf("generate link id: %w", err)
		}
		l.ID = lid
	}
	if l.FirstSeenAt.IsZero() {
		l.FirstSeenAt = t.now
	}
	l.CreatedAt = t.now
	l.UpdatedAt = t.now

	var deletedAt sql.NullString
	if l.DeletedAt != nil {
		deletedAt = nullTime(*l.DeletedAt)
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO links (
			id, canonical_url, raw_url, title, domain, visit_count,
			first_seen_at, last_visit_at, category_id, note, is_favorite,
			last_source, deleted_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.CanonicalURL, l.RawURL, l.Title, l.Domain, l.VisitCount,
		formatTime(l.FirstSeenAt), nullTime(l.LastVisitAt), nullString(l.CategoryID),
		l.Note, boolToInt(l.Favorite), l.LastSource, deletedAt,
		formatTime(l.CreatedAt), formatTime(l.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(err, errors.CodeConflict, "link %s already exists", l.CanonicalURL)
		}
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

// SaveLink writes every mutable column of l. The canonical URL, creation
// time and trash state are not changed here.
func (t *Tx) SaveLink(ctx context.Context, l *Link) error {
	l.UpdatedAt = t.now
	res, err := t.tx.ExecContext(ctx, `
		UPDATE links SET
			raw_url = ?, title = ?, domain = ?, visit_count = ?,
			first_seen_at = ?, last_visit_at = ?, category_id = ?, note = ?,
			is_favorite = ?, last_source = ?, updated_at = ?
		WHERE id = ?`,
		l.RawURL, l.Title, l.Domain, l.VisitCount,
		formatTime(l.FirstSeenAt), nullTime(l.LastVisitAt), nullString(l.CategoryID), l.Note,
		boolToInt(l.Favorite), l.LastSource, formatTime(l.UpdatedAt),
		l.ID,
	)
	if err != nil {
		return fmt.Errorf("update link: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NotFoundf("link %s not found", l.ID)
	}
	return nil
}

// LinkTags returns the tag names of a link.
func (t *Tx) LinkTags(ctx context.Context, linkID string) ([]string, error) {
	links := []Link{{ID: linkID}}
	if err := loadTags(ctx, t.tx, links); err != nil {
		return nil, err
	}
	return links[0].Tags, nil
}

// SetLinkTags replaces the tag set of a link, creating missing tags.
// Blank and duplicate names are ignored.
func (t *Tx) SetLinkTags(ctx context.Context, linkID string, names []string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM link_tags WHERE link_id = ?`, linkID); err != nil {
		return fmt.Errorf("clear link tags: %w", err)
	}

	seen := make(map[string]bool)
	for _, name := range names {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true

		tag, err := t.EnsureTag(ctx, name)
		if err != nil {
			return err
		}
		if _, err := t.tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO link_tags (link_id, tag_id) VALUES (?, ?)`, linkID, tag.ID); err != nil {
			return fmt.Errorf("tag link: %w", err)
		}
	}
	return nil
}

// EnsureTag returns the tag named name, creating it if needed.
func (t *Tx) EnsureTag(ctx context.Context, name string) (*Tag, error) {
	tag, err := scanTag(t.tx.QueryRowContext(ctx,
		`SELECT id, name, created_at, 0 FROM tags WHERE name = ? COLLATE NOCASE`, name))
	if err == nil {
		return tag, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("find tag: %w", err)
	}
	return insertTag(ctx, t.tx, name, t.now)
}

// EnsureCategory returns the category named name, creating it with color
// (or the default color) if needed. An existing category keeps its color.
func (t *Tx) EnsureCategory(ctx context.Context, name, color string) (*Category, error) {
	c, err := scanCategory(t.tx.QueryRowContext(ctx,
		`SELECT id, name, color, created_at, 0 FROM categories WHERE name = ? COLLATE NOCASE`, name))
	if err == nil {
		return c, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("find category: %w", err)
	}
	return insertCategory(ctx, t.tx, name, color, t.now)
}

func (t *Tx) categoryByID(ctx context.Context, categoryID string) (*Category, error) {
	c, err := scanCategory(t.tx.QueryRowContext(ctx,
		`SELECT id, name, color, created_at, 0 FROM categories WHERE id = ?`, categoryID))
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundf("category %s not found", categoryID)
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

// Checkpoints returns the checkpoints of one source keyed by raw URL.
func (t *Tx) Checkpoints(ctx context.Context, browser, profile string) (map[string]Checkpoint, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT url, cumulative_count, last_visit_at
		FROM source_checkpoints WHERE browser = ? AND profile = ?`, browser, profile)
	if err != nil {
		return nil, fmt.Errorf("load checkpoints: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Checkpoint)
	for rows.Next() {
		cp := Checkpoint{Browser: browser, Profile: profile}
		var lastVisit sql.NullString
		if err := rows.Scan(&cp.URL, &cp.CumulativeCount, &lastVisit); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		if cp.LastVisitAt, err = parseNullableTime(lastVisit); err != nil {
			return nil, err
		}
		out[cp.URL] = cp
	}
	return out, rows.Err()
}

// PutCheckpoint inserts or replaces a checkpoint.
func (t *Tx) PutCheckpoint(ctx context.Context, cp Checkpoint) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO source_checkpoints (browser, profile, url, cumulative_count, last_visit_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (browser, profile, url) DO UPDATE SET
			cumulative_count = excluded.cumulative_count,
			last_visit_at = excluded.last_visit_at,
			updated_at = excluded.updated_at`,
		cp.Browser, cp.Profile, cp.URL, cp.CumulativeCount, nullTime(cp.LastVisitAt), formatTime(t.now),
	)
	if err != nil {
		return fmt.Errorf("put checkpoint: %w", err)
	}
	return nil
}

// RecordSourceSuccess upserts the registry row of a source that was read
// successfully. The watermark only moves forward.
func (t *Tx) RecordSourceSuccess(ctx context.Context, st SourceState) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sources (browser, profile, name, path, last_scanned_at, watermark,
			last_error_code, last_error, last_observations)
		VALUES (?, ?, ?, ?, ?, ?, '', '', ?)
		ON CONFLICT (browser, profile) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			last_scanned_at = excluded.last_scanned_at,
			watermark = CASE
				WHEN sources.watermark IS NULL THEN excluded.watermark
				WHEN excluded.watermark IS NULL THEN sources.watermark
				WHEN excluded.watermark > sources.watermark THEN excluded.watermark
				ELSE sources.watermark END,
			last_error_code = '',
			last_error = '',
			last_observations = excluded.last_observations`,
		st.Browser, st.Profile, st.Name, st.Path, formatTime(t.orNow(st.LastScannedAt)),
		nullTime(st.Watermark), st.LastObservations,
	)
	if err != nil {
		return fmt.Errorf("record source: %w", err)
	}
	return nil
}

// RecordSourceFailure upserts the registry row of a source that could not
// be read, leaving its watermark untouched.
func (t *Tx) RecordSourceFailure(ctx context.Context, st SourceState) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sources (browser, profile, name, path, last_scanned_at,
			last_error_code, last_error, last_observations)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT (browser, profile) DO UPDATE SET
			name = excluded.name,
			path = excluded.path,
			last_scanned_at = excluded.last_scanned_at,
			last_error_code = excluded.last_error_code,
			last_error = excluded.last_error,
			last_observations = 0`,
		st.Browser, st.Profile, st.Name, st.Path, formatTime(t.orNow(st.LastScannedAt)),
		st.LastErrorCode, st.LastError,
	)
	if err != nil {
		return fmt.Errorf("record source failure: %w", err)
	}
	return nil
}
