package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/runnerr0/linktrail/internal/errors"
)

// linkColumns is the ordered list of columns selected in link queries.
// Must match the scan order in scanLink.
const linkColumns = `l.id, l.canonical_url, l.raw_url, l.title, l.domain, l.visit_count,
	l.first_seen_at, l.last_visit_at, l.category_id, COALESCE(c.name, ''), l.note,
	l.is_favorite, l.last_source, l.deleted_at, l.created_at, l.updated_at`

const linkFrom = `links l LEFT JOIN categories c ON c.id = l.category_id`

// scanLink scans a sql.Row (or sql.Rows via its Scan method) into a Link.
func scanLink(scanner interface{ Scan(dest ...any) error }) (*Link, error) {
	var l Link

	var (
		firstSeen  string
		lastVisit  sql.NullString
		categoryID sql.NullString
		favorite   int
		deletedAt  sql.NullString
		createdAt  string
		updatedAt  string
	)

	err := scanner.Scan(
		&l.ID, &l.CanonicalURL, &l.RawURL, &l.Title, &l.Domain, &l.VisitCount,
		&firstSeen, &lastVisit, &categoryID, &l.CategoryName, &l.Note,
		&favorite, &l.LastSource, &deletedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if l.FirstSeenAt, err = parseTime(firstSeen); err != nil {
		return nil, err
	}
	if l.LastVisitAt, err = parseNullableTime(lastVisit); err != nil {
		return nil, err
	}
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if l.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t, err := parseTime(deletedAt.String)
		if err != nil {
			return nil, err
		}
		l.DeletedAt = &t
	}

	l.CategoryID = categoryID.String
	l.Favorite = favorite != 0
	return &l, nil
}

func queryLinks(ctx context.Context, q querier, query string, args ...any) ([]Link, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	links := []Link{}
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := loadTags(ctx, q, links); err != nil {
		return nil, err
	}
	return links, nil
}

// loadTags fills the Tags field of links, sorted by name.
func loadTags(ctx context.Context, q querier, links []Link) error {
	if len(links) == 0 {
		return nil
	}

	index := make(map[string]int, len(links))
	for i := range links {
		index[links[i].ID] = i
	}

	const chunk = 500
	for start := 0; start < len(links); start += chunk {
		end := min(start+chunk, len(links))
		ids := make([]string, 0, end-start)
		for _, l := range links[start:end] {
			ids = append(ids, l.ID)
		}

		rows, err := q.QueryContext(ctx, `
			SELECT lt.link_id, t.name
			FROM link_tags lt JOIN tags t ON t.id = lt.tag_id
			WHERE lt.link_id IN (`+placeholders(len(ids))+`)
			ORDER BY t.name COLLATE NOCASE`, stringArgs(ids)...)
		if err != nil {
			return fmt.Errorf("load tags: %w", err)
		}
		for rows.Next() {
			var linkID, name string
			if err := rows.Scan(&linkID, &name); err != nil {
				rows.Close()
				return fmt.Errorf("scan tag: %w", err)
			}
			i := index[linkID]
			links[i].Tags = append(links[i].Tags, name)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// buildLinkWhere translates q into a WHERE clause and its arguments.
func buildLinkWhere(q LinkQuery) (string, []any) {
	var clauses []string
	var args []any

	if q.Trashed {
		clauses = append(clauses, "l.deleted_at IS NOT NULL")
	} else {
		clauses = append(clauses, "l.deleted_at IS NULL")
	}
	if text := strings.TrimSpace(q.Text); text != "" {
		p := likePattern(text)
		clauses = append(clauses, `(l.title LIKE ? ESCAPE '\' OR l.canonical_url LIKE ? ESCAPE '\' OR l.note LIKE ? ESCAPE '\')`)
		args = append(args, p, p, p)
	}
	if q.CategoryID != "" {
		clauses = append(clauses, "l.category_id = ?")
		args = append(args, q.CategoryID)
	}
	if q.Category != "" {
		clauses = append(clauses, "c.name = ? COLLATE NOCASE")
		args = append(args, q.Category)
	}
	if q.Tag != "" {
		clauses = append(clauses, `EXISTS (
			SELECT 1 FROM link_tags lt JOIN tags t ON t.id = lt.tag_id
			WHERE lt.link_id = l.id AND t.name = ? COLLATE NOCASE)`)
		args = append(args, q.Tag)
	}
	if q.Domain != "" {
		clauses = append(clauses, "l.domain = ?")
		args = append(args, strings.ToLower(q.Domain))
	}
	if q.FavoritesOnly {
		clauses = append(clauses, "l.is_favorite = 1")
	}
	if !q.Since.IsZero() {
		clauses = append(clauses, "l.last_visit_at >= ?")
		args = append(args, formatTime(q.Since))
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

func linkOrder(sort string) string {
	switch sort {
	case SortVisits:
		return " ORDER BY l.visit_count DESC, l.id"
	case SortTitle:
		return " ORDER BY l.title COLLATE NOCASE ASC, l.id"
	case SortFirstSeen:
		return " ORDER BY l.first_seen_at DESC, l.id"
	default:
		return " ORDER BY COALESCE(l.last_visit_at, '') DESC, l.id"
	}
}

// ListLinks returns links matching q. Trashed links are only returned when
// q.Trashed is set, and then exclusively.
func (s *SQLiteStore) ListLinks(ctx context.Context, q LinkQuery) ([]Link, error) {
	where, args := buildLinkWhere(q)

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + linkColumns + ` FROM ` + linkFrom + where + linkOrder(q.Sort) + ` LIMIT ? OFFSET ?`
	args = append(args, limit, q.Offset)

	return queryLinks(ctx, s.db, query, args...)
}

// CountLinks returns how many links match q, ignoring limit and offset.
func (s *SQLiteStore) CountLinks(ctx context.Context, q LinkQuery) (int64, error) {
	where, args := buildLinkWhere(q)
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+linkFrom+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count links: %w", err)
	}
	return n, nil
}

// ExportLinks returns every non-trashed link with category and tags
// resolved, oldest first.
func (s *SQLiteStore) ExportLinks(ctx context.Context) ([]Link, error) {
	return queryLinks(ctx, s.db, `SELECT `+linkColumns+` FROM `+linkFrom+
		` WHERE l.deleted_at IS NULL ORDER BY l.first_seen_at, l.id`)
}

// GetLink retrieves a single link, trashed or not, by ID.
func (s *SQLiteStore) GetLink(ctx context.Context, id string) (*Link, error) {
	l, err := scanLink(s.getLink.QueryRowContext(ctx, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundf("link %s not found", id)
		}
		return nil, fmt.Errorf("get link: %w", err)
	}

	links := []Link{*l}
	if err := loadTags(ctx, s.db, links); err != nil {
		return nil, err
	}
	return &links[0], nil
}

// UpdateLink applies user edits to a link and returns the updated link.
func (s *SQLiteStore) UpdateLink(ctx context.Context, id string, u LinkUpdate) (*Link, error) {
	if u.VisitCount != nil && *u.VisitCount < 0 {
		return nil, errors.Validationf("visit count must be >= 0, got %d", *u.VisitCount)
	}

	err := s.WithTx(ctx, func(tx *Tx) error {
		l, err := tx.LinkByID(ctx, id)
		if err != nil {
			return err
		}

		if u.Title != nil {
			l.Title = strings.TrimSpace(*u.Title)
		}
		if u.Note != nil {
			l.Note = *u.Note
		}
		if u.Favorite != nil {
			l.Favorite = *u.Favorite
		}
		if u.VisitCount != nil {
			l.VisitCount = *u.VisitCount
		}
		if u.CategoryID != nil {
			if *u.CategoryID != "" {
				if _, err := tx.categoryByID(ctx, *u.CategoryID); err != nil {
					return err
				}
			}
			l.CategoryID = *u.CategoryID
		}

		if err := tx.SaveLink(ctx, l); err != nil {
			return err
		}
		if u.Tags != nil {
			return tx.SetLinkTags(ctx, l.ID, *u.Tags)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetLink(ctx, id)
}

// ToggleFavorite flips a link's favorite flag and returns the new value.
func (s *SQLiteStore) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	var fav bool
	err := s.WithTx(ctx, func(tx *Tx) error {
		l, err := tx.LinkByID(ctx, id)
		if err != nil {
			return err
		}
		l.Favorite = !l.Favorite
		fav = l.Favorite
		return tx.SaveLink(ctx, l)
	})
	return fav, err
}

// TrashLinks soft-deletes the given links. Already-trashed and unknown IDs
// are ignored; the number of links moved to the trash is returned.
func (s *SQLiteStore) TrashLinks(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int64
	err := s.WithTx(ctx, func(tx *Tx) error {
		now := formatTime(tx.now)
		args := append([]any{now, now}, stringArgs(ids)...)
		res, err := tx.tx.ExecContext(ctx, `
			UPDATE links SET deleted_at = ?, updated_at = ?
			WHERE deleted_at IS NULL AND id IN (`+placeholders(len(ids))+`)`, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// RestoreLinks clears deleted_at on the given trashed links. This is the
// only operation that brings a link back from the trash.
func (s *SQLiteStore) RestoreLinks(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int64
	err := s.WithTx(ctx, func(tx *Tx) error {
		args := append([]any{formatTime(tx.now)}, stringArgs(ids)...)
		res, err := tx.tx.ExecContext(ctx, `
			UPDATE links SET deleted_at = NULL, updated_at = ?
			WHERE deleted_at IS NOT NULL AND id IN (`+placeholders(len(ids))+`)`, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// PurgeTrash permanently deletes every trashed link. Active links are never
// touched.
func (s *SQLiteStore) PurgeTrash(ctx context.Context) (int64, error) {
	var n int64
	err := s.WithTx(ctx, func(tx *Tx) error {
		res, err := tx.tx.ExecContext(ctx, `DELETE FROM links WHERE deleted_at IS NOT NULL`)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}
