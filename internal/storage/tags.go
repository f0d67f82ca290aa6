package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/runnerr0/linktrail/internal/errors"
	"github.com/runnerr0/linktrail/internal/id"
)

// scanTag expects columns id, name, created_at, link count.
func scanTag(scanner interface{ Scan(dest ...any) error }) (*Tag, error) {
	var t Tag
	var createdAt string
	if err := scanner.Scan(&t.ID, &t.Name, &createdAt, &t.LinkCount); err != nil {
		return nil, err
	}
	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func insertTag(ctx context.Context, q querier, name string, now time.Time) (*Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.Validation("tag name is required")
	}

	tid, err := id.Generate(id.PrefixTag)
	if err != nil {
		return nil, fmt.Errorf("generate tag id: %w", err)
	}

	_, err = q.ExecContext(ctx, `INSERT INTO tags (id, name, created_at) VALUES (?, ?, ?)`,
		tid, name, formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.Newf(errors.CodeConflict, "tag %q already exists", name)
		}
		return nil, fmt.Errorf("insert tag: %w", err)
	}
	return &Tag{ID: tid, Name: name, CreatedAt: now.UTC()}, nil
}

// CreateTag creates a tag. Names are unique, ignoring case.
func (s *SQLiteStore) CreateTag(ctx context.Context, name string) (*Tag, error) {
	var t *Tag
	err := s.WithTx(ctx, func(tx *Tx) error {
		var err error
		t, err = insertTag(ctx, tx.tx, name, tx.now)
		return err
	})
	return t, err
}

// ListTags returns all tags with their active link counts, ordered by name.
func (s *SQLiteStore) ListTags(ctx context.Context) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.created_at,
			(SELECT COUNT(*) FROM link_tags lt JOIN links l ON l.id = lt.link_id
			 WHERE lt.tag_id = t.id AND l.deleted_at IS NULL)
		FROM tags t
		ORDER BY t.name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	out := []Tag{}
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// DeleteTag removes a tag from every link and deletes it.
func (s *SQLiteStore) DeleteTag(ctx context.Context, tagID string) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		res, err := tx.tx.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, tagID)
		if err != nil {
			return fmt.Errorf("delete tag: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.NotFoundf("tag %s not found", tagID)
		}
		return nil
	})
}
