package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/runnerr0/linktrail/internal/errors"
	"github.com/runnerr0/linktrail/internal/id"
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// scanCategory expects columns id, name, color, created_at, link count.
func scanCategory(scanner interface{ Scan(dest ...any) error }) (*Category, error) {
	var c Category
	var createdAt string
	if err := scanner.Scan(&c.ID, &c.Name, &c.Color, &createdAt, &c.LinkCount); err != nil {
		return nil, err
	}
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func normalizeCategory(name, color string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", errors.Validation("category name is required")
	}
	color = strings.TrimSpace(color)
	if color == "" {
		color = DefaultCategoryColor
	}
	if !colorPattern.MatchString(color) {
		return "", "", errors.Validationf("category color %q must look like #rrggbb", color)
	}
	return name, strings.ToLower(color), nil
}

func insertCategory(ctx context.Context, q querier, name, color string, now time.Time) (*Category, error) {
	name, color, err := normalizeCategory(name, color)
	if err != nil {
		return nil, err
	}

	cid, err := id.Generate(id.PrefixCategory)
	if err != nil {
		return nil, fmt.Errorf("generate category id: %w", err)
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO categories (id, name, color, created_at) VALUES (?, ?, ?, ?)`,
		cid, name, color, formatTime(now))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.Newf(errors.CodeConflict, "category %q already exists", name)
		}
		return nil, fmt.Errorf("insert category: %w", err)
	}

	return &Category{ID: cid, Name: name, Color: color, CreatedAt: now.UTC()}, nil
}

// CreateCategory creates a category. Names are unique, ignoring case.
func (s *SQLiteStore) CreateCategory(ctx context.Context, name, color string) (*Category, error) {
	var c *Category
	err := s.WithTx(ctx, func(tx *Tx) error {
		var err error
		c, err = insertCategory(ctx, tx.tx, name, color, tx.now)
		return err
	})
	return c, err
}

// ListCategories returns all categories with their active link counts,
// ordered by name.
func (s *SQLiteStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.color, c.created_at,
			(SELECT COUNT(*) FROM links l WHERE l.category_id = c.id AND l.deleted_at IS NULL)
		FROM categories c
		ORDER BY c.name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := []Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CategoryByName looks a category up by name, ignoring case.
func (s *SQLiteStore) CategoryByName(ctx context.Context, name string) (*Category, error) {
	c, err := scanCategory(s.db.QueryRowContext(ctx, `
		SELECT id, name, color, created_at, 0 FROM categories WHERE name = ? COLLATE NOCASE`,
		strings.TrimSpace(name)))
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundf("category %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

// UpdateCategory renames and recolors a category. An empty color keeps
// the current one.
func (s *SQLiteStore) UpdateCategory(ctx context.Context, categoryID, name, color string) (*Category, error) {
	var c *Category
	err := s.WithTx(ctx, func(tx *Tx) error {
		cur, err := tx.categoryByID(ctx, categoryID)
		if err != nil {
			return err
		}
		if strings.TrimSpace(color) == "" {
			color = cur.Color
		}
		name, color, err := normalizeCategory(name, color)
		if err != nil {
			return err
		}

		_, err = tx.tx.ExecContext(ctx, `UPDATE categories SET name = ?, color = ? WHERE id = ?`, name, color, categoryID)
		if err != nil {
			if isUniqueViolation(err) {
				return errors.Newf(errors.CodeConflict, "category %q already exists", name)
			}
			return fmt.Errorf("update category: %w", err)
		}
		cur.Name, cur.Color = name, color
		c = cur
		return nil
	})
	return c, err
}

// DeleteCategory removes a category. Its links fall back to no category.
func (s *SQLiteStore) DeleteCategory(ctx context.Context, categoryID string) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		res, err := tx.tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, categoryID)
		if err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.NotFoundf("category %s not found", categoryID)
		}
		return nil
	})
}
