package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/runnerr0/linktrail/internal/errors"
	"github.com/runnerr0/linktrail/internal/filter"
	"github.com/runnerr0/linktrail/internal/id"
)

const filterColumns = `id, pattern, kind, description, active, is_default, created_at`

func scanFilter(scanner interface{ Scan(dest ...any) error }) (*Filter, error) {
	var f Filter
	var (
		kind      string
		active    int
		isDefault int
		createdAt string
	)
	if err := scanner.Scan(&f.ID, &f.Pattern, &kind, &f.Description, &active, &isDefault, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if f.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	f.Kind = filter.Kind(kind)
	f.Active = active != 0
	f.IsDefault = isDefault != 0
	return &f, nil
}

// AddFilter stores a new exclusion rule. The pattern must compile for its
// kind; a duplicate (kind, pattern) pair is a CONFLICT.
func (s *SQLiteStore) AddFilter(ctx context.Context, f Filter) (*Filter, error) {
	f.Pattern = strings.TrimSpace(f.Pattern)
	kind, err := filter.ParseKind(string(f.Kind))
	if err != nil {
		return nil, err
	}
	f.Kind = kind
	if err := filter.Validate(f.Pattern, f.Kind); err != nil {
		return nil, err
	}

	err = s.WithTx(ctx, func(tx *Tx) error {
		fid, err := id.Generate(id.PrefixFilter)
		if err != nil {
			return fmt.Errorf("generate filter id: %w", err)
		}
		f.ID = fid
		f.CreatedAt = tx.now

		_, err = tx.tx.ExecContext(ctx, `
			INSERT INTO filters (`+filterColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.Pattern, string(f.Kind), f.Description, boolToInt(f.Active), boolToInt(f.IsDefault),
			formatTime(f.CreatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return errors.Newf(errors.CodeConflict, "%s filter %q already exists", f.Kind, f.Pattern)
			}
			return fmt.Errorf("insert filter: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFilters returns all filters, or only the active ones, in creation
// order.
func (s *SQLiteStore) ListFilters(ctx context.Context, activeOnly bool) ([]Filter, error) {
	query := `SELECT ` + filterColumns + ` FROM filters`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY created_at, pattern`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list filters: %w", err)
	}
	defer rows.Close()

	out := []Filter{}
	for rows.Next() {
		f, err := scanFilter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan filter: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// ActiveRules returns the active filters in evaluation form.
func (s *SQLiteStore) ActiveRules(ctx context.Context) ([]filter.Rule, error) {
	filters, err := s.ListFilters(ctx, true)
	if err != nil {
		return nil, err
	}
	rules := make([]filter.Rule, len(filters))
	for i, f := range filters {
		rules[i] = f.Rule()
	}
	return rules, nil
}

// SetFilterActive enables or disables a filter.
func (s *SQLiteStore) SetFilterActive(ctx context.Context, filterID string, active bool) error {
	return s.execOne(ctx, "filter", filterID,
		`UPDATE filters SET active = ? WHERE id = ?`, boolToInt(active), filterID)
}

// DeleteFilter removes a filter.
func (s *SQLiteStore) DeleteFilter(ctx context.Context, filterID string) error {
	return s.execOne(ctx, "filter", filterID, `DELETE FROM filters WHERE id = ?`, filterID)
}

// execOne runs a single-row write and reports NOT_FOUND when no row matched.
func (s *SQLiteStore) execOne(ctx context.Context, kind, entityID, query string, args ...any) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		res, err := tx.tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("write %s: %w", kind, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.NotFoundf("%s %s not found", kind, entityID)
		}
		return nil
	})
}
