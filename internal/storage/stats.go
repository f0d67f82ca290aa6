package storage

import (
	"context"
	"fmt"
)

// GetStats returns aggregate statistics about the catalog.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(deleted_at IS NULL), 0),
			COALESCE(SUM(deleted_at IS NOT NULL), 0),
			COALESCE(SUM(is_favorite = 1 AND deleted_at IS NULL), 0),
			COALESCE(SUM(CASE WHEN deleted_at IS NULL THEN visit_count ELSE 0 END), 0)
		FROM links`).Scan(
		&stats.TotalLinks, &stats.ActiveLinks, &stats.TrashedLinks,
		&stats.FavoriteLinks, &stats.TotalVisits,
	)
	if err != nil {
		return nil, fmt.Errorf("count links: %w", err)
	}

	counts := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM categories", &stats.Categories},
		{"SELECT COUNT(*) FROM tags", &stats.Tags},
		{"SELECT COUNT(*) FROM filters", &stats.Filters},
		{"SELECT COUNT(*) FROM filters WHERE active = 1", &stats.ActiveFilters},
		{"SELECT COUNT(*) FROM sources", &stats.Sources},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("stats (%s): %w", c.query, err)
		}
	}

	// page_count * page_size; ignored when the pragmas are unavailable.
	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
			stats.DatabaseSizeBytes = pageCount * pageSize
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT domain, COUNT(*) AS cnt FROM links
		WHERE deleted_at IS NULL AND domain != ''
		GROUP BY domain ORDER BY cnt DESC, domain LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("top domains: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dc DomainCount
		if err := rows.Scan(&dc.Domain, &dc.Count); err != nil {
			return nil, err
		}
		stats.TopDomains = append(stats.TopDomains, dc)
	}

	return stats, rows.Err()
}
