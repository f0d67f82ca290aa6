package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ListSources returns the source registry ordered by browser and profile.
func (s *SQLiteStore) ListSources(ctx context.Context) ([]SourceState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT browser, profile, name, path, last_scanned_at, watermark,
			last_error_code, last_error, last_observations
		FROM sources ORDER BY browser, profile`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	out := []SourceState{}
	for rows.Next() {
		var st SourceState
		var scannedAt, watermark sql.NullString
		if err := rows.Scan(&st.Browser, &st.Profile, &st.Name, &st.Path, &scannedAt, &watermark,
			&st.LastErrorCode, &st.LastError, &st.LastObservations); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		if st.LastScannedAt, err = parseNullableTime(scannedAt); err != nil {
			return nil, err
		}
		if st.Watermark, err = parseNullableTime(watermark); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// SourceWatermarks returns the last-visit watermark of every source that
// has one, keyed by "browser/profile".
func (s *SQLiteStore) SourceWatermarks(ctx context.Context) (map[string]time.Time, error) {
	sources, err := s.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(sources))
	for _, st := range sources {
		if !st.Watermark.IsZero() {
			out[st.Key()] = st.Watermark
		}
	}
	return out, nil
}
