// CLAUDE:SUMMARY Source CRUD, enabled-source listing, and poll status recording.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const sourceCols = `id, name, url, extractor, fetch_interval, enabled,
	config_json, last_polled_at, last_status, last_error, fail_count,
	created_at, updated_at`

// InsertSource adds a new source.
func (s *Store) InsertSource(ctx context.Context, src *Source) error {
	now := time.Now().UnixMilli()
	if src.CreatedAt == 0 {
		src.CreatedAt = now
	}
	if src.UpdatedAt == 0 {
		src.UpdatedAt = now
	}
	if src.Extractor == "" {
		src.Extractor = "generic"
	}
	if src.FetchInterval == 0 {
		src.FetchInterval = 3600000
	}
	if src.ConfigJSON == "" {
		src.ConfigJSON = "{}"
	}
	if src.LastStatus == "" {
		src.LastStatus = "pending"
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO sources (id, name, url, extractor, fetch_interval, enabled,
		config_json, last_polled_at, last_status, last_error, fail_count,
		created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.Name, src.URL, src.Extractor, src.FetchInterval, src.Enabled,
		src.ConfigJSON, src.LastPolledAt, src.LastStatus, src.LastError,
		src.FailCount, src.CreatedAt, src.UpdatedAt,
	)
	return err
}

// UpsertSource inserts a source or, when a source with the same URL exists,
// updates its configuration (name, extractor, interval, enabled, config)
// while preserving polling metadata. Used to sync configured sources at
// startup without resetting backoff state.
func (s *Store) UpsertSource(ctx context.Context, src *Source) error {
	existing, err := s.GetSourceByURL(ctx, src.URL)
	if err != nil {
		return err
	}
	if existing == nil {
		return s.InsertSource(ctx, src)
	}
	src.ID = existing.ID
	_, err = s.DB.ExecContext(ctx,
		`UPDATE sources SET name=?, extractor=?, fetch_interval=?, enabled=?,
		config_json=?, updated_at=? WHERE id=?`,
		src.Name, src.Extractor, src.FetchInterval, src.Enabled,
		src.ConfigJSON, time.Now().UnixMilli(), existing.ID,
	)
	return err
}

// GetSource retrieves a source by ID. Returns nil, nil when absent.
func (s *Store) GetSource(ctx context.Context, id string) (*Source, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+sourceCols+` FROM sources WHERE id = ?`, id)
	return scanSource(row.Scan)
}

// GetSourceByURL returns the source matching the given URL, or nil.
func (s *Store) GetSourceByURL(ctx context.Context, url string) (*Source, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+sourceCols+` FROM sources WHERE url = ? LIMIT 1`, url)
	return scanSource(row.Scan)
}

// ListSources returns all sources.
func (s *Store) ListSources(ctx context.Context) ([]*Source, error) {
	return s.querySources(ctx, `SELECT `+sourceCols+` FROM sources ORDER BY created_at ASC`)
}

// ListEnabledSources returns enabled sources ordered oldest-polled first.
// Due-ness (interval, jitter, backoff) is computed by the scheduler.
func (s *Store) ListEnabledSources(ctx context.Context) ([]*Source, error) {
	return s.querySources(ctx,
		`SELECT `+sourceCols+` FROM sources WHERE enabled = 1
		ORDER BY last_polled_at ASC NULLS FIRST`)
}

// DeleteSource removes a source; items, events, and poll log cascade.
func (s *Store) DeleteSource(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	return err
}

// RecordPollError marks a failed poll: advances last_polled_at and bumps
// fail_count, which the scheduler turns into exponential backoff.
func (s *Store) RecordPollError(ctx context.Context, id, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE sources SET last_polled_at=?, last_status='error',
		last_error=?, fail_count=fail_count+1, updated_at=?
		WHERE id=?`, now, errMsg, now, id)
	return err
}

func (s *Store) querySources(ctx context.Context, query string, args ...any) ([]*Source, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		src, err := scanSource(rows.Scan)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func scanSource(scan func(...any) error) (*Source, error) {
	var src Source
	var enabled int
	err := scan(
		&src.ID, &src.Name, &src.URL, &src.Extractor, &src.FetchInterval, &enabled,
		&src.ConfigJSON, &src.LastPolledAt, &src.LastStatus, &src.LastError,
		&src.FailCount, &src.CreatedAt, &src.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan source: %w", err)
	}
	src.Enabled = enabled != 0
	return &src, nil
}
