// CLAUDE:SUMMARY Event queries: listing, unseen counts for badging, mark-seen.
package store

import (
	"context"
	"fmt"
)

// ListEvents returns events, newest first, optionally filtered to one
// source and/or unseen only. limit <= 0 means a default of 200.
func (s *Store) ListEvents(ctx context.Context, sourceID string, unseenOnly bool, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `SELECT id, source_id, item_key, event_type, payload_json, seen, created_at
		FROM events WHERE 1=1`
	var args []any
	if sourceID != "" {
		query += ` AND source_id = ?`
		args = append(args, sourceID)
	}
	if unseenOnly {
		query += ` AND seen = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var ev Event
		var seen int
		if err := rows.Scan(&ev.ID, &ev.SourceID, &ev.ItemKey, &ev.Type,
			&ev.PayloadJSON, &seen, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Seen = seen != 0
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// UnseenCounts returns the number of unseen events per source.
func (s *Store) UnseenCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT source_id, COUNT(*) FROM events WHERE seen = 0 GROUP BY source_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// MarkEventsSeen flags events as seen. With no IDs, all unseen events are
// flagged; otherwise only the given event IDs.
func (s *Store) MarkEventsSeen(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		_, err := s.DB.ExecContext(ctx, `UPDATE events SET seen=1 WHERE seen=0`)
		return err
	}
	for _, id := range ids {
		if _, err := s.DB.ExecContext(ctx, `UPDATE events SET seen=1 WHERE id=?`, id); err != nil {
			return err
		}
	}
	return nil
}

// CountEvents returns the total number of events for a source.
func (s *Store) CountEvents(ctx context.Context, sourceID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE source_id=?`, sourceID).Scan(&n)
	return n, err
}

// CountItems returns the total number of items for a source.
func (s *Store) CountItems(ctx context.Context, sourceID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE source_id=?`, sourceID).Scan(&n)
	return n, err
}
