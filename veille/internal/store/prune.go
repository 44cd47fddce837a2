// CLAUDE:SUMMARY Retention: age-based expiry then per-source caps, in one transaction.
package store

import (
	"context"
	"fmt"
	"time"
)

// Prune enforces the retention policy across all sources in one
// transaction: first age-based expiry (events older than MaxAgeDays, then
// items not seen within MaxAgeDays, whose events cascade), then per-source
// caps keeping the N most-recently-touched rows. Zero or negative policy
// fields disable the corresponding rule.
func (s *Store) Prune(ctx context.Context, policy RetentionPolicy) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if policy.MaxAgeDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -policy.MaxAgeDays).UnixMilli()
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM events WHERE created_at < ?`, cutoff); err != nil {
			return fmt.Errorf("expire events: %w", err)
		}
		// Items delete after events so cascades only cover survivors' events.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM items WHERE last_seen_at < ?`, cutoff); err != nil {
			return fmt.Errorf("expire items: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM fetch_log WHERE fetched_at < ?`, cutoff); err != nil {
			return fmt.Errorf("expire fetch log: %w", err)
		}
	}

	if policy.ItemsPerSource > 0 || policy.EventsPerSource > 0 {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM sources`)
		if err != nil {
			return fmt.Errorf("list sources: %w", err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			if policy.ItemsPerSource > 0 {
				// Oldest-touched overflow goes first; events cascade with it.
				_, err := tx.ExecContext(ctx,
					`DELETE FROM items WHERE source_id = ? AND item_key NOT IN (
						SELECT item_key FROM items WHERE source_id = ?
						ORDER BY last_seen_at DESC, item_key ASC LIMIT ?)`,
					id, id, policy.ItemsPerSource)
				if err != nil {
					return fmt.Errorf("cap items %s: %w", id, err)
				}
			}
			if policy.EventsPerSource > 0 {
				_, err := tx.ExecContext(ctx,
					`DELETE FROM events WHERE source_id = ? AND id NOT IN (
						SELECT id FROM events WHERE source_id = ?
						ORDER BY created_at DESC, id DESC LIMIT ?)`,
					id, id, policy.EventsPerSource)
				if err != nil {
					return fmt.Errorf("cap events %s: %w", id, err)
				}
			}
		}
	}

	return tx.Commit()
}
