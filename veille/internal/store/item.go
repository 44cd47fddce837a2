// CLAUDE:SUMMARY Item snapshot queries, the ApplyCycle transaction, and summary cache writes.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const itemCols = `source_id, item_key, title, url, price_cents, in_stock,
	first_seen_at, last_seen_at, attrs_json, seen,
	summary_json, summary_fingerprint, summary_model, summarized_at`

// GetItems returns the stored snapshot for a source, newest-seen first.
func (s *Store) GetItems(ctx context.Context, sourceID string) ([]*Item, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+itemCols+` FROM items WHERE source_id = ?
		ORDER BY last_seen_at DESC, item_key ASC`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		it, err := scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetItem returns one item by (source, key), or nil when absent.
func (s *Store) GetItem(ctx context.Context, sourceID, key string) (*Item, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+itemCols+` FROM items WHERE source_id = ? AND item_key = ?`,
		sourceID, key)
	it, err := scanItem(row.Scan)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// ApplyCycle commits the outcome of one successful poll cycle as a single
// transaction: every item upsert, every derived event, and the source's
// poll-success metadata land together or not at all. A half-applied cycle
// is never observable.
//
// Upserts preserve first_seen_at, the seen marker, and the cached summary;
// summaries are written separately by UpdateItemSummary after the cycle.
// Idempotent: replaying the same batch only advances last_seen_at.
func (s *Store) ApplyCycle(ctx context.Context, sourceID string, items []*Item, events []*Event) error {
	now := time.Now().UnixMilli()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, it := range items {
		attrs := "{}"
		if len(it.Attrs) > 0 {
			b, err := json.Marshal(it.Attrs)
			if err != nil {
				return fmt.Errorf("marshal attrs %s: %w", it.Key, err)
			}
			attrs = string(b)
		}
		if it.LastSeenAt == 0 {
			it.LastSeenAt = now
		}
		if it.FirstSeenAt == 0 {
			it.FirstSeenAt = it.LastSeenAt
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO items (source_id, item_key, title, url, price_cents,
			in_stock, first_seen_at, last_seen_at, attrs_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(source_id, item_key) DO UPDATE SET
				title = excluded.title,
				url = excluded.url,
				price_cents = excluded.price_cents,
				in_stock = excluded.in_stock,
				last_seen_at = excluded.last_seen_at,
				attrs_json = excluded.attrs_json`,
			sourceID, it.Key, it.Title, it.URL, it.PriceCents,
			it.InStock, it.FirstSeenAt, it.LastSeenAt, attrs,
		)
		if err != nil {
			return fmt.Errorf("upsert item %s: %w", it.Key, err)
		}
	}

	for _, ev := range events {
		if ev.CreatedAt == 0 {
			ev.CreatedAt = now
		}
		if ev.PayloadJSON == "" {
			ev.PayloadJSON = "{}"
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO events (id, source_id, item_key, event_type, payload_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.SourceID, ev.ItemKey, ev.Type, ev.PayloadJSON, ev.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", ev.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sources SET last_polled_at=?, last_status='ok', last_error='',
		fail_count=0, updated_at=? WHERE id=?`, now, now, sourceID)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}

	return tx.Commit()
}

// UpdateItemSummary stores a (re)generated summary with the fingerprint it
// was computed against. Runs outside the cycle transaction: enrichment is
// never allowed to roll back stock-change detection.
func (s *Store) UpdateItemSummary(ctx context.Context, sourceID, key string, sum *Summary) error {
	body, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if sum.ProcessedAt == 0 {
		sum.ProcessedAt = time.Now().UnixMilli()
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE items SET summary_json=?, summary_fingerprint=?, summary_model=?,
		summarized_at=? WHERE source_id=? AND item_key=?`,
		string(body), sum.Fingerprint, sum.Model, sum.ProcessedAt, sourceID, key)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("update summary: item %s/%s not found", sourceID, key)
	}
	return nil
}

// MarkItemsSeen clears the unseen badge for all items of a source.
func (s *Store) MarkItemsSeen(ctx context.Context, sourceID string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE items SET seen=1 WHERE source_id=?`, sourceID)
	return err
}

// InsertFetchLog appends one poll attempt to the observability log.
// Best-effort: callers typically ignore the error.
func (s *Store) InsertFetchLog(ctx context.Context, e *FetchLogEntry) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO fetch_log (id, source_id, status, status_code,
		error_message, duration_ms, item_count, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SourceID, e.Status, e.StatusCode,
		e.ErrorMessage, e.DurationMs, e.ItemCount, e.FetchedAt)
	return err
}

func scanItem(scan func(...any) error) (*Item, error) {
	var it Item
	var inStock, seen int
	var attrsJSON, summaryJSON, summaryFP, summaryModel string
	var summarizedAt *int64
	err := scan(
		&it.SourceID, &it.Key, &it.Title, &it.URL, &it.PriceCents, &inStock,
		&it.FirstSeenAt, &it.LastSeenAt, &attrsJSON, &seen,
		&summaryJSON, &summaryFP, &summaryModel, &summarizedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan item: %w", err)
	}
	it.InStock = inStock != 0
	it.Seen = seen != 0
	if attrsJSON != "" && attrsJSON != "{}" {
		if err := json.Unmarshal([]byte(attrsJSON), &it.Attrs); err != nil {
			return nil, fmt.Errorf("unmarshal attrs %s: %w", it.Key, err)
		}
	}
	if summaryJSON != "" {
		var sum Summary
		if err := json.Unmarshal([]byte(summaryJSON), &sum); err != nil {
			return nil, fmt.Errorf("unmarshal summary %s: %w", it.Key, err)
		}
		sum.Fingerprint = summaryFP
		sum.Model = summaryModel
		if summarizedAt != nil {
			sum.ProcessedAt = *summarizedAt
		}
		it.Summary = &sum
	}
	return &it, nil
}
