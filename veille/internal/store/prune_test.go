package store

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func seedCycle(t *testing.T, s *Store, srcID string, n int, base int64) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		ts := base + int64(i)*1000
		items := []*Item{{
			SourceID: srcID, Key: fmt.Sprintf("k%02d", i),
			Title: "Item", URL: "https://x", InStock: true,
			FirstSeenAt: ts, LastSeenAt: ts,
		}}
		events := []*Event{{
			ID: fmt.Sprintf("evt_%s_%d_%02d", srcID, base, i), SourceID: srcID,
			ItemKey: fmt.Sprintf("k%02d", i), Type: EventNewItem, CreatedAt: ts,
		}}
		if err := s.ApplyCycle(ctx, srcID, items, events); err != nil {
			t.Fatalf("seed cycle: %v", err)
		}
	}
}

func TestPruneCapsPerSource(t *testing.T) {
	// WHAT: After Prune, every source holds at most the configured number
	// of items and events, keeping the most recently touched rows.
	// WHY: Per-source caps are the storage growth bound.
	s := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	a := seedSource(t, s, "src-a")
	b := seedSource(t, s, "src-b")
	seedCycle(t, s, a.ID, 10, now-100_000)
	seedCycle(t, s, b.ID, 10, now-100_000)

	policy := RetentionPolicy{ItemsPerSource: 4, EventsPerSource: 3}
	if err := s.Prune(ctx, policy); err != nil {
		t.Fatalf("prune: %v", err)
	}

	for _, id := range []string{a.ID, b.ID} {
		if n, _ := s.CountItems(ctx, id); n != 4 {
			t.Errorf("%s items: got %d, want 4", id, n)
		}
		if n, _ := s.CountEvents(ctx, id); n != 3 {
			t.Errorf("%s events: got %d, want 3", id, n)
		}
	}

	// Survivors are the newest-touched.
	items, _ := s.GetItems(ctx, a.ID)
	for _, it := range items {
		if it.Key < "k06" {
			t.Errorf("old item survived cap: %s", it.Key)
		}
	}
}

func TestPruneAgeExpiry(t *testing.T) {
	// WHAT: Items unseen beyond MaxAgeDays and events older than
	// MaxAgeDays are deleted; fresh rows survive.
	// WHY: Transiently missing items must persist, but not forever.
	s := openTestDB(t)
	ctx := context.Background()
	src := seedSource(t, s, "src-age")

	old := time.Now().AddDate(0, 0, -40).UnixMilli()
	fresh := time.Now().UnixMilli()
	seedCycle(t, s, src.ID, 2, old)
	seedCycle(t, s, src.ID, 1, fresh) // k00 refreshed, gets a duplicate-key upsert

	if err := s.Prune(ctx, RetentionPolicy{MaxAgeDays: 30}); err != nil {
		t.Fatalf("prune: %v", err)
	}

	items, _ := s.GetItems(ctx, src.ID)
	if len(items) != 1 || items[0].Key != "k00" {
		t.Fatalf("survivors: %+v", items)
	}
	if items[0].LastSeenAt != fresh {
		t.Error("refreshed item should keep its fresh last_seen_at")
	}
}

func TestPruneNeverOrphansEvents(t *testing.T) {
	// WHAT: No event row references a deleted item after Prune.
	// WHY: Foreign-key-style integrity between events and items.
	s := openTestDB(t)
	ctx := context.Background()
	src := seedSource(t, s, "src-fk")
	seedCycle(t, s, src.ID, 8, time.Now().UnixMilli()-50_000)

	if err := s.Prune(ctx, RetentionPolicy{ItemsPerSource: 2, EventsPerSource: 100}); err != nil {
		t.Fatalf("prune: %v", err)
	}

	var orphans int
	err := s.DB.QueryRow(`SELECT COUNT(*) FROM events e
		WHERE NOT EXISTS (SELECT 1 FROM items i
			WHERE i.source_id = e.source_id AND i.item_key = e.item_key)`).Scan(&orphans)
	if err != nil {
		t.Fatalf("orphan query: %v", err)
	}
	if orphans != 0 {
		t.Errorf("orphan events: %d", orphans)
	}
}

func TestPruneZeroPolicyIsNoop(t *testing.T) {
	// WHAT: A zero policy deletes nothing.
	// WHY: Retention must be opt-in per rule.
	s := openTestDB(t)
	ctx := context.Background()
	src := seedSource(t, s, "src-noop")
	seedCycle(t, s, src.ID, 5, time.Now().AddDate(0, 0, -90).UnixMilli())

	if err := s.Prune(ctx, RetentionPolicy{}); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n, _ := s.CountItems(ctx, src.ID); n != 5 {
		t.Errorf("items: got %d, want 5", n)
	}
	if n, _ := s.CountEvents(ctx, src.ID); n != 5 {
		t.Errorf("events: got %d, want 5", n)
	}
}
