package summary

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/hazyhaar/torref/veille/internal/store"

	_ "modernc.org/sqlite"
)

type stubSummarizer struct {
	calls []string
	fail  bool
}

func (s *stubSummarizer) Summarize(ctx context.Context, req Request) (*store.Summary, error) {
	s.calls = append(s.calls, req.ItemKey)
	if s.fail {
		return nil, errors.New("model unavailable")
	}
	return &store.Summary{
		ShortTitle:   "Short " + req.Title,
		Text:         "Summary of " + req.Title,
		TastingNotes: []string{" Cherry ", "cherry", "Plum", "", "Cocoa", "Honey"},
		Model:        "stub",
	}, nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.Exec("PRAGMA foreign_keys=ON")
	if err := store.ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewStore(db)
}

func seed(t *testing.T, st *store.Store, keys ...string) (*store.Source, []*store.Item) {
	t.Helper()
	ctx := context.Background()
	src := &store.Source{ID: "src", Name: "Torref", URL: "https://shop.example.com", Enabled: true}
	if err := st.InsertSource(ctx, src); err != nil {
		t.Fatalf("insert source: %v", err)
	}
	var items []*store.Item
	for _, k := range keys {
		items = append(items, &store.Item{
			SourceID: src.ID, Key: k, Title: "Coffee " + k,
			URL: "https://shop.example.com/p/" + k, InStock: true,
			Attrs: map[string]string{"process": "washed"},
		})
	}
	if err := st.ApplyCycle(ctx, src.ID, items, nil); err != nil {
		t.Fatalf("seed cycle: %v", err)
	}
	return src, items
}

func TestFingerprintDeterministicAndSensitive(t *testing.T) {
	// WHAT: Identical fields fingerprint identically regardless of attr
	// map order; changing title, price, or an attr changes it.
	// WHY: The fingerprint is the cache invalidation rule.
	a := &store.Item{Key: "k", Title: "T", PriceCents: cents(1000),
		Attrs: map[string]string{"process": "washed", "origin": "Kenya"}}
	b := &store.Item{Key: "k", Title: "T", PriceCents: cents(1000),
		Attrs: map[string]string{"origin": "Kenya", "process": "washed"}}
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("map order changed fingerprint")
	}

	variants := []*store.Item{
		{Key: "k", Title: "T2", PriceCents: cents(1000), Attrs: a.Attrs},
		{Key: "k", Title: "T", PriceCents: cents(1100), Attrs: a.Attrs},
		{Key: "k", Title: "T", PriceCents: nil, Attrs: a.Attrs},
		{Key: "k", Title: "T", PriceCents: cents(1000),
			Attrs: map[string]string{"process": "natural", "origin": "Kenya"}},
	}
	for i, v := range variants {
		if Fingerprint(v) == Fingerprint(a) {
			t.Errorf("variant %d did not change fingerprint", i)
		}
	}
}

func TestProcessCacheHitMakesNoCalls(t *testing.T) {
	// WHAT: A second run over unchanged items issues zero external calls.
	// WHY: Matching fingerprint ⇒ reuse, the core cache guarantee.
	st := openTestStore(t)
	src, items := seed(t, st, "a", "b")
	stub := &stubSummarizer{}
	m := NewManager(stub, st, Config{Enabled: true, MaxPerRun: 10}, nil)

	if n := m.Process(context.Background(), src, items); n != 2 {
		t.Fatalf("first run stored %d", n)
	}
	if len(stub.calls) != 2 {
		t.Fatalf("first run calls: %v", stub.calls)
	}

	fresh, _ := st.GetItems(context.Background(), src.ID)
	if n := m.Process(context.Background(), src, fresh); n != 0 {
		t.Errorf("second run stored %d", n)
	}
	if len(stub.calls) != 2 {
		t.Errorf("cache hit still called out: %v", stub.calls)
	}
}

func TestProcessInvalidatesChangedItemOnly(t *testing.T) {
	// WHAT: Changing one item's price re-summarizes that item only.
	// WHY: Invalidation is per-fingerprint, never batch-wide.
	st := openTestStore(t)
	ctx := context.Background()
	src, items := seed(t, st, "a", "b")
	stub := &stubSummarizer{}
	m := NewManager(stub, st, Config{Enabled: true, MaxPerRun: 10}, nil)
	m.Process(ctx, src, items)

	// Price move on "a".
	changed := []*store.Item{{
		SourceID: src.ID, Key: "a", Title: "Coffee a",
		URL: "https://shop.example.com/p/a", InStock: true, PriceCents: cents(1600),
		Attrs: map[string]string{"process": "washed"},
	}}
	if err := st.ApplyCycle(ctx, src.ID, changed, nil); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	fresh, _ := st.GetItems(ctx, src.ID)
	stub.calls = nil
	m.Process(ctx, src, fresh)
	if len(stub.calls) != 1 || stub.calls[0] != "a" {
		t.Errorf("calls: %v, want [a]", stub.calls)
	}

	b, _ := st.GetItem(ctx, src.ID, "b")
	if b.Summary == nil || b.Summary.ShortTitle != "Short Coffee b" {
		t.Errorf("unrelated summary touched: %+v", b.Summary)
	}
}

func TestProcessBudget(t *testing.T) {
	// WHAT: With MaxPerRun=2 and 5 candidates, exactly 2 calls go out;
	// the rest wait for a future cycle.
	// WHY: The per-cycle budget bounds latency and cost.
	st := openTestStore(t)
	src, items := seed(t, st, "a", "b", "c", "d", "e")
	stub := &stubSummarizer{}
	m := NewManager(stub, st, Config{Enabled: true, MaxPerRun: 2}, nil)

	if n := m.Process(context.Background(), src, items); n != 2 {
		t.Errorf("stored: %d", n)
	}
	if len(stub.calls) != 2 {
		t.Errorf("calls: %v", stub.calls)
	}

	// Next cycle picks up where the budget stopped.
	fresh, _ := st.GetItems(context.Background(), src.ID)
	m.Process(context.Background(), src, fresh)
	if len(stub.calls) != 4 {
		t.Errorf("second round calls: %v", stub.calls)
	}
}

func TestProcessDisabledFreezesCache(t *testing.T) {
	// WHAT: Disabled manager issues no calls and leaves stored summaries
	// untouched.
	// WHY: Disabling must freeze, never delete.
	st := openTestStore(t)
	ctx := context.Background()
	src, items := seed(t, st, "a")
	stub := &stubSummarizer{}

	on := NewManager(stub, st, Config{Enabled: true, MaxPerRun: 10}, nil)
	on.Process(ctx, src, items)

	off := NewManager(stub, st, Config{Enabled: false}, nil)
	fresh, _ := st.GetItems(ctx, src.ID)
	fresh[0].Title = "Changed Title" // would invalidate if enabled
	if n := off.Process(ctx, src, fresh); n != 0 {
		t.Errorf("disabled stored %d", n)
	}
	if len(stub.calls) != 1 {
		t.Errorf("disabled still called: %v", stub.calls)
	}

	got, _ := st.GetItem(ctx, src.ID, "a")
	if got.Summary == nil {
		t.Error("cached summary deleted")
	}
}

func TestProcessSwallowsFailures(t *testing.T) {
	// WHAT: A failing summarizer stores nothing and returns normally.
	// WHY: Enrichment failures are local, logged, retried next cycle.
	st := openTestStore(t)
	src, items := seed(t, st, "a", "b")
	stub := &stubSummarizer{fail: true}
	m := NewManager(stub, st, Config{Enabled: true, MaxPerRun: 10}, nil)

	if n := m.Process(context.Background(), src, items); n != 0 {
		t.Errorf("stored: %d", n)
	}
	got, _ := st.GetItem(context.Background(), src.ID, "a")
	if got.Summary != nil {
		t.Errorf("summary stored despite failure: %+v", got.Summary)
	}
}

func TestNormalizeTastingNotes(t *testing.T) {
	// WHAT: Stored notes are trimmed, de-duplicated case-insensitively,
	// and capped.
	// WHY: Model output is messy; the cache stores canonical lists.
	st := openTestStore(t)
	src, items := seed(t, st, "a")
	stub := &stubSummarizer{}
	m := NewManager(stub, st, Config{Enabled: true, MaxPerRun: 1, MaxTastingNotes: 3}, nil)
	m.Process(context.Background(), src, items)

	got, _ := st.GetItem(context.Background(), src.ID, "a")
	want := []string{"Cherry", "Plum", "Cocoa"}
	if len(got.Summary.TastingNotes) != len(want) {
		t.Fatalf("notes: %v", got.Summary.TastingNotes)
	}
	for i, n := range want {
		if got.Summary.TastingNotes[i] != n {
			t.Errorf("note %d: %q, want %q", i, got.Summary.TastingNotes[i], n)
		}
	}
}

func cents(v int64) *int64 { return &v }
