package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/torref/veille/internal/store"

	_ "modernc.org/sqlite"
)

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

func ms(v int64) *int64 { return &v }

func TestPollDueSelectsDueSources(t *testing.T) {
	// WHAT: Never-polled and overdue sources run; a recently polled one
	// does not.
	// WHY: Core due-ness rule of the loop.
	st := openTestStore(t)
	ctx := context.Background()

	past := time.Now().UnixMilli() - 7_200_000
	recent := time.Now().UnixMilli() - 10_000
	st.InsertSource(ctx, &store.Source{ID: "due-new", Name: "New", URL: "https://a.example.com", Enabled: true, FetchInterval: 3_600_000})
	st.InsertSource(ctx, &store.Source{ID: "due-old", Name: "Old", URL: "https://b.example.com", Enabled: true, FetchInterval: 3_600_000, LastPolledAt: ms(past)})
	st.InsertSource(ctx, &store.Source{ID: "fresh", Name: "Fresh", URL: "https://c.example.com", Enabled: true, FetchInterval: 3_600_000, LastPolledAt: ms(recent)})

	var mu sync.Mutex
	var ran []string
	runner := func(ctx context.Context, src *store.Source) error {
		mu.Lock()
		defer mu.Unlock()
		ran = append(ran, src.ID)
		return nil
	}

	sched := New(st, runner, Config{}, nil)
	sched.pollDue(ctx)

	mu.Lock()
	defer mu.Unlock()
	got := map[string]bool{}
	for _, id := range ran {
		got[id] = true
	}
	if !got["due-new"] || !got["due-old"] || got["fresh"] {
		t.Errorf("ran: %v", ran)
	}
}

func TestPollDueIsolatesFailures(t *testing.T) {
	// WHAT: Source X failing does not stop source Y from polling in the
	// same scan.
	// WHY: Per-source failures must never abort the round.
	st := openTestStore(t)
	ctx := context.Background()
	st.InsertSource(ctx, &store.Source{ID: "x", Name: "X", URL: "https://x.example.com", Enabled: true})
	st.InsertSource(ctx, &store.Source{ID: "y", Name: "Y", URL: "https://y.example.com", Enabled: true})

	var ran []string
	runner := func(ctx context.Context, src *store.Source) error {
		ran = append(ran, src.ID)
		if src.ID == "x" {
			return errors.New("network down")
		}
		return nil
	}

	sched := New(st, runner, Config{}, nil)
	sched.pollDue(ctx)

	if len(ran) != 2 {
		t.Errorf("ran: %v, want both sources", ran)
	}
}

func TestEffectiveIntervalBackoff(t *testing.T) {
	// WHAT: The interval doubles per failure up to the ceiling, and
	// returns to roughly the configured interval once failures clear.
	// WHY: Backoff growth, cap, and decay are the §4.5 contract.
	sched := New(nil, nil, Config{JitterFraction: 0.0001, BackoffFactor: 2, BackoffCeiling: 8}, nil)
	src := &store.Source{ID: "s", FetchInterval: 1_000_000}

	base := sched.EffectiveInterval(src)
	if !within(base, 1_000_000, 0.01) {
		t.Errorf("base: %d", base)
	}

	src.FailCount = 1
	if got := sched.EffectiveInterval(src); !within(got, 2_000_000, 0.01) {
		t.Errorf("1 failure: %d", got)
	}
	src.FailCount = 3
	if got := sched.EffectiveInterval(src); !within(got, 8_000_000, 0.01) {
		t.Errorf("3 failures: %d", got)
	}
	src.FailCount = 10
	if got := sched.EffectiveInterval(src); !within(got, 8_000_000, 0.01) {
		t.Errorf("ceiling: %d", got)
	}

	src.FailCount = 0
	if got := sched.EffectiveInterval(src); !within(got, 1_000_000, 0.01) {
		t.Errorf("decayed: %d", got)
	}
}

func TestJitterDeterministicPerRound(t *testing.T) {
	// WHAT: Same source and poll round jitter identically; a new round
	// or another source jitters differently.
	// WHY: Stable due-ness within a round, spread across sources.
	sched := New(nil, nil, Config{JitterFraction: 0.25}, nil)

	a := &store.Source{ID: "a", FetchInterval: 1_000_000, LastPolledAt: ms(42)}
	if sched.EffectiveInterval(a) != sched.EffectiveInterval(a) {
		t.Error("jitter not deterministic")
	}

	b := &store.Source{ID: "b", FetchInterval: 1_000_000, LastPolledAt: ms(42)}
	next := &store.Source{ID: "a", FetchInterval: 1_000_000, LastPolledAt: ms(43)}
	if sched.EffectiveInterval(a) == sched.EffectiveInterval(b) &&
		sched.EffectiveInterval(a) == sched.EffectiveInterval(next) {
		t.Error("jitter never varies")
	}

	// Jitter stays inside ±fraction.
	got := float64(sched.EffectiveInterval(a))
	if got < 750_000 || got > 1_250_000 {
		t.Errorf("jitter out of bounds: %f", got)
	}
}

func TestRunObservesCancellation(t *testing.T) {
	// WHAT: Run returns promptly after ctx cancellation.
	// WHY: The host must be able to shut the loop down.
	st := openTestStore(t)
	sched := New(st, func(context.Context, *store.Source) error { return nil },
		Config{CheckInterval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}

func within(got, want int64, frac float64) bool {
	d := float64(got-want) / float64(want)
	if d < 0 {
		d = -d
	}
	return d <= frac
}
