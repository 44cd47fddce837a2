package idgen

import (
	"strings"
	"testing"
)

// WHAT: UUIDv7 output is canonical 36-char, 5-part UUID text.
// WHY: event and source IDs go straight into SQLite primary keys.
func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	if len(id) != 36 {
		t.Fatalf("expected length 36, got %d in %q", len(id), id)
	}
	if parts := strings.Split(id, "-"); len(parts) != 5 {
		t.Fatalf("expected 5 parts, got %d in %q", len(parts), id)
	}
}

// WHAT: consecutive UUIDv7 IDs never collide and sort in generation order.
// WHY: ORDER BY id is used as a cheap recency ordering for events.
func TestUUIDv7_SortableUnique(t *testing.T) {
	gen := UUIDv7()
	prev := gen()
	for i := 0; i < 200; i++ {
		id := gen()
		if id == prev {
			t.Fatalf("duplicate at iteration %d: %q", i, id)
		}
		if id < prev {
			t.Fatalf("iteration %d: %q sorts before predecessor %q", i, id, prev)
		}
		prev = id
	}
}

func TestNanoID(t *testing.T) {
	gen := NanoID(12)
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := gen()
		if len(id) != 12 {
			t.Fatalf("got length %d", len(id))
		}
		for _, c := range id {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')) {
				t.Fatalf("unexpected character %q in %q", c, id)
			}
		}
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate at iteration %d: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("evt_", UUIDv7())()
	if !strings.HasPrefix(id, "evt_") {
		t.Fatalf("expected prefix evt_, got %q", id)
	}
	if len(id) != 4+36 {
		t.Fatalf("expected length 40, got %d", len(id))
	}
}
