// CLAUDE:SUMMARY Snapshot diffing: emits new_item, back_in_stock, out_of_stock, price_changed events.
// Package diff compares the stored snapshot of a source with a freshly
// extracted one and produces the ordered stock-change events between them.
package diff

import (
	"encoding/json"

	"github.com/hazyhaar/torref/veille/internal/store"
)

// Options tunes edge-case behavior of Detect.
type Options struct {
	// MissingIsOutOfStock emits out_of_stock for items present in the
	// previous snapshot but absent from the current one. Off by default:
	// a transient fetch miss is unknown, not a stock transition.
	MissingIsOutOfStock bool
}

// priceChange is the structured payload of a price_changed event.
type priceChange struct {
	OldCents *int64 `json:"old_cents"`
	NewCents *int64 `json:"new_cents"`
}

// Detect diffs previous against current and returns the transition events,
// in current-snapshot order, stock transition before price change per item.
// Unchanged items produce nothing. Deterministic: identical inputs yield an
// identical event list (IDs are assigned later by the caller).
func Detect(previous, current []*store.Item, opts Options) []*store.Event {
	prev := make(map[string]*store.Item, len(previous))
	for _, it := range previous {
		prev[it.Key] = it
	}

	var events []*store.Event
	seen := make(map[string]bool, len(current))

	for _, cur := range current {
		seen[cur.Key] = true
		old, ok := prev[cur.Key]
		if !ok {
			events = append(events, &store.Event{
				SourceID: cur.SourceID,
				ItemKey:  cur.Key,
				Type:     store.EventNewItem,
			})
			continue
		}

		if !old.InStock && cur.InStock {
			events = append(events, &store.Event{
				SourceID: cur.SourceID,
				ItemKey:  cur.Key,
				Type:     store.EventBackInStock,
			})
		} else if old.InStock && !cur.InStock {
			events = append(events, &store.Event{
				SourceID: cur.SourceID,
				ItemKey:  cur.Key,
				Type:     store.EventOutOfStock,
			})
		}

		// Price moves are independent of stock transitions; nil↔value
		// counts as a change.
		if !samePrice(old.PriceCents, cur.PriceCents) {
			payload, _ := json.Marshal(priceChange{OldCents: old.PriceCents, NewCents: cur.PriceCents})
			events = append(events, &store.Event{
				SourceID:    cur.SourceID,
				ItemKey:     cur.Key,
				Type:        store.EventPriceChanged,
				PayloadJSON: string(payload),
			})
		}
	}

	if opts.MissingIsOutOfStock {
		for _, old := range previous {
			if !seen[old.Key] && old.InStock {
				events = append(events, &store.Event{
					SourceID: old.SourceID,
					ItemKey:  old.Key,
					Type:     store.EventOutOfStock,
				})
			}
		}
	}

	return events
}

func samePrice(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
