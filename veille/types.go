// CLAUDE:SUMMARY Re-exports store types (Source, Item, Event, Summary) as the veille public API.
// Package veille watches e-commerce catalog pages for availability and
// price changes. It polls registered sources on a backoff-aware schedule,
// extracts product listings, diffs them against the stored snapshot in
// SQLite, emits stock-change events to sinks, and enriches items with
// cached AI summaries.
package veille

import (
	"github.com/hazyhaar/torref/veille/internal/store"
)

// Re-export store types for public API.
type (
	Source          = store.Source
	Item            = store.Item
	Summary         = store.Summary
	Event           = store.Event
	FetchLogEntry   = store.FetchLogEntry
	RetentionPolicy = store.RetentionPolicy
)

// Event types as stored in the events table.
const (
	EventNewItem      = store.EventNewItem
	EventBackInStock  = store.EventBackInStock
	EventOutOfStock   = store.EventOutOfStock
	EventPriceChanged = store.EventPriceChanged
)

// OpenStore opens (creating if needed) the SQLite database at path with
// the service pragmas and schema applied.
func OpenStore(path string) (*store.Store, error) {
	return store.Open(path)
}
