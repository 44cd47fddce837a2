// CLAUDE:SUMMARY Extractor strategy registry: RawItem, Strategy interface, tag resolution with generic fallback.
// Package extract turns one fetched catalog page into raw item records.
// Strategies are registered by tag and resolved per source at cycle time;
// adding a new site means registering a new strategy, not touching the
// core. The generic strategy is the fallback for unknown tags; its
// accuracy is a quality property, the core never special-cases its output.
package extract

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hazyhaar/torref/veille/internal/store"
)

// StockHint is the extractor's availability reading for one item.
type StockHint string

const (
	// StockUnknown means the page carried no availability marker. A
	// listed item with no marker is treated as available downstream;
	// only an explicit StockUnavailable drives out-of-stock.
	StockUnknown     StockHint = ""
	StockAvailable   StockHint = "available"
	StockUnavailable StockHint = "unavailable"
)

// RawItem is one product as read off a page, before normalization.
type RawItem struct {
	Title     string
	URL       string
	PriceText string
	Stock     StockHint
	Attrs     map[string]string
}

// InStock resolves the hint to the boolean the snapshot stores.
func (r *RawItem) InStock() bool {
	return r.Stock != StockUnavailable
}

// Strategy extracts raw items from one fetched page body.
type Strategy interface {
	Extract(src *store.Source, body []byte) ([]RawItem, error)
}

// Registry maps extractor tags to strategies. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates a Registry with the built-in strategies registered:
// jsonld, css, feed, and generic.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	r.Register("jsonld", &JSONLDStrategy{})
	r.Register("css", &CSSStrategy{})
	r.Register("feed", &FeedStrategy{})
	r.Register("generic", &GenericStrategy{})
	return r
}

// Register adds or replaces the strategy for a tag.
func (r *Registry) Register(tag string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[tag] = s
}

// Resolve returns the strategy for a tag, falling back to generic for
// unknown tags.
func (r *Registry) Resolve(tag string) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.strategies[tag]; ok {
		return s
	}
	return r.strategies["generic"]
}

// Known reports whether a tag has a registered strategy.
func (r *Registry) Known(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.strategies[tag]
	return ok
}

// Tags returns all registered tags, sorted.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.strategies))
	for t := range r.strategies {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// errNoItems is returned by strategies that found structure but no items;
// callers treat it like any other extraction failure.
func errNoItems(tag string) error {
	return fmt.Errorf("%s: no items found in page", tag)
}
