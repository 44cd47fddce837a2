// CLAUDE:SUMMARY Domain types for the torref store: Source, Item, Summary, StockChangeEvent, RetentionPolicy.
package store

// Source is one catalog listing page being polled.
type Source struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	Extractor     string `json:"extractor"`      // strategy tag, resolved against the extract registry
	FetchInterval int64  `json:"fetch_interval"` // milliseconds
	Enabled       bool   `json:"enabled"`
	ConfigJSON    string `json:"config_json"` // strategy-specific config (e.g. css selectors)
	LastPolledAt  *int64 `json:"last_polled_at,omitempty"`
	LastStatus    string `json:"last_status"`
	LastError     string `json:"last_error,omitempty"`
	FailCount     int    `json:"fail_count"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

// Item is one observed product at one source. Identity is (SourceID, Key):
// Key is content-derived (normalize.StableKey), never a surrogate row id.
type Item struct {
	SourceID    string            `json:"source_id"`
	Key         string            `json:"key"`
	Title       string            `json:"title"`
	URL         string            `json:"url"`
	PriceCents  *int64            `json:"price_cents,omitempty"` // nil = price unknown/unparsable
	InStock     bool              `json:"in_stock"`
	FirstSeenAt int64             `json:"first_seen_at"`
	LastSeenAt  int64             `json:"last_seen_at"`
	Attrs       map[string]string `json:"attrs,omitempty"` // free-form extracted metadata
	Seen        bool              `json:"seen"`            // notification badging marker
	Summary     *Summary          `json:"summary,omitempty"`
}

// Summary is a cached AI-generated description of an item. Fingerprint is
// the content digest the summary was computed against; a fingerprint
// mismatch invalidates the entry for that item only.
type Summary struct {
	ShortTitle   string   `json:"short_title"`
	Text         string   `json:"summary"`
	Producer     string   `json:"producer,omitempty"`
	Origin       string   `json:"origin,omitempty"`
	Elevation    string   `json:"elevation,omitempty"`
	Process      string   `json:"process,omitempty"`
	TastingNotes []string `json:"tasting_notes,omitempty"`

	// Bookkeeping, stored in their own columns rather than summary_json.
	Fingerprint string `json:"-"`
	Model       string `json:"-"`
	ProcessedAt int64  `json:"-"`
}

// Event types. Multiple types may be emitted for the same item in one
// cycle (a restock and a price move are independent facts).
const (
	EventNewItem      = "new_item"
	EventBackInStock  = "back_in_stock"
	EventOutOfStock   = "out_of_stock"
	EventPriceChanged = "price_changed"
)

// Event is an immutable stock-change fact, append-only.
type Event struct {
	ID          string `json:"id"`
	SourceID    string `json:"source_id"`
	ItemKey     string `json:"item_key"`
	Type        string `json:"type"`
	PayloadJSON string `json:"payload,omitempty"`
	Seen        bool   `json:"seen"`
	CreatedAt   int64  `json:"created_at"`
}

// FetchLogEntry records one poll attempt for observability.
type FetchLogEntry struct {
	ID           string
	SourceID     string
	Status       string // ok | error | extract_error | empty
	StatusCode   int
	ErrorMessage string
	DurationMs   int64
	ItemCount    int
	FetchedAt    int64
}

// RetentionPolicy bounds storage growth. Applied by Prune, not stored.
type RetentionPolicy struct {
	ItemsPerSource  int `yaml:"items_per_source"`
	EventsPerSource int `yaml:"events_per_source"`
	MaxAgeDays      int `yaml:"max_age_days"`
}
