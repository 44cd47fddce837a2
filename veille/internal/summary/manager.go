// CLAUDE:SUMMARY Summary cache manager: content fingerprinting, per-run budget, copy-forward semantics.
// Package summary decides which items need (re)summarization and caches
// results keyed by content fingerprint. A matching fingerprint means the
// stored summary is reused with zero external calls; a changed fingerprint
// invalidates that item's entry only.
package summary

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"

	"github.com/hazyhaar/torref/veille/internal/store"
)

// Config configures the manager.
type Config struct {
	// Enabled gates all external calls. Disabling freezes cached
	// summaries in place; entries are never deleted.
	Enabled bool
	// MaxPerRun caps summarizer calls per cycle. Unprocessed candidates
	// keep their stale-or-absent summary until a future cycle. Default: 3.
	MaxPerRun int
	// MaxTastingNotes caps the stored tasting note list. Default: 8.
	MaxTastingNotes int

	Client ClientConfig
}

func (c *Config) defaults() {
	if c.MaxPerRun <= 0 {
		c.MaxPerRun = 3
	}
	if c.MaxTastingNotes <= 0 {
		c.MaxTastingNotes = 8
	}
}

// Manager runs the summary cache policy over each cycle's item batch.
type Manager struct {
	client Summarizer
	store  *store.Store
	config Config
	logger *slog.Logger
	md     *converter.Converter
}

// NewManager creates a Manager. A nil client with Enabled=true panics at
// call time, so wiring passes NewClient(cfg.Client) unless testing.
func NewManager(client Summarizer, st *store.Store, cfg Config, logger *slog.Logger) *Manager {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		client: client,
		store:  st,
		config: cfg,
		logger: logger,
		md: converter.NewConverter(
			converter.WithPlugins(base.NewBasePlugin(), commonmark.NewCommonmarkPlugin()),
		),
	}
}

// Fingerprint digests the fields that affect summary quality: key, title,
// price, and sorted attributes. Deterministic across runs and map order.
func Fingerprint(it *store.Item) string {
	h := sha256.New()
	h.Write([]byte(it.Key))
	h.Write([]byte{0})
	h.Write([]byte(it.Title))
	h.Write([]byte{0})
	if it.PriceCents != nil {
		fmt.Fprintf(h, "%d", *it.PriceCents)
	}
	h.Write([]byte{0})

	keys := make([]string, 0, len(it.Attrs))
	for k := range it.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{1})
		h.Write([]byte(it.Attrs[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Process applies the cache policy to one cycle's item batch: fingerprint
// match ⇒ cache hit, nothing to do (the stored row already carries the
// summary forward); mismatch or absence ⇒ candidate, summarized until the
// per-run budget runs out. Per-item failures are logged and swallowed so
// enrichment never blocks detection or persistence. Returns the number of
// summaries stored.
func (m *Manager) Process(ctx context.Context, src *store.Source, items []*store.Item) int {
	if !m.config.Enabled {
		return 0
	}

	budget := m.config.MaxPerRun
	stored := 0

	for _, it := range items {
		if ctx.Err() != nil {
			return stored
		}

		fp := Fingerprint(it)
		if it.Summary != nil && it.Summary.Fingerprint == fp {
			continue // cache hit, zero external calls
		}
		if budget == 0 {
			continue // retained stale-or-absent summary; retried next cycle
		}
		budget--

		sum, err := m.client.Summarize(ctx, m.request(src, it))
		if err != nil {
			m.logger.Warn("summary: call failed", "source_id", it.SourceID,
				"item_key", it.Key, "error", err)
			continue
		}

		sum.Fingerprint = fp
		m.normalize(sum)
		if err := m.store.UpdateItemSummary(ctx, it.SourceID, it.Key, sum); err != nil {
			m.logger.Warn("summary: store failed", "item_key", it.Key, "error", err)
			continue
		}
		it.Summary = sum
		stored++
	}
	return stored
}

// request builds the summarizer request for one item. HTML-bearing
// descriptions are converted to markdown so the model sees clean text.
func (m *Manager) request(src *store.Source, it *store.Item) Request {
	notes := it.Attrs["description"]
	if strings.Contains(notes, "<") {
		if md, err := m.md.ConvertString(notes); err == nil {
			notes = strings.TrimSpace(md)
		}
	}
	label := ""
	if src != nil {
		label = src.Name
	}
	return Request{
		ItemKey:     it.Key,
		Title:       it.Title,
		SourceLabel: label,
		PriceCents:  it.PriceCents,
		Notes:       notes,
		Attrs:       it.Attrs,
	}
}

// normalize cleans model output before storage: trimmed fields, tasting
// notes de-duplicated case-insensitively and capped.
func (m *Manager) normalize(sum *store.Summary) {
	sum.ShortTitle = strings.TrimSpace(sum.ShortTitle)
	sum.Text = strings.TrimSpace(sum.Text)
	sum.Producer = strings.TrimSpace(sum.Producer)
	sum.Origin = strings.TrimSpace(sum.Origin)
	sum.Elevation = strings.TrimSpace(sum.Elevation)
	sum.Process = strings.TrimSpace(sum.Process)

	seen := make(map[string]bool, len(sum.TastingNotes))
	notes := sum.TastingNotes[:0]
	for _, n := range sum.TastingNotes {
		n = strings.TrimSpace(n)
		key := strings.ToLower(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		notes = append(notes, n)
		if len(notes) == m.config.MaxTastingNotes {
			break
		}
	}
	sum.TastingNotes = notes
}
