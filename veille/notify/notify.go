// CLAUDE:SUMMARY Event sinks: fan-out of stock-change events to log and Telegram.

// Package notify delivers stock-change events produced by a poll cycle.
// Sinks are best-effort: delivery failure never affects the committed
// snapshot, events stay queryable through the API either way.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/torref/veille/internal/store"
)

// Sink receives the events of one committed poll cycle.
type Sink interface {
	Notify(ctx context.Context, src *store.Source, events []*store.Event) error
}

// LogSink writes events to the structured log. Always installed; the
// cheapest way to watch a deployment is `torref serve` plus grep.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) Notify(_ context.Context, src *store.Source, events []*store.Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, ev := range events {
		logger.Info("stock change",
			"source", src.Name,
			"type", ev.Type,
			"item_key", ev.ItemKey,
			"event_id", ev.ID)
	}
	return nil
}

// FormatEvent renders one event as a human-readable line. Shared by the
// Telegram sink and the CLI `events` command.
func FormatEvent(src *store.Source, ev *store.Event, it *store.Item) string {
	title := ev.ItemKey
	if it != nil && it.Title != "" {
		title = it.Title
	}

	switch ev.Type {
	case store.EventNewItem:
		return fmt.Sprintf("🆕 %s: new item %q", src.Name, title)
	case store.EventBackInStock:
		return fmt.Sprintf("✅ %s: %q back in stock", src.Name, title)
	case store.EventOutOfStock:
		return fmt.Sprintf("❌ %s: %q out of stock", src.Name, title)
	case store.EventPriceChanged:
		var p struct {
			OldCents *int64 `json:"old_cents"`
			NewCents *int64 `json:"new_cents"`
		}
		if err := json.Unmarshal([]byte(ev.PayloadJSON), &p); err == nil {
			return fmt.Sprintf("💱 %s: %q price %s → %s",
				src.Name, title, formatCents(p.OldCents), formatCents(p.NewCents))
		}
		return fmt.Sprintf("💱 %s: %q price changed", src.Name, title)
	default:
		return fmt.Sprintf("%s: %s %q", src.Name, ev.Type, title)
	}
}

func formatCents(v *int64) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprintf("%d.%02d", *v/100, *v%100)
}

// Multi fans events out to several sinks, collecting errors.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, src *store.Source, events []*store.Event) error {
	var errs []string
	for _, sink := range m {
		if err := sink.Notify(ctx, src, events); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %s", strings.Join(errs, "; "))
	}
	return nil
}
