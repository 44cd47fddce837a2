// CLAUDE:SUMMARY One poll cycle: fetch → extract → normalize → diff → commit → summarize → notify.
package veille

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/torref/veille/internal/diff"
	"github.com/hazyhaar/torref/veille/internal/extract"
	"github.com/hazyhaar/torref/veille/internal/normalize"
	"github.com/hazyhaar/torref/veille/internal/store"
)

// RunCycle polls one source once. The snapshot and its events commit in a
// single transaction; summaries and sink delivery run after the commit and
// can only degrade enrichment, never detection. A failed cycle leaves the
// previous snapshot untouched.
func (svc *Service) RunCycle(ctx context.Context, src *store.Source) error {
	start := time.Now()

	res, err := svc.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		code := 0
		if res != nil {
			code = res.StatusCode
		}
		svc.recordFailure(ctx, src, "error", code, err, start)
		return fmt.Errorf("%w: fetch %s: %v", ErrNetwork, src.URL, err)
	}

	raws, err := svc.registry.Resolve(src.Extractor).Extract(src, res.Body)
	if err != nil {
		svc.recordFailure(ctx, src, "extract_error", res.StatusCode, err, start)
		return fmt.Errorf("%w: %s: %v", ErrExtraction, src.Extractor, err)
	}

	items := normalizeItems(src, raws)

	previous, err := svc.store.GetItems(ctx, src.ID)
	if err != nil {
		return fmt.Errorf("%w: load snapshot: %v", ErrPersistence, err)
	}

	events := diff.Detect(previous, items, diff.Options{
		MissingIsOutOfStock: svc.config.MissingIsOutOfStock,
	})
	for _, ev := range events {
		ev.ID = svc.newEventID()
	}

	// Don't commit a snapshot built from a cancelled fetch round.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := svc.store.ApplyCycle(ctx, src.ID, items, events); err != nil {
		return fmt.Errorf("%w: commit cycle: %v", ErrPersistence, err)
	}

	status := "ok"
	if len(items) == 0 {
		status = "empty"
	}
	svc.fetchLog(ctx, src, status, res.StatusCode, "", len(items), start)

	// Carry cached summaries onto the fresh snapshot so the manager can
	// fingerprint-match instead of re-summarizing unchanged items.
	prevByKey := make(map[string]*store.Item, len(previous))
	for _, it := range previous {
		prevByKey[it.Key] = it
	}
	for _, it := range items {
		if old, ok := prevByKey[it.Key]; ok && it.Summary == nil {
			it.Summary = old.Summary
		}
	}
	summarized := svc.summaries.Process(ctx, src, items)

	if len(events) > 0 {
		if err := svc.sinks.Notify(ctx, src, events); err != nil {
			svc.logger.Warn("sink delivery failed", "source_id", src.ID, "error", err)
		}
	}

	svc.logger.Info("cycle complete",
		"source_id", src.ID,
		"url", src.URL,
		"items", len(items),
		"events", len(events),
		"summarized", summarized,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// normalizeItems turns raw extractor output into the canonical snapshot:
// cleaned titles, stable keys, minor-unit prices. Duplicate keys within one
// page keep the first occurrence.
func normalizeItems(src *store.Source, raws []extract.RawItem) []*store.Item {
	now := time.Now().UnixMilli()
	items := make([]*store.Item, 0, len(raws))
	seen := make(map[string]bool, len(raws))

	for i := range raws {
		raw := &raws[i]
		title := normalize.CleanText(raw.Title)
		if title == "" {
			continue
		}
		key := normalize.StableKey(title, raw.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		items = append(items, &store.Item{
			SourceID:   src.ID,
			Key:        key,
			Title:      title,
			URL:        raw.URL,
			PriceCents: normalize.ParsePriceCents(raw.PriceText),
			InStock:    raw.InStock(),
			LastSeenAt: now,
			Attrs:      normalize.CleanAttrs(raw.Attrs),
		})
	}
	return items
}

// recordFailure logs the attempt and bumps the source's failure state so
// the scheduler backs off.
func (svc *Service) recordFailure(ctx context.Context, src *store.Source, status string, code int, cause error, start time.Time) {
	svc.fetchLog(ctx, src, status, code, cause.Error(), 0, start)
	if err := svc.store.RecordPollError(ctx, src.ID, cause.Error()); err != nil {
		svc.logger.Error("record poll error", "source_id", src.ID, "error", err)
	}
}

// fetchLog appends to the observability log; best-effort.
func (svc *Service) fetchLog(ctx context.Context, src *store.Source, status string, code int, msg string, count int, start time.Time) {
	entry := &store.FetchLogEntry{
		ID:           svc.newLogID(),
		SourceID:     src.ID,
		Status:       status,
		StatusCode:   code,
		ErrorMessage: msg,
		DurationMs:   time.Since(start).Milliseconds(),
		ItemCount:    count,
		FetchedAt:    start.UnixMilli(),
	}
	if err := svc.store.InsertFetchLog(ctx, entry); err != nil {
		svc.logger.Warn("fetch log write failed", "source_id", src.ID, "error", err)
	}
}
