// CLAUDE:SUMMARY Feed strategy: RSS/Atom product feeds via gofeed, Google Merchant g: extensions.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/hazyhaar/torref/veille/internal/store"
)

// FeedStrategy reads product feeds (RSS/Atom, including Google Merchant
// style feeds with g:price / g:availability extensions). Some shops expose
// these even when their HTML is JS-rendered, which keeps such sources
// watchable without a browser.
type FeedStrategy struct{}

// Extract implements Strategy.
func (s *FeedStrategy) Extract(src *store.Source, body []byte) ([]RawItem, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("feed: parse: %w", err)
	}
	if len(parsed.Items) == 0 {
		return nil, errNoItems("feed")
	}

	items := make([]RawItem, 0, len(parsed.Items))
	for _, fi := range parsed.Items {
		title := strings.TrimSpace(fi.Title)
		if title == "" {
			continue
		}
		item := RawItem{
			Title:     title,
			URL:       strings.TrimSpace(fi.Link),
			PriceText: feedExt(fi, "price"),
			Stock:     feedAvailability(feedExt(fi, "availability")),
		}
		if fi.Description != "" {
			item.Attrs = map[string]string{"description": fi.Description}
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, errNoItems("feed")
	}
	return items, nil
}

// feedExt reads a Google Merchant "g:" extension value from a feed item.
func feedExt(fi *gofeed.Item, name string) string {
	for _, ns := range []string{"g", "goog"} {
		if exts, ok := fi.Extensions[ns]; ok {
			for _, e := range exts[name] {
				if v := strings.TrimSpace(e.Value); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

func feedAvailability(v string) StockHint {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return StockUnknown
	case "in stock", "in_stock", "preorder", "backorder":
		return StockAvailable
	case "out of stock", "out_of_stock", "sold out":
		return StockUnavailable
	default:
		return StockUnknown
	}
}
