// CLAUDE:SUMMARY CSS strategy: per-site selector sets from source config, evaluated with goquery.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/torref/veille/internal/store"
)

// CSSConfig is the selector set a source carries in config_json. Item is
// the repeating product-card selector; the rest are evaluated relative to
// each card. SoldOut marks a card unavailable when it matches anything.
type CSSConfig struct {
	Item    string            `json:"item"`
	Title   string            `json:"title"`
	URL     string            `json:"url"`
	Price   string            `json:"price"`
	SoldOut string            `json:"sold_out"`
	Attrs   map[string]string `json:"attrs"`
}

// CSSStrategy extracts items using per-site selectors. This is the
// pluggable per-storefront path: site knowledge lives in source config,
// never in code.
type CSSStrategy struct{}

// Extract implements Strategy.
func (s *CSSStrategy) Extract(src *store.Source, body []byte) ([]RawItem, error) {
	var cfg CSSConfig
	if err := json.Unmarshal([]byte(src.ConfigJSON), &cfg); err != nil {
		return nil, fmt.Errorf("css: bad selector config: %w", err)
	}
	if cfg.Item == "" || cfg.Title == "" {
		return nil, fmt.Errorf("css: config requires item and title selectors")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("css: parse html: %w", err)
	}

	base, _ := url.Parse(src.URL)

	var items []RawItem
	doc.Find(cfg.Item).Each(func(_ int, card *goquery.Selection) {
		title := strings.TrimSpace(card.Find(cfg.Title).First().Text())
		if title == "" {
			return
		}
		item := RawItem{Title: title}

		linkSel := cfg.URL
		if linkSel == "" {
			linkSel = "a"
		}
		if href, ok := card.Find(linkSel).First().Attr("href"); ok {
			item.URL = resolveHref(base, href)
		}

		if cfg.Price != "" {
			item.PriceText = strings.TrimSpace(card.Find(cfg.Price).First().Text())
		}
		if cfg.SoldOut != "" && card.Find(cfg.SoldOut).Length() > 0 {
			item.Stock = StockUnavailable
		} else {
			item.Stock = StockAvailable
		}

		if len(cfg.Attrs) > 0 {
			attrs := make(map[string]string, len(cfg.Attrs))
			for name, sel := range cfg.Attrs {
				if v := strings.TrimSpace(card.Find(sel).First().Text()); v != "" {
					attrs[name] = v
				}
			}
			if len(attrs) > 0 {
				item.Attrs = attrs
			}
		}

		items = append(items, item)
	})

	if len(items) == 0 {
		return nil, errNoItems("css")
	}
	return items, nil
}

// resolveHref makes a card link absolute against the listing page URL.
func resolveHref(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if base == nil || href == "" {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
