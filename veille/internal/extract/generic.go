// CLAUDE:SUMMARY Generic fallback strategy: heuristic product-card detection over common storefront markup.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/torref/veille/internal/store"
)

// cardSelectors are tried in order; the first selector yielding more than
// one match is taken as the product-card pattern of the page.
var cardSelectors = []string{
	"[data-product-id]",
	".product-card", ".product-item", ".grid-product", ".product",
	"li.grid__item", "article.card", ".collection-item",
}

var soldOutMarkers = []string{"sold out", "sold-out", "out of stock", "ausverkauft", "épuisé", "unavailable"}

// GenericStrategy is the site-agnostic fallback. It guesses product cards
// from common storefront markup; wrong guesses cost accuracy, not
// correctness, and the core treats its output like any other strategy's.
type GenericStrategy struct{}

// Extract implements Strategy.
func (s *GenericStrategy) Extract(src *store.Source, body []byte) ([]RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("generic: parse html: %w", err)
	}

	base, _ := url.Parse(src.URL)

	var cards *goquery.Selection
	for _, sel := range cardSelectors {
		found := doc.Find(sel)
		if found.Length() > 1 {
			cards = found
			break
		}
	}
	if cards == nil {
		return nil, errNoItems("generic")
	}

	var items []RawItem
	cards.Each(func(_ int, card *goquery.Selection) {
		item := RawItem{Title: cardTitle(card)}
		if item.Title == "" {
			return
		}
		if href, ok := card.Find("a[href]").First().Attr("href"); ok {
			item.URL = resolveHref(base, href)
		}
		item.PriceText = cardPrice(card)
		item.Stock = cardStock(card)
		items = append(items, item)
	})

	if len(items) == 0 {
		return nil, errNoItems("generic")
	}
	return items, nil
}

func cardTitle(card *goquery.Selection) string {
	for _, sel := range []string{"h2", "h3", ".title", ".product-title", ".card__heading", "a"} {
		if t := strings.TrimSpace(card.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

func cardPrice(card *goquery.Selection) string {
	var price string
	card.Find("[class*=price]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		// Skip struck-through compare-at prices.
		if cls, _ := sel.Attr("class"); strings.Contains(cls, "compare") || strings.Contains(cls, "was") {
			return true
		}
		if t := strings.TrimSpace(sel.Text()); t != "" {
			price = t
			return false
		}
		return true
	})
	return price
}

func cardStock(card *goquery.Selection) StockHint {
	haystack := strings.ToLower(card.Text())
	if cls, ok := card.Attr("class"); ok {
		haystack += " " + strings.ToLower(cls)
	}
	for _, marker := range soldOutMarkers {
		if strings.Contains(haystack, marker) {
			return StockUnavailable
		}
	}
	return StockUnknown
}
