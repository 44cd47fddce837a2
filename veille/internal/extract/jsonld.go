// CLAUDE:SUMMARY JSON-LD strategy: schema.org Product/ItemList parsing from ld+json script blocks.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/torref/veille/internal/store"
)

// JSONLDStrategy reads schema.org structured data out of
// <script type="application/ld+json"> blocks. Storefronts that publish
// Product or ItemList markup need no per-site selectors at all.
type JSONLDStrategy struct{}

// Extract implements Strategy.
func (s *JSONLDStrategy) Extract(src *store.Source, body []byte) ([]RawItem, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("jsonld: parse html: %w", err)
	}

	var items []RawItem
	for _, block := range ldScripts(doc) {
		var root any
		if err := json.Unmarshal([]byte(block), &root); err != nil {
			// Broken blocks are common; keep scanning the rest.
			continue
		}
		collectLD(root, &items)
	}

	if len(items) == 0 {
		return nil, errNoItems("jsonld")
	}
	return items, nil
}

// ldScripts returns the text content of every ld+json script node.
func ldScripts(doc *html.Node) []string {
	var blocks []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Script {
			for _, a := range n.Attr {
				if a.Key == "type" && strings.EqualFold(strings.TrimSpace(a.Val), "application/ld+json") {
					if n.FirstChild != nil {
						blocks = append(blocks, n.FirstChild.Data)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return blocks
}

// collectLD walks a decoded JSON-LD value gathering Product nodes. Handles
// top-level arrays, @graph containers, and ItemList wrappers.
func collectLD(v any, out *[]RawItem) {
	switch node := v.(type) {
	case []any:
		for _, el := range node {
			collectLD(el, out)
		}
	case map[string]any:
		switch ldType(node) {
		case "product":
			if item, ok := productToRaw(node); ok {
				*out = append(*out, item)
			}
		case "itemlist":
			if els, ok := node["itemListElement"].([]any); ok {
				for _, el := range els {
					collectLD(el, out)
				}
			}
		case "listitem":
			if inner, ok := node["item"].(map[string]any); ok {
				collectLD(inner, out)
			}
		default:
			if graph, ok := node["@graph"].([]any); ok {
				collectLD(graph, out)
			}
		}
	}
}

func ldType(node map[string]any) string {
	switch t := node["@type"].(type) {
	case string:
		return strings.ToLower(t)
	case []any:
		for _, el := range t {
			if s, ok := el.(string); ok && strings.EqualFold(s, "Product") {
				return "product"
			}
		}
	}
	return ""
}

func productToRaw(node map[string]any) (RawItem, bool) {
	item := RawItem{
		Title: ldString(node, "name"),
		URL:   ldString(node, "url"),
	}
	if item.Title == "" {
		return item, false
	}

	attrs := map[string]string{}
	if d := ldString(node, "description"); d != "" {
		attrs["description"] = d
	}
	if b, ok := node["brand"].(map[string]any); ok {
		if name := ldString(b, "name"); name != "" {
			attrs["brand"] = name
		}
	}
	if sku := ldString(node, "sku"); sku != "" {
		attrs["sku"] = sku
	}
	if len(attrs) > 0 {
		item.Attrs = attrs
	}

	offer := firstOffer(node["offers"])
	if offer != nil {
		switch p := offer["price"].(type) {
		case string:
			item.PriceText = p
		case float64:
			item.PriceText = fmt.Sprintf("%.2f", p)
		}
		if item.PriceText == "" {
			item.PriceText = ldString(offer, "lowPrice")
		}
		item.Stock = availabilityHint(ldString(offer, "availability"))
		if u := ldString(offer, "url"); u != "" && item.URL == "" {
			item.URL = u
		}
	}
	return item, true
}

// firstOffer accepts an Offer object, an array of offers, or nil.
func firstOffer(v any) map[string]any {
	switch o := v.(type) {
	case map[string]any:
		return o
	case []any:
		for _, el := range o {
			if m, ok := el.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

// availabilityHint maps schema.org availability URIs onto StockHint.
func availabilityHint(v string) StockHint {
	v = strings.ToLower(v)
	switch {
	case v == "":
		return StockUnknown
	case strings.Contains(v, "outofstock"), strings.Contains(v, "soldout"),
		strings.Contains(v, "discontinued"):
		return StockUnavailable
	case strings.Contains(v, "instock"), strings.Contains(v, "preorder"),
		strings.Contains(v, "limitedavailability"):
		return StockAvailable
	default:
		return StockUnknown
	}
}

func ldString(node map[string]any, key string) string {
	if s, ok := node[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
