// CLAUDE:SUMMARY Stable item identity keys, tolerant price parsing, and extracted-text cleanup.
// Package normalize turns raw extractor output into canonical fields so the
// same physical product maps to the same key across polls.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	spaceRe = regexp.MustCompile(`\s+`)
	// Matches the first decimal amount in a price string: "€14,50",
	// "$18.00 USD", "ab 9,90 €", "14.500". Group 1 is the number.
	priceRe = regexp.MustCompile(`(\d{1,6}(?:[.,]\d{1,3})?)`)

	stripTags = bluemonday.StrictPolicy()
)

// StableKey derives the content identity for an item from its title and
// URL. The title is lowercased with whitespace collapsed; only the URL path
// contributes (query strings churn with tracking parameters). The key must
// stay identical across runs even when the extractor returns inconsistent
// capitalization or spacing.
func StableKey(title, rawURL string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	t = spaceRe.ReplaceAllString(t, " ")

	path := ""
	if u, err := url.Parse(strings.TrimSpace(rawURL)); err == nil {
		path = strings.TrimRight(strings.ToLower(u.Path), "/")
	}

	h := sha256.Sum256([]byte(t + "\x00" + path))
	return hex.EncodeToString(h[:16])
}

// ParsePriceCents extracts a decimal amount from free-form price text and
// converts it to integer minor-currency units. Unparsable text yields nil,
// not an error: a missing price is a fact, not a failure.
func ParsePriceCents(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	m := priceRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	num := m[1]

	// A comma decimal separator ("14,50") normalizes to a dot. A comma or
	// dot followed by exactly three digits is a thousands separator.
	if i := strings.LastIndexAny(num, ".,"); i >= 0 {
		intPart, frac := num[:i], num[i+1:]
		if len(frac) == 3 {
			num = intPart + frac
		} else {
			num = intPart + "." + frac
		}
	}

	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return nil
	}
	v := int64(f*100 + 0.5)
	return &v
}

// CleanText strips any markup and collapses whitespace. Applied to titles
// and attribute values before they reach the store or the summarizer.
func CleanText(s string) string {
	s = stripTags.Sanitize(s)
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&#39;", "'")
	s = strings.ReplaceAll(s, "&#34;", `"`)
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// CleanAttrs returns a copy of attrs with cleaned keys and values; empty
// values are dropped.
func CleanAttrs(attrs map[string]string) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		k = strings.ToLower(CleanText(k))
		v = CleanText(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
