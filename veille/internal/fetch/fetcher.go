// CLAUDE:SUMMARY HTTP fetcher with per-host minimum request spacing via keyed rate limiters.
// Package fetch retrieves catalog pages over HTTP, enforcing a minimum
// delay between requests to the same host. The host→limiter map is the
// only shared mutable state across concurrent fetches; each Fetcher owns
// its own map so tests can run instances without cross-contamination.
package fetch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Result contains the outcome of a fetch.
type Result struct {
	Body       []byte
	StatusCode int
	Hash       string // SHA-256 of body
}

// Config configures the fetcher.
type Config struct {
	// MinHostDelay is the minimum interval between two requests to the
	// same host. Default: 1400ms.
	MinHostDelay time.Duration
	// Timeout is the per-request HTTP timeout. Default: 30s.
	Timeout time.Duration
	// MaxBytes caps the response body size. Default: 10MB.
	MaxBytes int64
	// UserAgent sent with requests.
	UserAgent string
	// URLValidator validates URLs before fetch and on redirect.
	URLValidator func(string) error
}

func (c *Config) defaults() {
	if c.MinHostDelay <= 0 {
		c.MinHostDelay = 1400 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "torref/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = func(string) error { return nil }
	}
}

// Fetcher performs rate-limited HTTP GETs. Safe for concurrent use.
type Fetcher struct {
	client *http.Client
	config Config

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	validate := cfg.URLValidator
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		config:   cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiter returns the rate limiter for a host, creating it on first use.
// Read-then-write on the map is atomic relative to concurrent callers.
func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(f.config.MinHostDelay), 1)
		f.limiters[host] = l
	}
	return l
}

// Fetch retrieves a URL, waiting out the per-host spacing first. The wait
// honors ctx cancellation. Non-2xx status, timeout, and transport errors
// all return an error; retrying is the caller's decision.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	if err := f.config.URLValidator(rawURL); err != nil {
		return nil, fmt.Errorf("URL blocked: %w", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}

	if err := f.limiter(u.Host).Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Result{StatusCode: resp.StatusCode}, fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	h := sha256.Sum256(body)
	return &Result{
		Body:       body,
		StatusCode: resp.StatusCode,
		Hash:       fmt.Sprintf("%x", h),
	}, nil
}
