// CLAUDE:SUMMARY Chat-completions summarizer client with defensive JSON-in-prose response extraction.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/torref/veille/internal/store"
)

// ClientConfig configures the external summarizer boundary.
type ClientConfig struct {
	Endpoint    string // e.g. "http://localhost:8001"
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
	Timeout     time.Duration
}

func (c *ClientConfig) defaults() {
	if c.Temperature <= 0 {
		c.Temperature = 0.4
	}
	if c.TopP <= 0 {
		c.TopP = 0.9
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 512
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
}

// Request is what the manager hands the summarizer for one item.
type Request struct {
	ItemKey     string
	Title       string
	SourceLabel string // roaster / shop name
	PriceCents  *int64
	Notes       string // free-text description, markdown or plain
	Attrs       map[string]string
}

// Summarizer produces a structured summary for one item. Implemented by
// Client; replaced by a stub in tests.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (*store.Summary, error)
}

// Client talks to an OpenAI-style /v1/chat/completions endpoint. This
// format covers vLLM, Ollama, llama.cpp server, and OpenAI itself.
type Client struct {
	config ClientConfig
	http   *http.Client
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig) *Client {
	cfg.defaults()
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

const systemPrompt = `You describe specialty coffee shop listings. Respond with a single JSON object:
{"short_title": "...", "summary": "...", "producer": "...", "origin": "...",
"elevation": "...", "process": "...", "tasting_notes": ["..."]}
Keep the summary under 60 words. Omit fields you cannot infer. No other text.`

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Summarize implements Summarizer.
func (c *Client) Summarize(ctx context.Context, req Request) (*store.Summary, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Temperature: c.config.Temperature,
		TopP:        c.config.TopP,
		MaxTokens:   c.config.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(req)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(c.config.Endpoint, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, url, string(respBody))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("no choices from %s", url)
	}

	return parseSummary(chat.Choices[0].Message.Content, c.config.Model)
}

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product: %s\n", req.Title)
	if req.SourceLabel != "" {
		fmt.Fprintf(&b, "Roaster/shop: %s\n", req.SourceLabel)
	}
	if req.PriceCents != nil {
		fmt.Fprintf(&b, "Price (minor units): %d\n", *req.PriceCents)
	}
	for k, v := range req.Attrs {
		if k == "description" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}
	if req.Notes != "" {
		fmt.Fprintf(&b, "Listing notes:\n%s\n", req.Notes)
	}
	return b.String()
}

// parseSummary extracts the structured payload from the model output. The
// payload may be buried in surrounding prose or a code fence; we locate the
// outermost balanced brace pair instead of assuming clean JSON.
func parseSummary(content, model string) (*store.Summary, error) {
	payload, err := extractJSON(content)
	if err != nil {
		return nil, err
	}
	var sum store.Summary
	if err := json.Unmarshal([]byte(payload), &sum); err != nil {
		return nil, fmt.Errorf("unmarshal summary payload: %w", err)
	}
	if sum.Text == "" && sum.ShortTitle == "" {
		return nil, fmt.Errorf("summary payload empty")
	}
	sum.Model = model
	return &sum, nil
}

// extractJSON returns the outermost balanced {...} in s, tracking string
// literals and escapes so braces inside values don't break the count.
func extractJSON(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], nil
				}
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in response")
}
