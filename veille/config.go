// CLAUDE:SUMMARY Service configuration: YAML file shape, defaults, component-config accessors.
package veille

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/torref/veille/internal/fetch"
	"github.com/hazyhaar/torref/veille/internal/scheduler"
	"github.com/hazyhaar/torref/veille/internal/store"
	"github.com/hazyhaar/torref/veille/internal/summary"
)

// SourceConfig declares one watched catalog page. Config is passed through
// to the extractor strategy as config_json (e.g. the css selector set).
type SourceConfig struct {
	Name      string         `yaml:"name"`
	URL       string         `yaml:"url"`
	Extractor string         `yaml:"extractor"`
	Interval  string         `yaml:"interval"` // Go duration, e.g. "30m"
	Enabled   *bool          `yaml:"enabled"`  // nil = enabled
	Config    map[string]any `yaml:"config"`
}

// IntervalDuration resolves the poll interval, defaulting to one hour.
func (s *SourceConfig) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(s.Interval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// TelegramConfig configures the optional Telegram event sink.
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// SummarizerConfig is the YAML shape of the summarizer policy.
type SummarizerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs"`
	MaxPerRun   int     `yaml:"max_per_run"`
}

// Config is the torref service configuration file.
type Config struct {
	// DBPath is the SQLite database location.
	DBPath string `yaml:"db_path"`
	// Listen is the HTTP API address. Default: 127.0.0.1:8091.
	Listen string `yaml:"listen"`

	// Network policy
	MinHostDelayMs  int    `yaml:"min_host_delay_ms"`
	FetchTimeoutSec int    `yaml:"fetch_timeout_secs"`
	UserAgent       string `yaml:"user_agent"`

	// Scheduler policy
	CheckIntervalSec int     `yaml:"check_interval_secs"`
	JitterFraction   float64 `yaml:"jitter_fraction"`
	BackoffFactor    float64 `yaml:"backoff_factor"`
	BackoffCeiling   float64 `yaml:"backoff_ceiling"`

	// MissingIsOutOfStock treats items that vanished from a listing as
	// stock-outs. Off by default: absence is unknown, not a transition.
	MissingIsOutOfStock bool `yaml:"missing_is_out_of_stock"`

	Retention store.RetentionPolicy `yaml:"retention"`
	// PruneSchedule is a cron expression for the retention job,
	// independent of polling. Default: hourly.
	PruneSchedule string `yaml:"prune_schedule"`

	Summarizer SummarizerConfig `yaml:"summarizer"`
	Telegram   TelegramConfig   `yaml:"telegram"`

	Sources []SourceConfig `yaml:"sources"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "data/torref.db"
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8091"
	}
	if c.PruneSchedule == "" {
		c.PruneSchedule = "@hourly"
	}
	if c.Retention.ItemsPerSource == 0 {
		c.Retention.ItemsPerSource = 500
	}
	if c.Retention.EventsPerSource == 0 {
		c.Retention.EventsPerSource = 1000
	}
	if c.Retention.MaxAgeDays == 0 {
		c.Retention.MaxAgeDays = 90
	}
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

// FetchConfig builds the fetcher configuration.
func (c *Config) FetchConfig() fetch.Config {
	return fetch.Config{
		MinHostDelay: time.Duration(c.MinHostDelayMs) * time.Millisecond,
		Timeout:      time.Duration(c.FetchTimeoutSec) * time.Second,
		UserAgent:    c.UserAgent,
	}
}

// SchedulerConfig builds the scheduler configuration.
func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		CheckInterval:  time.Duration(c.CheckIntervalSec) * time.Second,
		JitterFraction: c.JitterFraction,
		BackoffFactor:  c.BackoffFactor,
		BackoffCeiling: c.BackoffCeiling,
	}
}

// SummaryConfig builds the summary manager configuration.
func (c *Config) SummaryConfig() summary.Config {
	return summary.Config{
		Enabled:   c.Summarizer.Enabled,
		MaxPerRun: c.Summarizer.MaxPerRun,
		Client: summary.ClientConfig{
			Endpoint:    c.Summarizer.Endpoint,
			Model:       c.Summarizer.Model,
			Temperature: c.Summarizer.Temperature,
			TopP:        c.Summarizer.TopP,
			MaxTokens:   c.Summarizer.MaxTokens,
			Timeout:     time.Duration(c.Summarizer.TimeoutSecs) * time.Second,
		},
	}
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.defaults()
	return &cfg, nil
}
