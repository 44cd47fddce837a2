// CLAUDE:SUMMARY Poll loop: due-source selection with jitter and exponential backoff, one source at a time.
// Package scheduler decides which source to poll next and drives the
// cycle runner. One source runs to completion before the next is
// considered; there is never more than one in-flight request per host.
package scheduler

import (
	"context"
	"hash/fnv"
	"log/slog"
	"math"
	"time"

	"github.com/hazyhaar/torref/veille/internal/store"
)

// Runner executes one poll cycle for a source. Errors are already
// classified and recorded by the time it returns; the scheduler only logs.
type Runner func(ctx context.Context, src *store.Source) error

// Config configures the scheduler.
type Config struct {
	// CheckInterval is how often the due-source scan runs. Default: 30s.
	CheckInterval time.Duration
	// JitterFraction spreads polls by ±fraction of the interval so
	// sources sharing an interval don't fire in lockstep. Default: 0.1.
	JitterFraction float64
	// BackoffFactor multiplies the interval per consecutive failure.
	// Default: 2.0.
	BackoffFactor float64
	// BackoffCeiling caps the backoff multiplier. Default: 16.
	BackoffCeiling float64
}

func (c *Config) defaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = 0.1
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = 2.0
	}
	if c.BackoffCeiling <= 1 {
		c.BackoffCeiling = 16
	}
}

// Scheduler periodically scans for due sources and runs cycles.
type Scheduler struct {
	store  *store.Store
	run    Runner
	config Config
	logger *slog.Logger
}

// New creates a Scheduler.
func New(st *store.Store, run Runner, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{store: st, run: run, config: cfg, logger: logger}
}

// Run scans on a ticker until ctx is cancelled. The first scan fires
// immediately on start.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	s.pollDue(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollDue(ctx)
		}
	}
}

// pollDue runs one cycle for every due source, sequentially. A failing
// source never prevents the remaining sources from polling.
func (s *Scheduler) pollDue(ctx context.Context) {
	sources, err := s.store.ListEnabledSources(ctx)
	if err != nil {
		s.logger.Error("scheduler: list sources", "error", err)
		return
	}

	now := time.Now().UnixMilli()
	for _, src := range sources {
		if ctx.Err() != nil {
			return
		}
		if !s.due(src, now) {
			continue
		}
		if err := s.run(ctx, src); err != nil {
			s.logger.Warn("scheduler: cycle failed", "source_id", src.ID, "name", src.Name, "error", err)
		}
	}
}

// due reports whether a source should poll now. Never-polled sources are
// always due. Otherwise due ⇔ now - lastPolled >= effective interval,
// where the effective interval carries backoff and jitter.
func (s *Scheduler) due(src *store.Source, nowMs int64) bool {
	if src.LastPolledAt == nil {
		return true
	}
	return nowMs-*src.LastPolledAt >= s.EffectiveInterval(src)
}

// EffectiveInterval returns the source's configured interval scaled by
// exponential backoff (factor^failCount, capped at the ceiling) and a
// deterministic per-round jitter of ±JitterFraction. After a success
// resets fail_count, the interval decays back to the configured value.
func (s *Scheduler) EffectiveInterval(src *store.Source) int64 {
	interval := float64(src.FetchInterval)

	if src.FailCount > 0 {
		mult := math.Pow(s.config.BackoffFactor, float64(src.FailCount))
		if mult > s.config.BackoffCeiling {
			mult = s.config.BackoffCeiling
		}
		interval *= mult
	}

	interval *= 1 + s.config.JitterFraction*jitterUnit(src)
	return int64(interval)
}

// jitterUnit maps a source's identity and poll round onto [-1, 1],
// deterministically: the same (source, lastPolled) pair always jitters the
// same way, so due-ness is stable within a round and tests stay exact.
func jitterUnit(src *store.Source) float64 {
	h := fnv.New64a()
	h.Write([]byte(src.ID))
	if src.LastPolledAt != nil {
		var buf [8]byte
		v := uint64(*src.LastPolledAt)
		for i := range buf {
			buf[i] = byte(v >> (8 * i))
		}
		h.Write(buf[:])
	}
	return float64(h.Sum64()%2001)/1000 - 1
}
