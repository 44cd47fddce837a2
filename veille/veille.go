// CLAUDE:SUMMARY Main Service orchestrator: store lifecycle, source management, scheduler, prune cron, sinks.
package veille

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/hazyhaar/torref/idgen"
	"github.com/hazyhaar/torref/urlsafe"
	"github.com/hazyhaar/torref/veille/internal/extract"
	"github.com/hazyhaar/torref/veille/internal/fetch"
	"github.com/hazyhaar/torref/veille/internal/scheduler"
	"github.com/hazyhaar/torref/veille/internal/store"
	"github.com/hazyhaar/torref/veille/internal/summary"
	"github.com/hazyhaar/torref/veille/notify"
)

// MinFetchInterval is the floor for per-source poll intervals (5 minutes).
// Catalog pages change on the scale of hours; anything faster is abuse.
const MinFetchInterval int64 = 5 * 60 * 1000

// Service is the torref orchestrator: it owns the store, the fetcher, the
// extractor registry, the summary cache and the event sinks, and drives
// them from the scheduler.
type Service struct {
	store        *store.Store
	fetcher      *fetch.Fetcher
	registry     *extract.Registry
	summaries    *summary.Manager
	scheduler    *scheduler.Scheduler
	cron         *cron.Cron
	sinks        notify.Multi
	logger       *slog.Logger
	config       *Config
	newID        func() string
	newEventID   func() string
	newLogID     func() string
	urlValidator func(string) error
	summarizer   summary.Summarizer
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithURLValidator overrides URL validation (default: urlsafe.ValidateURL).
// Use in tests with httptest servers that listen on loopback addresses.
func WithURLValidator(fn func(string) error) ServiceOption {
	return func(svc *Service) { svc.urlValidator = fn }
}

// WithSink adds an event sink alongside the default log sink.
func WithSink(s notify.Sink) ServiceOption {
	return func(svc *Service) { svc.sinks = append(svc.sinks, s) }
}

// WithSummarizer replaces the HTTP summarizer client.
func WithSummarizer(s summary.Summarizer) ServiceOption {
	return func(svc *Service) { svc.summarizer = s }
}

// WithIDGenerator replaces the default UUIDv7 generator.
func WithIDGenerator(gen idgen.Generator) ServiceOption {
	return func(svc *Service) {
		svc.newID = gen
		svc.newEventID = idgen.Prefixed("evt_", gen)
		svc.newLogID = idgen.Prefixed("log_", gen)
	}
}

// New creates a torref Service on an opened store.
func New(st *store.Store, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = defaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	svc := &Service{
		store:        st,
		registry:     extract.NewRegistry(),
		logger:       logger,
		config:       cfg,
		newID:        idgen.New,
		newEventID:   idgen.Prefixed("evt_", idgen.Default),
		newLogID:     idgen.Prefixed("log_", idgen.NanoID(12)),
		urlValidator: urlsafe.ValidateURL,
		sinks:        notify.Multi{&notify.LogSink{Logger: logger}},
	}
	for _, opt := range opts {
		opt(svc)
	}

	fetchCfg := cfg.FetchConfig()
	fetchCfg.URLValidator = svc.urlValidator
	svc.fetcher = fetch.New(fetchCfg)

	if svc.summarizer == nil {
		svc.summarizer = summary.NewClient(cfg.SummaryConfig().Client)
	}
	svc.summaries = summary.NewManager(svc.summarizer, st, cfg.SummaryConfig(), logger)

	svc.scheduler = scheduler.New(st, svc.RunCycle, cfg.SchedulerConfig(), logger)

	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegramSink(cfg.Telegram.Token, cfg.Telegram.ChatID, st.GetItem)
		if err != nil {
			return nil, fmt.Errorf("telegram sink: %w", err)
		}
		svc.sinks = append(svc.sinks, tg)
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.PruneSchedule, func() {
		if err := st.Prune(context.Background(), cfg.Retention); err != nil {
			logger.Error("prune failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("prune schedule %q: %w", cfg.PruneSchedule, err)
	}
	svc.cron = c

	return svc, nil
}

// Start launches the background scheduler and the prune cron. Non-blocking;
// cancel ctx to stop polling, then Close.
func (svc *Service) Start(ctx context.Context) {
	go svc.scheduler.Run(ctx)
	svc.cron.Start()
	svc.logger.Info("torref: started", "sources_config", len(svc.config.Sources))
}

// Close stops the prune cron and closes the store.
func (svc *Service) Close() error {
	if svc.cron != nil {
		<-svc.cron.Stop().Done()
	}
	svc.logger.Info("torref: closed")
	return svc.store.Close()
}

// Store exposes the underlying store for read paths (CLI, HTTP handlers).
func (svc *Service) Store() *store.Store {
	return svc.store
}

// Extractors lists the registered extractor strategy tags.
func (svc *Service) Extractors() []string {
	return svc.registry.Tags()
}

// --- Sources ---

// validateSource checks a source declaration before it touches the store.
func (svc *Service) validateSource(src *store.Source) error {
	if strings.TrimSpace(src.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	if strings.TrimSpace(src.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if src.FetchInterval < MinFetchInterval {
		return fmt.Errorf("%w: fetch_interval below %dms minimum", ErrInvalidInput, MinFetchInterval)
	}
	if src.Extractor != "" && !svc.registry.Known(src.Extractor) {
		return fmt.Errorf("%w: unknown extractor %q", ErrInvalidInput, src.Extractor)
	}
	return svc.urlValidator(src.URL)
}

// normalizeSourceURL canonicalizes a source URL for dedup: lowercased
// scheme and host, no fragment, no trailing slash on a bare path.
func normalizeSourceURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	if u.Path == "/" {
		u.Path = ""
	}
	return u.String(), nil
}

// AddSource registers a new catalog page to watch.
func (svc *Service) AddSource(ctx context.Context, src *store.Source) error {
	if src.ID == "" {
		src.ID = svc.newID()
	}
	if src.Extractor == "" {
		src.Extractor = "generic"
	}
	if src.FetchInterval == 0 {
		src.FetchInterval = 3600000
	}
	if err := svc.validateSource(src); err != nil {
		return err
	}
	normalized, err := normalizeSourceURL(src.URL)
	if err != nil {
		return err
	}
	src.URL = normalized

	existing, err := svc.store.GetSourceByURL(ctx, src.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateSource, src.URL)
	}
	if err := svc.store.InsertSource(ctx, src); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	svc.logger.Info("source added", "source_id", src.ID, "url", src.URL, "extractor", src.Extractor)
	return nil
}

// ListSources returns all registered sources.
func (svc *Service) ListSources(ctx context.Context) ([]*store.Source, error) {
	return svc.store.ListSources(ctx)
}

// DeleteSource removes a source with its items and events.
func (svc *Service) DeleteSource(ctx context.Context, id string) error {
	if err := svc.store.DeleteSource(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	svc.logger.Info("source deleted", "source_id", id)
	return nil
}

// SyncSources upserts the sources declared in the config file. Called at
// startup so a config edit plus restart is the whole provisioning story.
// Sources added through the API are left alone.
func (svc *Service) SyncSources(ctx context.Context) error {
	for i := range svc.config.Sources {
		sc := &svc.config.Sources[i]
		normalized, err := normalizeSourceURL(sc.URL)
		if err != nil {
			return fmt.Errorf("source %q: %w", sc.Name, err)
		}
		enabled := sc.Enabled == nil || *sc.Enabled
		src := &store.Source{
			ID:            svc.newID(),
			Name:          sc.Name,
			URL:           normalized,
			Extractor:     sc.Extractor,
			FetchInterval: sc.IntervalDuration().Milliseconds(),
			Enabled:       enabled,
			ConfigJSON:    encodeSourceConfig(sc.Config),
		}
		if src.Extractor == "" {
			src.Extractor = "generic"
		}
		if err := svc.validateSource(src); err != nil {
			return fmt.Errorf("source %q: %w", sc.Name, err)
		}
		if err := svc.store.UpsertSource(ctx, src); err != nil {
			return fmt.Errorf("source %q: %w", sc.Name, err)
		}
	}
	return nil
}

// FetchNow runs one poll cycle for a source immediately, outside the
// scheduler's cadence.
func (svc *Service) FetchNow(ctx context.Context, id string) error {
	src, err := svc.store.GetSource(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if src == nil {
		return fmt.Errorf("%w: source not found: %s", ErrInvalidInput, id)
	}
	return svc.RunCycle(ctx, src)
}

// PollAll runs one cycle for every enabled source, sequentially. Used by
// the `once` command; scheduler failures isolation applies here too.
func (svc *Service) PollAll(ctx context.Context) error {
	sources, err := svc.store.ListEnabledSources(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	for _, src := range sources {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := svc.RunCycle(ctx, src); err != nil {
			svc.logger.Warn("cycle failed", "source_id", src.ID, "url", src.URL, "error", err)
		}
	}
	return nil
}

// --- Events / stats ---

// Events lists stock-change events, newest first.
func (svc *Service) Events(ctx context.Context, sourceID string, unseenOnly bool, limit int) ([]*store.Event, error) {
	return svc.store.ListEvents(ctx, sourceID, unseenOnly, limit)
}

// MarkEventsSeen acknowledges events; no IDs means all.
func (svc *Service) MarkEventsSeen(ctx context.Context, ids ...string) error {
	return svc.store.MarkEventsSeen(ctx, ids...)
}

// MarkItemsSeen clears the unseen badge on every item of a source.
func (svc *Service) MarkItemsSeen(ctx context.Context, sourceID string) error {
	src, err := svc.store.GetSource(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if src == nil {
		return fmt.Errorf("%w: source not found: %s", ErrInvalidInput, sourceID)
	}
	return svc.store.MarkItemsSeen(ctx, sourceID)
}

// Stats is the aggregate view served by /api/stats.
type Stats struct {
	Sources     []*SourceStats `json:"sources"`
	TotalUnseen int            `json:"total_unseen"`
}

// SourceStats is one source's counters.
type SourceStats struct {
	Source      *store.Source `json:"source"`
	ItemCount   int           `json:"item_count"`
	EventCount  int           `json:"event_count"`
	UnseenCount int           `json:"unseen_count"`
}

// GetStats aggregates per-source counters and unseen badges.
func (svc *Service) GetStats(ctx context.Context) (*Stats, error) {
	sources, err := svc.store.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	unseen, err := svc.store.UnseenCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	out := &Stats{Sources: make([]*SourceStats, 0, len(sources))}
	for _, src := range sources {
		items, err := svc.store.CountItems(ctx, src.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		events, err := svc.store.CountEvents(ctx, src.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		out.Sources = append(out.Sources, &SourceStats{
			Source:      src,
			ItemCount:   items,
			EventCount:  events,
			UnseenCount: unseen[src.ID],
		})
		out.TotalUnseen += unseen[src.ID]
	}
	return out, nil
}

// PruneNow applies the retention policy immediately.
func (svc *Service) PruneNow(ctx context.Context) error {
	return svc.store.Prune(ctx, svc.config.Retention)
}

// encodeSourceConfig turns the free-form config map from YAML into the
// config_json the extractor strategies read.
func encodeSourceConfig(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
