package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gofrs/flock"

	"ContentFeed/internal/affiliate"
	"ContentFeed/internal/config"
	"ContentFeed/internal/domain"
	"ContentFeed/internal/filter"
	"ContentFeed/internal/httpapi"
	"ContentFeed/internal/infrastructure/feed"
	"ContentFeed/internal/infrastructure/images"
	"ContentFeed/internal/infrastructure/llm"
	"ContentFeed/internal/infrastructure/scheduler"
	"ContentFeed/internal/infrastructure/storage"
	"ContentFeed/internal/infrastructure/telegram"
	"ContentFeed/internal/logging"
	"ContentFeed/internal/metrics"
	"ContentFeed/internal/ports"
	"ContentFeed/internal/ratelimit"
	"ContentFeed/internal/usecase"
)

// ErrLocked is returned by RunOnce when another process holds the
// ingestion lock.
var ErrLocked = errors.New("another ingestion process is running")

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	repo      *storage.SQLRepository
	filters   *filter.Manager
	gateway   *llm.Gateway
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	api       *httpapi.Server
}

// New opens storage, loads the persisted filter rules and builds the
// pipeline with every configured adapter.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	repo, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	filters := filter.NewManager(repo, baseLogger.With("component", "filter"))
	if err := filters.Init(ctx); err != nil {
		_ = repo.Close()
		return nil, err
	}

	m := metrics.New()
	gateway := llm.NewGateway(
		ratelimit.New(),
		llm.ProvidersFromConfig(cfg.Providers, baseLogger.With("component", "llm")),
		llm.WithRetry(cfg.Retry.Attempts, cfg.Retry.BaseDelay),
		llm.WithMetrics(m),
		llm.WithLogger(baseLogger.With("component", "gateway")),
	)

	var notifier ports.Notifier
	if tg := telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID); tg.Configured() {
		notifier = tg
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Feeds:     repo,
		Articles:  repo,
		Logs:      repo,
		Fetcher:   feed.NewFetcher(cfg.Ingestion, nil, baseLogger.With("component", "fetcher")),
		Rules:     filters,
		Enricher:  gateway,
		Images:    images.FromConfig(cfg.Images, baseLogger.With("component", "images")),
		Links:     affiliate.NewRewriter(cfg.Affiliate),
		Notifier:  notifier,
		Metrics:   m,
		Logger:    baseLogger.With("component", "pipeline"),
		FeedDelay: cfg.Ingestion.FeedDelay,
		ItemDelay: cfg.Ingestion.ItemDelay,
	})

	var driver ports.Scheduler
	if cfg.Scheduler.Enabled {
		driver = scheduler.NewIntervalScheduler(cfg.Scheduler.Interval)
	}

	a := &Application{
		cfg:       cfg,
		logger:    baseLogger,
		repo:      repo,
		filters:   filters,
		gateway:   gateway,
		pipeline:  pipeline,
		scheduler: usecase.NewScheduler(driver, pipeline, baseLogger.With("component", "scheduler")),
	}
	a.api = httpapi.New(httpapi.Deps{
		Ingester:   pipeline,
		Filters:    filters,
		Logs:       repo,
		RateLimits: gateway,
		Metrics:    m.Handler(),
		Logger:     baseLogger.With("component", "http"),
	})
	return a, nil
}

// Close releases the database.
func (a *Application) Close() error {
	return a.repo.Close()
}

// Repository exposes the store for read-only commands.
func (a *Application) Repository() *storage.SQLRepository { return a.repo }

// Filters exposes the runtime filter configuration.
func (a *Application) Filters() *filter.Manager { return a.filters }

// Gateway exposes the AI gateway.
func (a *Application) Gateway() *llm.Gateway { return a.gateway }

// Handler returns the admin API router.
func (a *Application) Handler() http.Handler { return a.api.Handler() }

// SeedFeeds upserts the configured feeds so storage reflects the config.
func (a *Application) SeedFeeds(ctx context.Context) error {
	for _, fc := range a.cfg.Feeds {
		if fc.URL == "" {
			continue
		}
		saved, err := a.repo.UpsertFeed(ctx, domain.FeedSource{
			Name:     fc.Name,
			URL:      fc.URL,
			Category: fc.Category,
			Source:   fc.Source,
			Active:   fc.IsActive(),
		})
		if err != nil {
			return fmt.Errorf("seed feed %s: %w", fc.URL, err)
		}
		a.logger.Debug("feed seeded", "feed_id", saved.ID, "url", saved.URL, "active", saved.Active)
	}
	return nil
}

// RunOnce performs a single ingestion run under a cross-process file lock.
func (a *Application) RunOnce(ctx context.Context) (usecase.Report, error) {
	lock := flock.New(a.cfg.Ingestion.LockFile)
	ok, err := lock.TryLock()
	if err != nil {
		return usecase.Report{}, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return usecase.Report{}, ErrLocked
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			a.logger.Warn("failed to release ingestion lock", "error", err)
		}
	}()

	return a.pipeline.Run(ctx)
}

// Serve starts the scheduler (when enabled) and the admin API, and blocks
// until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if a.cfg.Scheduler.Enabled {
		a.logger.Info("scheduler started", "interval", a.cfg.Scheduler.Interval)
	}

	serveErr := a.api.ListenAndServe(ctx, a.cfg.HTTP.Addr, a.cfg.HTTP.ShutdownTimeout)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := a.scheduler.Stop(stopCtx); err != nil {
		a.logger.Warn("scheduler stop failed", "error", err)
	}
	return serveErr
}
