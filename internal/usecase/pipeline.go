package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ContentFeed/internal/affiliate"
	"ContentFeed/internal/dedup"
	"ContentFeed/internal/domain"
	"ContentFeed/internal/filter"
	"ContentFeed/internal/infrastructure/images"
	"ContentFeed/internal/metrics"
	"ContentFeed/internal/ports"
)

// ErrRunInProgress is returned when Run is called while another run of the
// same pipeline has not finished.
var ErrRunInProgress = errors.New("ingestion run already in progress")

const maxDetailsErrors = 50

// RuleSource hands out the active compiled filter rules.
type RuleSource interface {
	Active() *filter.Compiled
}

// PipelineDeps wires all driven adapters into the ingestion pipeline.
type PipelineDeps struct {
	Feeds    ports.FeedStore
	Articles ports.ArticleStore
	Logs     ports.IngestionLogStore
	Fetcher  ports.FeedFetcher
	Rules    RuleSource
	Enricher ports.Enricher
	Images   ports.ImageFinder
	Links    ports.LinkRewriter
	Notifier ports.Notifier
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// FeedDelay and ItemDelay pace the run; zero disables the pause.
	FeedDelay time.Duration
	ItemDelay time.Duration

	// Sleep, Now and NewRunID default to real time and random UUIDs.
	Sleep    func(ctx context.Context, d time.Duration) error
	Now      func() time.Time
	NewRunID func() string
}

// Report summarizes one run for callers of Run.
type Report struct {
	RunID     string           `json:"run_id"`
	Status    domain.RunStatus `json:"status"`
	Processed int              `json:"processed"`
	Filtered  int              `json:"filtered"`
	Errors    []string         `json:"errors"`
	Duration  time.Duration    `json:"-"`
	StartedAt time.Time        `json:"started_at"`
}

// Pipeline implements the content ingestion workflow: fetch, filter,
// dedupe, enrich and persist, one feed and one item at a time.
type Pipeline struct {
	feeds    ports.FeedStore
	articles ports.ArticleStore
	logs     ports.IngestionLogStore
	fetcher  ports.FeedFetcher
	rules    RuleSource
	dedup    *dedup.Detector
	enricher ports.Enricher
	images   ports.ImageFinder
	links    ports.LinkRewriter
	notifier ports.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger

	feedDelay time.Duration
	itemDelay time.Duration
	sleep     func(context.Context, time.Duration) error
	now       func() time.Time
	newRunID  func() string

	running atomic.Bool
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		feeds:     deps.Feeds,
		articles:  deps.Articles,
		logs:      deps.Logs,
		fetcher:   deps.Fetcher,
		rules:     deps.Rules,
		dedup:     dedup.NewDetector(deps.Articles),
		enricher:  deps.Enricher,
		images:    deps.Images,
		links:     deps.Links,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		feedDelay: deps.FeedDelay,
		itemDelay: deps.ItemDelay,
		sleep:     deps.Sleep,
		now:       deps.Now,
		newRunID:  deps.NewRunID,
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.newRunID == nil {
		p.newRunID = uuid.NewString
	}
	return p
}

// Running reports whether a run is in flight.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

type runState struct {
	report     Report
	feedsSeen  int
	feedsTotal int
}

func (r *runState) errorf(format string, args ...any) {
	r.report.Errors = append(r.report.Errors, fmt.Sprintf(format, args...))
}

// Run executes one ingestion pass over every active feed. It returns an
// error only when the feed list cannot be loaded or ctx is cancelled; the
// Report is filled in either case.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	if !p.running.CompareAndSwap(false, true) {
		return Report{}, ErrRunInProgress
	}
	defer p.running.Store(false)

	start := p.now()
	run := &runState{report: Report{RunID: p.newRunID(), StartedAt: start, Errors: []string{}}}
	logger := p.logger.With("run_id", run.report.RunID)
	logger.Info("ingestion run started")

	feeds, err := p.feeds.ListActiveFeeds(ctx)
	if err != nil {
		run.errorf("load active feeds: %v", err)
		report := p.finish(ctx, logger, run, start)
		return report, fmt.Errorf("load active feeds: %w", err)
	}
	run.feedsTotal = len(feeds)

	cutoff := p.backlogCutoff(ctx, logger)
	rules := p.rules.Active()

	var runErr error
	for i, feed := range feeds {
		if i > 0 {
			if err := p.sleep(ctx, p.feedDelay); err != nil {
				runErr = err
				break
			}
		}
		if err := p.processFeed(ctx, logger, feed, cutoff, rules, run); err != nil {
			runErr = err
			break
		}
		run.feedsSeen++
	}
	if runErr != nil {
		run.errorf("run interrupted: %v", runErr)
	}

	return p.finish(ctx, logger, run, start), runErr
}

// backlogCutoff is the start of the previous run; items published before
// it were already offered once. Entries without a start time fall back to
// their finish time.
func (p *Pipeline) backlogCutoff(ctx context.Context, logger *slog.Logger) time.Time {
	if p.logs == nil {
		return time.Time{}
	}
	latest, err := p.logs.LatestLog(ctx)
	if err != nil {
		logger.Warn("latest ingestion log unavailable, backlog cutoff disabled", "error", err)
		return time.Time{}
	}
	if latest == nil {
		return time.Time{}
	}
	if !latest.StartedAt.IsZero() {
		return latest.StartedAt
	}
	return latest.CreatedAt
}

// processFeed handles one feed. Only context cancellation is returned;
// every other failure is recorded on the run.
func (p *Pipeline) processFeed(
	ctx context.Context,
	logger *slog.Logger,
	feed domain.FeedSource,
	cutoff time.Time,
	rules *filter.Compiled,
	run *runState,
) error {
	feedLogger := logger.With("feed", feed.Name)

	items, err := p.fetcher.Fetch(ctx, feed)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		feedLogger.Warn("feed skipped", "error", err)
		run.errorf("feed %s: %v", feed.Name, err)
		return nil
	}

	feedLogger.Info("feed fetched", "items", len(items))
	for _, item := range items {
		enriched, err := p.processItem(ctx, feedLogger, feed, item, cutoff, rules, run)
		if err != nil {
			return err
		}
		if enriched {
			if err := p.sleep(ctx, p.itemDelay); err != nil {
				return err
			}
		}
	}

	p.markFetched(ctx, feedLogger, feed, run)
	return nil
}

func (p *Pipeline) markFetched(ctx context.Context, logger *slog.Logger, feed domain.FeedSource, run *runState) {
	if err := p.feeds.MarkFetched(ctx, feed.ID, p.now()); err != nil {
		logger.Warn("mark feed fetched failed", "error", err)
		run.errorf("feed %s: mark fetched: %v", feed.Name, err)
	}
}

// processItem walks one candidate through filtering, deduplication,
// enrichment and persistence. The bool reports whether enrichment was
// attempted, which is what the inter-item delay paces.
func (p *Pipeline) processItem(
	ctx context.Context,
	logger *slog.Logger,
	feed domain.FeedSource,
	item domain.CandidateItem,
	cutoff time.Time,
	rules *filter.Compiled,
	run *runState,
) (bool, error) {
	itemLogger := logger.With("title", item.Title, "link", item.Link)

	if !cutoff.IsZero() && !item.PublishedAt.IsZero() && item.PublishedAt.Before(cutoff) {
		p.filtered(itemLogger, run, "backlog", "published before previous run", metrics.OutcomeFiltered)
		return false, nil
	}

	if decision := filter.Evaluate(item, rules, p.now()); !decision.Accept {
		p.metrics.FilterRejection(decision.Rule)
		p.filtered(itemLogger, run, decision.Rule, decision.Reason, metrics.OutcomeFiltered)
		return false, nil
	}

	known, err := p.dedup.IsKnownURL(ctx, item.Link)
	if err != nil {
		return false, p.itemError(ctx, itemLogger, run, item, "duplicate check", err)
	}
	if known {
		p.filtered(itemLogger, run, "duplicate_url", "url already stored", metrics.OutcomeDuplicate)
		return false, nil
	}

	dup, err := p.dedup.IsDuplicate(ctx, item.Title)
	if err != nil {
		return false, p.itemError(ctx, itemLogger, run, item, "duplicate check", err)
	}
	if dup {
		p.filtered(itemLogger, run, "duplicate_title", "title already stored", metrics.OutcomeDuplicate)
		return false, nil
	}

	article, err := p.enrich(ctx, feed, item)
	if err != nil {
		return true, p.itemError(ctx, itemLogger, run, item, "enrichment", err)
	}

	stored, err := p.articles.InsertArticle(ctx, article)
	if errors.Is(err, domain.ErrDuplicateArticle) {
		p.filtered(itemLogger, run, "duplicate_url", "url stored concurrently", metrics.OutcomeDuplicate)
		return true, nil
	}
	if err != nil {
		return true, p.itemError(ctx, itemLogger, run, item, "persist", err)
	}

	run.report.Processed++
	p.metrics.Item(metrics.OutcomeProcessed)
	itemLogger.Info("article stored",
		"article_id", stored.ID,
		"category", stored.Category,
		"program", affiliate.ProgramName(stored.AffiliateURL),
	)
	return true, nil
}

// enrich produces the full article or fails as a whole; no partial
// enrichment is ever returned.
func (p *Pipeline) enrich(ctx context.Context, feed domain.FeedSource, item domain.CandidateItem) (domain.Article, error) {
	providers := make(map[string]string, 4)

	summary, err := p.enricher.Summarize(ctx, item)
	if err != nil {
		return domain.Article{}, fmt.Errorf("summary: %w", err)
	}
	providers[domain.EnrichmentSummary] = summary.Provider

	tags, err := p.enricher.GenerateTags(ctx, item)
	if err != nil {
		return domain.Article{}, fmt.Errorf("tags: %w", err)
	}
	providers[domain.EnrichmentTags] = tags.Provider

	category, err := p.enricher.Categorize(ctx, item)
	if err != nil {
		return domain.Article{}, fmt.Errorf("category: %w", err)
	}
	providers[domain.EnrichmentCategory] = category.Provider

	source := feedSource(feed)
	rewrite, err := p.enricher.Rewrite(ctx, item, source)
	if err != nil {
		return domain.Article{}, fmt.Errorf("rewrite: %w", err)
	}
	providers[domain.EnrichmentRewrite] = rewrite.Provider

	affiliateURL := item.Link
	if p.links != nil {
		affiliateURL = p.links.Rewrite(item.Link)
	}

	return domain.Article{
		FeedID:       feed.ID,
		Title:        item.Title,
		Summary:      summary.Text,
		Content:      rewrite.Text,
		URL:          item.Link,
		AffiliateURL: affiliateURL,
		ImageURL:     p.imageFor(ctx, item, category.Text),
		Source:       source,
		Category:     category.Text,
		Tags:         tags.Tags,
		Providers:    providers,
		PublishedAt:  item.PublishedAt,
	}, nil
}

// imageFor keeps the image found in the feed and only searches when there
// is none. Lookup failures leave the article without an image.
func (p *Pipeline) imageFor(ctx context.Context, item domain.CandidateItem, category string) string {
	if item.ImageURL != "" || p.images == nil {
		return item.ImageURL
	}
	urls, err := p.images.Search(ctx, images.Query(item.Title, category))
	if err != nil || len(urls) == 0 {
		p.logger.Warn("image lookup failed", "title", item.Title, "error", err)
		return ""
	}
	return urls[0]
}

func (p *Pipeline) filtered(logger *slog.Logger, run *runState, rule, reason, outcome string) {
	run.report.Filtered++
	p.metrics.Item(outcome)
	logger.Debug("item filtered", "rule", rule, "reason", reason)
}

// itemError records a failed item. A cancelled context is returned so the
// run stops instead of failing every remaining item.
func (p *Pipeline) itemError(ctx context.Context, logger *slog.Logger, run *runState, item domain.CandidateItem, stage string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	p.metrics.Item(metrics.OutcomeError)
	logger.Warn("item skipped", "stage", stage, "error", err)
	run.errorf("item %q: %s: %v", item.Title, stage, err)
	return nil
}

// finish computes the status, writes the single log entry for the run and
// notifies operators about failed runs.
func (p *Pipeline) finish(ctx context.Context, logger *slog.Logger, run *runState, start time.Time) Report {
	report := run.report
	report.Duration = p.now().Sub(start)
	report.Status = runStatus(report.Processed, len(report.Errors))

	entry := domain.IngestionLogEntry{
		RunID:          report.RunID,
		Status:         report.Status,
		ProcessedCount: report.Processed,
		FilteredCount:  report.Filtered,
		ErrorCount:     len(report.Errors),
		DurationMs:     report.Duration.Milliseconds(),
		Message: fmt.Sprintf("Processed %d articles, filtered %d, %d errors across %d/%d feeds",
			report.Processed, report.Filtered, len(report.Errors), run.feedsSeen, run.feedsTotal),
		Details:   details(report.Errors),
		StartedAt: start.UTC(),
		CreatedAt: p.now().UTC(),
	}

	// The log and the notification are written even when ctx was cancelled.
	detached := context.WithoutCancel(ctx)
	if p.logs != nil {
		if err := p.logs.AppendLog(detached, entry); err != nil {
			logger.Warn("ingestion log not written", "error", err)
		}
	}
	if p.notifier != nil && report.Status != domain.RunSuccess {
		if err := p.notifier.PublishRunSummary(detached, entry); err != nil {
			logger.Warn("run notification failed", "error", err)
		}
	}

	p.metrics.Run(string(report.Status), report.Duration)
	logger.Info("ingestion run finished",
		"status", report.Status,
		"processed", report.Processed,
		"filtered", report.Filtered,
		"errors", len(report.Errors),
		"duration", report.Duration,
	)
	return report
}

func runStatus(processed, errs int) domain.RunStatus {
	switch {
	case errs == 0:
		return domain.RunSuccess
	case processed > 0:
		return domain.RunPartial
	default:
		return domain.RunError
	}
}

func details(errs []string) string {
	if len(errs) > maxDetailsErrors {
		extra := len(errs) - maxDetailsErrors
		errs = append(errs[:maxDetailsErrors:maxDetailsErrors], fmt.Sprintf("... and %d more", extra))
	}
	return strings.Join(errs, "\n")
}

func feedSource(feed domain.FeedSource) string {
	if feed.Source != "" {
		return feed.Source
	}
	return feed.Name
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
