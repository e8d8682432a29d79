package ports

import (
	"context"
	"time"

	"ContentFeed/internal/domain"
)

// FeedStore lists configured feeds and records fetch progress.
type FeedStore interface {
	ListActiveFeeds(ctx context.Context) ([]domain.FeedSource, error)
	MarkFetched(ctx context.Context, feedID int64, at time.Time) error
}

// ArticleStore persists enriched articles and answers duplicate lookups.
// Find methods return (nil, nil) when nothing matches.
type ArticleStore interface {
	FindByURL(ctx context.Context, url string) (*domain.Article, error)
	FindByTitle(ctx context.Context, title string) (*domain.Article, error)
	InsertArticle(ctx context.Context, article domain.Article) (domain.Article, error)
}

// IngestionLogStore keeps one entry per orchestrator run.
type IngestionLogStore interface {
	AppendLog(ctx context.Context, entry domain.IngestionLogEntry) error
	LatestLog(ctx context.Context) (*domain.IngestionLogEntry, error)
}

// FilterConfigStore persists the active filter rule set.
// LoadRules returns (nil, nil) when nothing was saved yet.
type FilterConfigStore interface {
	LoadRules(ctx context.Context) (*domain.FilterRuleSet, error)
	SaveRules(ctx context.Context, rules domain.FilterRuleSet) error
}

// FeedFetcher downloads and parses one feed into candidate items.
type FeedFetcher interface {
	Fetch(ctx context.Context, feed domain.FeedSource) ([]domain.CandidateItem, error)
}

// Enricher produces the four AI-derived fields of an article.
type Enricher interface {
	Summarize(ctx context.Context, item domain.CandidateItem) (domain.Generation, error)
	GenerateTags(ctx context.Context, item domain.CandidateItem) (domain.Generation, error)
	Categorize(ctx context.Context, item domain.CandidateItem) (domain.Generation, error)
	Rewrite(ctx context.Context, item domain.CandidateItem, source string) (domain.Generation, error)
}

// ImageFinder returns image URLs for a search query, best first.
type ImageFinder interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// LinkRewriter turns an outbound URL into its monetized variant.
type LinkRewriter interface {
	Rewrite(rawURL string) string
}

// Notifier delivers run summaries to operators.
type Notifier interface {
	PublishRunSummary(ctx context.Context, entry domain.IngestionLogEntry) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
