package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ContentFeed/internal/config"
	"ContentFeed/internal/domain"
)

func newTestRepository(t *testing.T) *SQLRepository {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "contentfeed.db")
	repo, err := Open(context.Background(), config.DatabaseConfig{Driver: config.DriverSQLite, DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	require.NoError(t, repo.Migrate(context.Background()))
	require.NoError(t, repo.Migrate(context.Background()))
}

func TestFeedsUpsertListAndMarkFetched(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepository(t)

	tc, err := repo.UpsertFeed(ctx, domain.FeedSource{Name: "TechCrunch", URL: "https://techcrunch.com/feed/", Category: "Technology", Active: true})
	require.NoError(t, err)
	require.NotZero(t, tc.ID)

	_, err = repo.UpsertFeed(ctx, domain.FeedSource{Name: "Paused", URL: "https://paused.example.com/rss", Active: false})
	require.NoError(t, err)

	again, err := repo.UpsertFeed(ctx, domain.FeedSource{Name: "TechCrunch Renamed", URL: "https://techcrunch.com/feed/", Category: "Tech", Active: true})
	require.NoError(t, err)
	assert.Equal(t, tc.ID, again.ID, "upsert keeps the row for the same url")

	all, err := repo.ListFeeds(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := repo.ListActiveFeeds(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "TechCrunch Renamed", active[0].Name)
	assert.Nil(t, active[0].LastFetched)

	at := time.Date(2025, 11, 8, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkFetched(ctx, tc.ID, at))

	active, err = repo.ListActiveFeeds(ctx)
	require.NoError(t, err)
	require.NotNil(t, active[0].LastFetched)
	assert.True(t, active[0].LastFetched.Equal(at))
}

func TestArticlesReadAfterWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepository(t)

	found, err := repo.FindByURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.Nil(t, found)

	published := time.Date(2025, 11, 7, 8, 0, 0, 0, time.UTC)
	stored, err := repo.InsertArticle(ctx, domain.Article{
		FeedID:       3,
		Title:        "Batteries get cheaper",
		Summary:      "Short summary.",
		Content:      "## Heading\n\nBody.",
		URL:          "https://example.com/a",
		AffiliateURL: "https://go.example.com/?url=a",
		ImageURL:     "https://img.example.com/a.jpg",
		Source:       "Example",
		Category:     "Technology",
		Tags:         []string{"batteries", "energy"},
		Providers:    map[string]string{domain.EnrichmentSummary: "openrouter"},
		PublishedAt:  published,
	})
	require.NoError(t, err)
	require.NotZero(t, stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())

	byURL, err := repo.FindByURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	require.NotNil(t, byURL)
	assert.Equal(t, stored.ID, byURL.ID)
	assert.Equal(t, []string{"batteries", "energy"}, byURL.Tags)
	assert.Equal(t, "openrouter", byURL.Providers[domain.EnrichmentSummary])
	assert.True(t, byURL.PublishedAt.Equal(published))
	assert.Zero(t, byURL.LikesCount)
	assert.Zero(t, byURL.BookmarksCount)

	byTitle, err := repo.FindByTitle(ctx, "Batteries get cheaper")
	require.NoError(t, err)
	require.NotNil(t, byTitle)

	caseMismatch, err := repo.FindByTitle(ctx, "batteries get cheaper")
	require.NoError(t, err)
	assert.Nil(t, caseMismatch)
}

func TestInsertArticleRejectsDuplicateURL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepository(t)

	_, err := repo.InsertArticle(ctx, domain.Article{Title: "One", URL: "https://example.com/same"})
	require.NoError(t, err)

	_, err = repo.InsertArticle(ctx, domain.Article{Title: "Two", URL: "https://example.com/same"})
	assert.ErrorIs(t, err, domain.ErrDuplicateArticle)
}

func TestArticleWithoutPublishTime(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepository(t)

	_, err := repo.InsertArticle(ctx, domain.Article{Title: "Undated", URL: "https://example.com/undated"})
	require.NoError(t, err)

	got, err := repo.FindByURL(ctx, "https://example.com/undated")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.PublishedAt.IsZero())
	assert.Empty(t, got.Tags)
}

func TestIngestionLogs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepository(t)

	latest, err := repo.LatestLog(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	base := time.Date(2025, 11, 8, 10, 0, 0, 0, time.UTC)
	for i, status := range []domain.RunStatus{domain.RunSuccess, domain.RunPartial, domain.RunError} {
		require.NoError(t, repo.AppendLog(ctx, domain.IngestionLogEntry{
			RunID:          string(status),
			Status:         status,
			ProcessedCount: i,
			FilteredCount:  i * 2,
			ErrorCount:     i * 3,
			DurationMs:     1500,
			Message:        "run",
			StartedAt:      base.Add(time.Duration(i)*time.Hour - time.Minute),
			CreatedAt:      base.Add(time.Duration(i) * time.Hour),
		}))
	}

	latest, err = repo.LatestLog(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, domain.RunError, latest.Status)
	assert.Equal(t, 4, latest.FilteredCount)
	assert.True(t, latest.CreatedAt.Equal(base.Add(2*time.Hour)))
	assert.True(t, latest.StartedAt.Equal(base.Add(2*time.Hour-time.Minute)))

	logs, err := repo.ListLogs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, domain.RunPartial, logs[1].Status)

	all, err := repo.ListLogs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFilterRulesRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepository(t)

	rules, err := repo.LoadRules(ctx)
	require.NoError(t, err)
	assert.Nil(t, rules)

	first := domain.FilterRuleSet{MinTitleLength: 5, MaxTitleLength: 100, MaxAgeHours: 24, ExcludeKeywords: []string{"crypto"}}
	require.NoError(t, repo.SaveRules(ctx, first))

	second := first.Clone()
	second.MaxAgeHours = 48
	require.NoError(t, repo.SaveRules(ctx, second))

	rules, err = repo.LoadRules(ctx)
	require.NoError(t, err)
	require.NotNil(t, rules)
	assert.Equal(t, 48, rules.MaxAgeHours)
	assert.Equal(t, []string{"crypto"}, rules.ExcludeKeywords)
	assert.Equal(t, []string{}, rules.IncludeKeywords)
}
