package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"ContentFeed/internal/config"
	"ContentFeed/internal/domain"
	"ContentFeed/internal/ports"
)

const (
	feedsTable   = "rss_feeds"
	articleTable = "articles"
	logsTable    = "content_ingestion_logs"
	rulesTable   = "filter_config"
	rulesRowID   = 1
)

var (
	feedColumns    = []string{"id", "name", "url", "category", "source", "active", "last_fetched"}
	articleColumns = []string{
		"id", "feed_id", "title", "summary", "content", "url", "affiliate_url", "image_url",
		"source", "category", "tags", "providers", "published_at", "created_at",
		"likes_count", "bookmarks_count",
	}
	logColumns = []string{
		"id", "run_id", "status", "processed_count", "filtered_count", "error_count",
		"duration_ms", "message", "details", "started_at", "created_at",
	}
)

// SQLRepository persists feeds, articles, ingestion logs and filter rules
// in SQLite or Postgres.
type SQLRepository struct {
	db     *sql.DB
	driver string
	sb     sq.StatementBuilderType
	now    func() time.Time
}

var (
	_ ports.FeedStore         = (*SQLRepository)(nil)
	_ ports.ArticleStore      = (*SQLRepository)(nil)
	_ ports.IngestionLogStore = (*SQLRepository)(nil)
	_ ports.FilterConfigStore = (*SQLRepository)(nil)
)

// NewSQLRepository wires an open sql.DB for the given driver.
func NewSQLRepository(db *sql.DB, driver string) *SQLRepository {
	sb := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if driver == config.DriverPostgres {
		sb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return &SQLRepository{db: db, driver: driver, sb: sb, now: time.Now}
}

// Open connects to the configured database and applies the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*SQLRepository, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = config.DriverSQLite
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}

	if driver == config.DriverSQLite {
		db.SetMaxOpenConns(1)
		pragmas := []string{
			"PRAGMA foreign_keys = ON",
			"PRAGMA busy_timeout = 5000",
		}
		for _, pragma := range pragmas {
			if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
				_ = db.Close()
				return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
			}
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}

	repo := NewSQLRepository(db, driver)
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database connection.
func (r *SQLRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// ListActiveFeeds returns feeds flagged active, oldest first.
func (r *SQLRepository) ListActiveFeeds(ctx context.Context) ([]domain.FeedSource, error) {
	return r.listFeeds(ctx, sq.Eq{"active": 1})
}

// ListFeeds returns every configured feed.
func (r *SQLRepository) ListFeeds(ctx context.Context) ([]domain.FeedSource, error) {
	return r.listFeeds(ctx, nil)
}

func (r *SQLRepository) listFeeds(ctx context.Context, where sq.Sqlizer) ([]domain.FeedSource, error) {
	q := r.sb.Select(feedColumns...).From(feedsTable).OrderBy("id")
	if where != nil {
		q = q.Where(where)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build feeds query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}
	defer rows.Close()

	var feeds []domain.FeedSource
	for rows.Next() {
		var (
			f           domain.FeedSource
			active      int
			lastFetched sql.NullInt64
		)
		if err := rows.Scan(&f.ID, &f.Name, &f.URL, &f.Category, &f.Source, &active, &lastFetched); err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		f.Active = active != 0
		if lastFetched.Valid {
			t := fromMillis(lastFetched.Int64)
			f.LastFetched = &t
		}
		feeds = append(feeds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return feeds, nil
}

// UpsertFeed inserts a feed or refreshes the stored one with the same URL.
func (r *SQLRepository) UpsertFeed(ctx context.Context, feed domain.FeedSource) (domain.FeedSource, error) {
	query, args, err := r.sb.Insert(feedsTable).
		Columns("name", "url", "category", "source", "active", "created_at").
		Values(feed.Name, feed.URL, feed.Category, feed.Source, boolToInt(feed.Active), toMillis(r.now())).
		Suffix(`ON CONFLICT (url) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			source = excluded.source,
			active = excluded.active
			RETURNING id`).
		ToSql()
	if err != nil {
		return domain.FeedSource{}, fmt.Errorf("build feed upsert: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&feed.ID); err != nil {
		return domain.FeedSource{}, fmt.Errorf("upsert feed %s: %w", feed.URL, err)
	}
	return feed, nil
}

// MarkFetched records the last successful visit of a feed.
func (r *SQLRepository) MarkFetched(ctx context.Context, feedID int64, at time.Time) error {
	query, args, err := r.sb.Update(feedsTable).
		Set("last_fetched", toMillis(at)).
		Where(sq.Eq{"id": feedID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark fetched: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark feed %d fetched: %w", feedID, err)
	}
	return nil
}

// FindByURL returns the article stored under url, or nil.
func (r *SQLRepository) FindByURL(ctx context.Context, url string) (*domain.Article, error) {
	return r.findArticle(ctx, sq.Eq{"url": url})
}

// FindByTitle returns the first article with exactly this title, or nil.
func (r *SQLRepository) FindByTitle(ctx context.Context, title string) (*domain.Article, error) {
	return r.findArticle(ctx, sq.Eq{"title": title})
}

func (r *SQLRepository) findArticle(ctx context.Context, where sq.Eq) (*domain.Article, error) {
	query, args, err := r.sb.Select(articleColumns...).
		From(articleTable).
		Where(where).
		OrderBy("id").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build article query: %w", err)
	}

	var (
		a           domain.Article
		feedID      sql.NullInt64
		tags        string
		providers   string
		publishedAt sql.NullInt64
		createdAt   int64
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&a.ID, &feedID, &a.Title, &a.Summary, &a.Content, &a.URL, &a.AffiliateURL, &a.ImageURL,
		&a.Source, &a.Category, &tags, &providers, &publishedAt, &createdAt,
		&a.LikesCount, &a.BookmarksCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query article: %w", err)
	}

	a.FeedID = feedID.Int64
	if publishedAt.Valid {
		a.PublishedAt = fromMillis(publishedAt.Int64)
	}
	a.CreatedAt = fromMillis(createdAt)
	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of article %d: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(providers), &a.Providers); err != nil {
		return nil, fmt.Errorf("decode providers of article %d: %w", a.ID, err)
	}
	return &a, nil
}

// InsertArticle stores a new article and returns it with its ID and
// creation time. A URL that is already stored yields
// domain.ErrDuplicateArticle.
func (r *SQLRepository) InsertArticle(ctx context.Context, article domain.Article) (domain.Article, error) {
	if article.CreatedAt.IsZero() {
		article.CreatedAt = r.now().UTC()
	}
	if article.Tags == nil {
		article.Tags = []string{}
	}
	if article.Providers == nil {
		article.Providers = map[string]string{}
	}

	tags, err := json.Marshal(article.Tags)
	if err != nil {
		return domain.Article{}, fmt.Errorf("encode tags: %w", err)
	}
	providers, err := json.Marshal(article.Providers)
	if err != nil {
		return domain.Article{}, fmt.Errorf("encode providers: %w", err)
	}

	var feedID any
	if article.FeedID != 0 {
		feedID = article.FeedID
	}
	var publishedAt any
	if !article.PublishedAt.IsZero() {
		publishedAt = toMillis(article.PublishedAt)
	}

	query, args, err := r.sb.Insert(articleTable).
		Columns(articleColumns[1:]...).
		Values(
			feedID, article.Title, article.Summary, article.Content, article.URL, article.AffiliateURL,
			article.ImageURL, article.Source, article.Category, string(tags), string(providers),
			publishedAt, toMillis(article.CreatedAt), article.LikesCount, article.BookmarksCount,
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.Article{}, fmt.Errorf("build article insert: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&article.ID); err != nil {
		if isUniqueViolation(err) {
			return domain.Article{}, fmt.Errorf("insert article %s: %w", article.URL, domain.ErrDuplicateArticle)
		}
		return domain.Article{}, fmt.Errorf("insert article %s: %w", article.URL, err)
	}
	return article, nil
}

// AppendLog stores one ingestion run summary.
func (r *SQLRepository) AppendLog(ctx context.Context, entry domain.IngestionLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	var startedAt any
	if !entry.StartedAt.IsZero() {
		startedAt = toMillis(entry.StartedAt)
	}
	query, args, err := r.sb.Insert(logsTable).
		Columns(logColumns[1:]...).
		Values(
			entry.RunID, string(entry.Status), entry.ProcessedCount, entry.FilteredCount, entry.ErrorCount,
			entry.DurationMs, entry.Message, entry.Details, startedAt, toMillis(entry.CreatedAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build log insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("append ingestion log: %w", err)
	}
	return nil
}

// LatestLog returns the most recent run summary, or nil before the first run.
func (r *SQLRepository) LatestLog(ctx context.Context) (*domain.IngestionLogEntry, error) {
	logs, err := r.ListLogs(ctx, 1)
	if err != nil || len(logs) == 0 {
		return nil, err
	}
	return &logs[0], nil
}

// ListLogs returns up to limit run summaries, newest first.
func (r *SQLRepository) ListLogs(ctx context.Context, limit int) ([]domain.IngestionLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query, args, err := r.sb.Select(logColumns...).
		From(logsTable).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build logs query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ingestion logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.IngestionLogEntry
	for rows.Next() {
		var (
			e         domain.IngestionLogEntry
			status    string
			startedAt sql.NullInt64
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &status, &e.ProcessedCount, &e.FilteredCount, &e.ErrorCount,
			&e.DurationMs, &e.Message, &e.Details, &startedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scan ingestion log: %w", err)
		}
		e.Status = domain.RunStatus(status)
		if startedAt.Valid {
			e.StartedAt = fromMillis(startedAt.Int64)
		}
		e.CreatedAt = fromMillis(createdAt)
		logs = append(logs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return logs, nil
}

// LoadRules returns the persisted filter rules, or nil when none were saved.
func (r *SQLRepository) LoadRules(ctx context.Context) (*domain.FilterRuleSet, error) {
	query, args, err := r.sb.Select("rules").From(rulesTable).Where(sq.Eq{"id": rulesRowID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build rules query: %w", err)
	}

	var raw string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query filter rules: %w", err)
	}

	var rules domain.FilterRuleSet
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return nil, fmt.Errorf("decode filter rules: %w", err)
	}
	return &rules, nil
}

// SaveRules replaces the persisted filter rules.
func (r *SQLRepository) SaveRules(ctx context.Context, rules domain.FilterRuleSet) error {
	raw, err := json.Marshal(rules.Clone())
	if err != nil {
		return fmt.Errorf("encode filter rules: %w", err)
	}
	query, args, err := r.sb.Insert(rulesTable).
		Columns("id", "rules", "updated_at").
		Values(rulesRowID, string(raw), toMillis(r.now())).
		Suffix("ON CONFLICT (id) DO UPDATE SET rules = excluded.rules, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build rules upsert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save filter rules: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			(code == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE"))
	}
	return false
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
