package storage

import (
	"context"
	"fmt"
	"strings"

	"ContentFeed/internal/config"
)

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS rss_feeds (
	id {{pk}},
	name TEXT NOT NULL,
	url TEXT NOT NULL UNIQUE,
	category TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	active INTEGER NOT NULL DEFAULT 1,
	last_fetched BIGINT,
	created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS articles (
	id {{pk}},
	feed_id BIGINT,
	title TEXT NOT NULL,
	summary TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL UNIQUE,
	affiliate_url TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	providers TEXT NOT NULL DEFAULT '{}',
	published_at BIGINT,
	created_at BIGINT NOT NULL,
	likes_count INTEGER NOT NULL DEFAULT 0,
	bookmarks_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_articles_title ON articles(title);
CREATE INDEX IF NOT EXISTS idx_articles_created_at ON articles(created_at);

CREATE TABLE IF NOT EXISTS content_ingestion_logs (
	id {{pk}},
	run_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	processed_count INTEGER NOT NULL DEFAULT 0,
	filtered_count INTEGER NOT NULL DEFAULT 0,
	error_count INTEGER NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	message TEXT NOT NULL DEFAULT '',
	details TEXT NOT NULL DEFAULT '',
	started_at BIGINT,
	created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ingestion_logs_created_at ON content_ingestion_logs(created_at);

CREATE TABLE IF NOT EXISTS filter_config (
	id INTEGER PRIMARY KEY,
	rules TEXT NOT NULL,
	updated_at BIGINT NOT NULL
);
`

func schemaFor(driver string) string {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == config.DriverPostgres {
		pk = "BIGSERIAL PRIMARY KEY"
	}
	return strings.ReplaceAll(schemaTemplate, "{{pk}}", pk)
}

// Migrate creates the tables and indexes when they are missing.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaFor(r.driver), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
