package dedup

import (
	"context"
	"fmt"
	"strings"

	"ContentFeed/internal/ports"
)

// Detector answers whether a candidate was already ingested. It relies on
// the store seeing its own writes within a run.
type Detector struct {
	articles ports.ArticleStore
}

// NewDetector wraps the article store.
func NewDetector(articles ports.ArticleStore) *Detector {
	return &Detector{articles: articles}
}

// IsKnownURL reports whether an article with exactly this source URL exists.
func (d *Detector) IsKnownURL(ctx context.Context, url string) (bool, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return false, nil
	}
	existing, err := d.articles.FindByURL(ctx, url)
	if err != nil {
		return false, fmt.Errorf("lookup url: %w", err)
	}
	return existing != nil, nil
}

// IsDuplicate reports whether an article with exactly this title exists.
func (d *Detector) IsDuplicate(ctx context.Context, title string) (bool, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return false, nil
	}
	existing, err := d.articles.FindByTitle(ctx, title)
	if err != nil {
		return false, fmt.Errorf("lookup title: %w", err)
	}
	return existing != nil, nil
}
