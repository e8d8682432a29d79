package images

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"ContentFeed/internal/config"
	"ContentFeed/internal/ports"
)

const (
	defaultCacheTTL = 24 * time.Hour
	defaultTimeout  = 10 * time.Second
	defaultQuery    = "technology"
	maxQueryWords   = 3
)

// ErrNoImage is returned when no provider produced a URL.
var ErrNoImage = errors.New("no image found")

type cacheEntry struct {
	urls    []string
	expires time.Time
}

// Finder walks image providers in order and caches hits per query.
type Finder struct {
	providers []Provider
	ttl       time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

var _ ports.ImageFinder = (*Finder)(nil)

// NewFinder builds a finder over explicit providers.
func NewFinder(providers []Provider, ttl time.Duration, logger *slog.Logger) *Finder {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Finder{
		providers: providers,
		ttl:       ttl,
		now:       time.Now,
		logger:    logger,
		cache:     make(map[string]cacheEntry),
	}
}

// FromConfig enables each stock photo API that has a key and always ends
// with the placeholder provider.
func FromConfig(cfg config.ImagesConfig, logger *slog.Logger) *Finder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &http.Client{Timeout: timeout}

	var providers []Provider
	if cfg.UnsplashKey != "" {
		providers = append(providers, NewUnsplash(client, cfg.UnsplashKey, ""))
	}
	if cfg.PexelsKey != "" {
		providers = append(providers, NewPexels(client, cfg.PexelsKey, ""))
	}
	if cfg.PixabayKey != "" {
		providers = append(providers, NewPixabay(client, cfg.PixabayKey, ""))
	}
	providers = append(providers, Placeholder{})
	return NewFinder(providers, cfg.CacheTTL, logger)
}

// Search returns the first non-empty result list. Provider errors are
// logged and skipped.
func (f *Finder) Search(ctx context.Context, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		query = defaultQuery
	}
	if urls, ok := f.cached(query); ok {
		return urls, nil
	}

	for _, p := range f.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		urls, err := p.Search(ctx, query)
		if err != nil {
			f.logger.Warn("image provider failed", "provider", p.Name(), "query", query, "error", err)
			continue
		}
		if len(urls) == 0 {
			continue
		}
		f.logger.Debug("image found", "provider", p.Name(), "query", query)
		f.store(query, urls)
		return append([]string(nil), urls...), nil
	}
	return nil, ErrNoImage
}

func (f *Finder) cached(query string) ([]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.cache[query]
	if !ok {
		return nil, false
	}
	if !f.now().Before(entry.expires) {
		delete(f.cache, query)
		return nil, false
	}
	return append([]string(nil), entry.urls...), true
}

func (f *Finder) store(query string, urls []string) {
	f.mu.Lock()
	f.cache[query] = cacheEntry{urls: append([]string(nil), urls...), expires: f.now().Add(f.ttl)}
	f.mu.Unlock()
}

var nonWord = regexp.MustCompile(`[^\w\s]`)

// Query builds a search query from the article category and up to three
// longer title words.
func Query(title, category string) string {
	var parts []string
	if category = strings.ToLower(strings.TrimSpace(category)); category != "" {
		parts = append(parts, category)
	}

	cleaned := nonWord.ReplaceAllString(strings.ToLower(title), "")
	words := 0
	for _, w := range strings.Fields(cleaned) {
		if words == maxQueryWords {
			break
		}
		if len(w) > 3 {
			parts = append(parts, w)
			words++
		}
	}

	if q := strings.TrimSpace(strings.Join(parts, " ")); q != "" {
		return q
	}
	return defaultQuery
}
