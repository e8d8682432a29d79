package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"ContentFeed/internal/config"
	"ContentFeed/internal/domain"
	"ContentFeed/internal/ports"
)

const (
	defaultMaxItems  = 10
	defaultUserAgent = "ContentFeed/1.0"
	maxFeedBytes     = 10 << 20
)

// FetchError reports a feed that could not be downloaded.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a downloaded document that is not a feed.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Fetcher downloads RSS, Atom and JSON feeds and turns entries into
// candidate items.
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxItems  int
	logger    *slog.Logger
}

var _ ports.FeedFetcher = (*Fetcher)(nil)

// NewFetcher wires an HTTP client; a nil client gets the configured timeout.
func NewFetcher(cfg config.IngestionConfig, client *http.Client, logger *slog.Logger) *Fetcher {
	if client == nil {
		timeout := cfg.FetchTimeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	f := &Fetcher{
		client:    client,
		userAgent: cfg.UserAgent,
		maxItems:  cfg.MaxItemsPerFeed,
		logger:    logger,
	}
	if f.userAgent == "" {
		f.userAgent = defaultUserAgent
	}
	if f.maxItems <= 0 {
		f.maxItems = defaultMaxItems
	}
	return f
}

// Fetch downloads one feed and returns at most maxItems candidates in
// document order.
func (f *Fetcher) Fetch(ctx context.Context, source domain.FeedSource) ([]domain.CandidateItem, error) {
	parsed, err := f.fetchFeed(ctx, source.URL)
	if err != nil {
		return nil, err
	}

	items := make([]domain.CandidateItem, 0, min(len(parsed.Items), f.maxItems))
	for _, entry := range parsed.Items {
		if len(items) == f.maxItems {
			break
		}
		if entry == nil {
			continue
		}
		items = append(items, toCandidate(source.ID, entry))
	}

	f.logger.Debug("feed parsed",
		"feed", source.Name,
		"entries", len(parsed.Items),
		"kept", len(items),
	)
	return items, nil
}

func (f *Fetcher) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &FetchError{URL: feedURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	parsed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, &ParseError{URL: feedURL, Err: err}
	}
	return parsed, nil
}

func toCandidate(feedID int64, entry *gofeed.Item) domain.CandidateItem {
	var fields []string
	for _, raw := range []string{entry.Content, entry.Description, itunesSummary(entry)} {
		if strings.TrimSpace(raw) != "" {
			fields = append(fields, raw)
		}
	}

	return domain.CandidateItem{
		FeedID:      feedID,
		Title:       strings.Join(strings.Fields(htmlToText(entry.Title)), " "),
		Link:        entryLink(entry),
		Body:        longestText(fields),
		HTML:        strings.Join(fields, "\n"),
		PublishedAt: entryTime(entry),
		ImageURL:    extractImage(entry),
	}
}

func entryLink(entry *gofeed.Item) string {
	if link := strings.TrimSpace(entry.Link); link != "" {
		return link
	}
	for _, link := range entry.Links {
		if link = strings.TrimSpace(link); link != "" {
			return link
		}
	}
	if guid := strings.TrimSpace(entry.GUID); strings.HasPrefix(guid, "http://") || strings.HasPrefix(guid, "https://") {
		return guid
	}
	return ""
}

func entryTime(entry *gofeed.Item) time.Time {
	switch {
	case entry.PublishedParsed != nil:
		return entry.PublishedParsed.UTC()
	case entry.UpdatedParsed != nil:
		return entry.UpdatedParsed.UTC()
	default:
		return time.Time{}
	}
}

func itunesSummary(entry *gofeed.Item) string {
	if entry.ITunesExt == nil {
		return ""
	}
	return entry.ITunesExt.Summary
}
