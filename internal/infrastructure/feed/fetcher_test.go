package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/feeds"

	"ContentFeed/internal/config"
	"ContentFeed/internal/domain"
)

var published = time.Date(2025, time.November, 8, 9, 30, 0, 0, time.UTC)

func sampleFeed(items int) *feeds.Feed {
	f := &feeds.Feed{
		Title:       "Example Tech",
		Link:        &feeds.Link{Href: "https://example.com"},
		Description: "Tech news",
		Created:     published,
	}
	for i := 0; i < items; i++ {
		f.Items = append(f.Items, &feeds.Item{
			Title:       fmt.Sprintf("Story number %d about startups", i),
			Link:        &feeds.Link{Href: fmt.Sprintf("https://example.com/story-%d", i)},
			Description: "Short teaser.",
			Content:     `<p>The <b>long</b> version of the story, with more words than the teaser.</p><p><img src="https://img.example.com/` + fmt.Sprint(i) + `.jpg"></p>`,
			Created:     published.Add(-time.Duration(i) * time.Hour),
		})
	}
	return f
}

func serve(t *testing.T, status int, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "ContentFeedTest/1.0" {
			t.Errorf("unexpected user agent %q", ua)
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher(srv *httptest.Server, maxItems int) *Fetcher {
	return NewFetcher(config.IngestionConfig{UserAgent: "ContentFeedTest/1.0", MaxItemsPerFeed: maxItems}, srv.Client(), nil)
}

func TestFetchRSS(t *testing.T) {
	t.Parallel()

	rss, err := sampleFeed(2).ToRss()
	if err != nil {
		t.Fatalf("render rss: %v", err)
	}
	srv := serve(t, http.StatusOK, "application/rss+xml", rss)

	items, err := newTestFetcher(srv, 10).Fetch(context.Background(), domain.FeedSource{ID: 7, Name: "Example", URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.FeedID != 7 {
		t.Fatalf("unexpected feed id: %d", first.FeedID)
	}
	if first.Title != "Story number 0 about startups" {
		t.Fatalf("unexpected title: %q", first.Title)
	}
	if first.Link != "https://example.com/story-0" {
		t.Fatalf("unexpected link: %q", first.Link)
	}
	if first.Body != "The long version of the story, with more words than the teaser." {
		t.Fatalf("body should be the longest field as text, got %q", first.Body)
	}
	if first.ImageURL != "https://img.example.com/0.jpg" {
		t.Fatalf("unexpected image: %q", first.ImageURL)
	}
	if !first.PublishedAt.Equal(published) {
		t.Fatalf("unexpected publish time: %v", first.PublishedAt)
	}
}

func TestFetchAtomAndJSON(t *testing.T) {
	t.Parallel()

	f := sampleFeed(1)
	atom, err := f.ToAtom()
	if err != nil {
		t.Fatalf("render atom: %v", err)
	}
	jsonFeed, err := f.ToJSON()
	if err != nil {
		t.Fatalf("render json: %v", err)
	}

	for name, body := range map[string]string{"atom": atom, "json": jsonFeed} {
		srv := serve(t, http.StatusOK, "application/xml", body)
		items, err := newTestFetcher(srv, 10).Fetch(context.Background(), domain.FeedSource{URL: srv.URL})
		if err != nil {
			t.Fatalf("%s: Fetch error: %v", name, err)
		}
		if len(items) != 1 || items[0].Link != "https://example.com/story-0" {
			t.Fatalf("%s: unexpected items: %+v", name, items)
		}
		if !strings.Contains(items[0].Body, "long version") {
			t.Fatalf("%s: unexpected body: %q", name, items[0].Body)
		}
	}
}

func TestFetchCapsItems(t *testing.T) {
	t.Parallel()

	rss, err := sampleFeed(15).ToRss()
	if err != nil {
		t.Fatalf("render rss: %v", err)
	}
	srv := serve(t, http.StatusOK, "application/rss+xml", rss)

	items, err := newTestFetcher(srv, 0).Fetch(context.Background(), domain.FeedSource{URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != defaultMaxItems {
		t.Fatalf("expected %d items, got %d", defaultMaxItems, len(items))
	}
	if items[9].Link != "https://example.com/story-9" {
		t.Fatalf("items must keep document order, got %q", items[9].Link)
	}
}

func TestFetchErrors(t *testing.T) {
	t.Parallel()

	notFound := serve(t, http.StatusNotFound, "text/plain", "missing")
	_, err := newTestFetcher(notFound, 10).Fetch(context.Background(), domain.FeedSource{URL: notFound.URL})
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected FetchError with 404, got %v", err)
	}

	garbage := serve(t, http.StatusOK, "text/html", "<html><body>not a feed</body></html>")
	_, err = newTestFetcher(garbage, 10).Fetch(context.Background(), domain.FeedSource{URL: garbage.URL})
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()
	_, err = NewFetcher(config.IngestionConfig{}, nil, nil).Fetch(context.Background(), domain.FeedSource{URL: closedURL})
	if !errors.As(err, &fetchErr) || fetchErr.StatusCode != 0 {
		t.Fatalf("expected transport FetchError, got %v", err)
	}
}

func TestFetchMediaImagesAndMissingDates(t *testing.T) {
	t.Parallel()

	rss := `<?xml version="1.0"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
<channel>
  <title>Media</title>
  <link>https://media.example.com</link>
  <description>d</description>
  <item>
    <title>Enclosure &amp; friends</title>
    <link>https://media.example.com/a</link>
    <description>Plain text description</description>
    <enclosure url="https://cdn.example.com/a.png" length="10" type="image/png"/>
  </item>
  <item>
    <title>Thumbnail only</title>
    <guid>https://media.example.com/b</guid>
    <description>Another description</description>
    <media:thumbnail url="https://cdn.example.com/b.jpg"/>
  </item>
</channel>
</rss>`
	srv := serve(t, http.StatusOK, "application/rss+xml", rss)

	items, err := newTestFetcher(srv, 10).Fetch(context.Background(), domain.FeedSource{URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Title != "Enclosure & friends" || items[0].ImageURL != "https://cdn.example.com/a.png" {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if !items[0].PublishedAt.IsZero() {
		t.Fatalf("missing pubDate should stay zero, got %v", items[0].PublishedAt)
	}
	if items[1].Link != "https://media.example.com/b" || items[1].ImageURL != "https://cdn.example.com/b.jpg" {
		t.Fatalf("unexpected second item: %+v", items[1])
	}
}

func TestHTMLToText(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                                       "",
		"plain   text":                           "plain text",
		"<p>One</p><p>Two &amp; three</p>":       "One Two & three",
		"<div>Keep<script>drop()</script></div>": "Keep",
	}
	for in, want := range tests {
		if got := htmlToText(in); got != want {
			t.Fatalf("htmlToText(%q) = %q, want %q", in, got, want)
		}
	}
}
