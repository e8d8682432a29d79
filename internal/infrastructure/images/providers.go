package images

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	unsplashBaseURL = "https://api.unsplash.com"
	pexelsBaseURL   = "https://api.pexels.com/v1"
	pixabayBaseURL  = "https://pixabay.com/api"
	perPage         = "5"
)

// Provider searches one stock photo source.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) ([]string, error)
}

// StatusError is returned when a photo API answers with a non-2xx status.
type StatusError struct {
	Provider   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.StatusCode)
}

// Unsplash searches api.unsplash.com.
type Unsplash struct {
	client  *http.Client
	key     string
	baseURL string
}

// NewUnsplash returns an Unsplash provider; an empty baseURL uses the public API.
func NewUnsplash(client *http.Client, key, baseURL string) *Unsplash {
	return &Unsplash{client: orDefault(client), key: key, baseURL: baseOr(baseURL, unsplashBaseURL)}
}

func (u *Unsplash) Name() string { return "unsplash" }

func (u *Unsplash) Search(ctx context.Context, query string) ([]string, error) {
	params := url.Values{"query": {query}, "per_page": {perPage}, "orientation": {"landscape"}}
	header := http.Header{"Authorization": {"Client-ID " + u.key}}

	var payload struct {
		Results []struct {
			URLs struct {
				Regular string `json:"regular"`
			} `json:"urls"`
		} `json:"results"`
	}
	if err := getJSON(ctx, u.client, u.Name(), u.baseURL+"/search/photos?"+params.Encode(), header, &payload); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(payload.Results))
	for _, r := range payload.Results {
		out = appendURL(out, r.URLs.Regular)
	}
	return out, nil
}

// Pexels searches api.pexels.com.
type Pexels struct {
	client  *http.Client
	key     string
	baseURL string
}

func NewPexels(client *http.Client, key, baseURL string) *Pexels {
	return &Pexels{client: orDefault(client), key: key, baseURL: baseOr(baseURL, pexelsBaseURL)}
}

func (p *Pexels) Name() string { return "pexels" }

func (p *Pexels) Search(ctx context.Context, query string) ([]string, error) {
	params := url.Values{"query": {query}, "per_page": {perPage}, "orientation": {"landscape"}}
	header := http.Header{"Authorization": {p.key}}

	var payload struct {
		Photos []struct {
			Src struct {
				Large string `json:"large"`
			} `json:"src"`
		} `json:"photos"`
	}
	if err := getJSON(ctx, p.client, p.Name(), p.baseURL+"/search?"+params.Encode(), header, &payload); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(payload.Photos))
	for _, photo := range payload.Photos {
		out = appendURL(out, photo.Src.Large)
	}
	return out, nil
}

// Pixabay searches pixabay.com; the key travels as a query parameter.
type Pixabay struct {
	client  *http.Client
	key     string
	baseURL string
}

func NewPixabay(client *http.Client, key, baseURL string) *Pixabay {
	return &Pixabay{client: orDefault(client), key: key, baseURL: baseOr(baseURL, pixabayBaseURL)}
}

func (p *Pixabay) Name() string { return "pixabay" }

func (p *Pixabay) Search(ctx context.Context, query string) ([]string, error) {
	params := url.Values{
		"key":         {p.key},
		"q":           {query},
		"per_page":    {perPage},
		"orientation": {"horizontal"},
		"image_type":  {"photo"},
	}

	var payload struct {
		Hits []struct {
			WebformatURL string `json:"webformatURL"`
		} `json:"hits"`
	}
	if err := getJSON(ctx, p.client, p.Name(), p.baseURL+"/?"+params.Encode(), nil, &payload); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(payload.Hits))
	for _, hit := range payload.Hits {
		out = appendURL(out, hit.WebformatURL)
	}
	return out, nil
}

// Placeholder never fails; it picks a stock photo by the topic of the query.
type Placeholder struct{}

const (
	placeholderTech      = "https://images.unsplash.com/photo-1518709268805-4e9042af2176?w=800&h=400&fit=crop&crop=center"
	placeholderBusiness  = "https://images.unsplash.com/photo-1551288049-bebda4e38f71?w=800&h=400&fit=crop&crop=center"
	placeholderLifestyle = "https://images.unsplash.com/photo-1460925895917-afdab827c52f?w=800&h=400&fit=crop&crop=center"
	placeholderGeneral   = "https://images.unsplash.com/photo-1485827404703-89b55fcc595e?w=800&h=400&fit=crop&crop=center"
)

func (Placeholder) Name() string { return "placeholder" }

func (Placeholder) Search(_ context.Context, query string) ([]string, error) {
	q := strings.ToLower(query)
	switch {
	case containsAny(q, "tech", "ai", "software"):
		return []string{placeholderTech}, nil
	case containsAny(q, "business", "finance", "economy"):
		return []string{placeholderBusiness}, nil
	case containsAny(q, "lifestyle", "health", "fitness"):
		return []string{placeholderLifestyle}, nil
	default:
		return []string{placeholderGeneral}, nil
	}
}

func getJSON(ctx context.Context, client *http.Client, provider, endpoint string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", provider, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Provider: provider, StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", provider, err)
	}
	return nil
}

func appendURL(out []string, raw string) []string {
	if raw = strings.TrimSpace(raw); raw != "" {
		out = append(out, raw)
	}
	return out
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func orDefault(client *http.Client) *http.Client {
	if client == nil {
		return http.DefaultClient
	}
	return client
}

func baseOr(base, fallback string) string {
	if base == "" {
		return fallback
	}
	return strings.TrimRight(base, "/")
}
