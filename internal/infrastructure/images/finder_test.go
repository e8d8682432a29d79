package images

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name  string
	urls  []string
	err   error
	calls atomic.Int32
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Search(context.Context, string) ([]string, error) {
	s.calls.Add(1)
	return s.urls, s.err
}

func TestUnsplashSearch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/photos", r.URL.Path)
		assert.Equal(t, "solar power", r.URL.Query().Get("query"))
		assert.Equal(t, "Client-ID u-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"results":[{"urls":{"regular":"https://u/1.jpg"}},{"urls":{"regular":""}},{"urls":{"regular":"https://u/2.jpg"}}]}`))
	}))
	t.Cleanup(srv.Close)

	urls, err := NewUnsplash(srv.Client(), "u-key", srv.URL).Search(context.Background(), "solar power")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://u/1.jpg", "https://u/2.jpg"}, urls)
}

func TestPexelsSearch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "p-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"photos":[{"src":{"large":"https://p/1.jpg"}}]}`))
	}))
	t.Cleanup(srv.Close)

	urls, err := NewPexels(srv.Client(), "p-key", srv.URL+"/").Search(context.Background(), "cats")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://p/1.jpg"}, urls)
}

func TestPixabaySearch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "x-key", q.Get("key"))
		assert.Equal(t, "photo", q.Get("image_type"))
		_, _ = w.Write([]byte(`{"hits":[{"webformatURL":"https://x/1.jpg"}]}`))
	}))
	t.Cleanup(srv.Close)

	urls, err := NewPixabay(srv.Client(), "x-key", srv.URL).Search(context.Background(), "dogs")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://x/1.jpg"}, urls)
}

func TestProviderStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	_, err := NewUnsplash(srv.Client(), "bad", srv.URL).Search(context.Background(), "q")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.Equal(t, "unsplash", statusErr.Provider)
}

func TestFinderSkipsFailingAndEmptyProviders(t *testing.T) {
	t.Parallel()

	broken := &stubProvider{name: "broken", err: errors.New("boom")}
	empty := &stubProvider{name: "empty"}
	good := &stubProvider{name: "good", urls: []string{"https://img/1.jpg"}}
	never := &stubProvider{name: "never", urls: []string{"https://img/2.jpg"}}

	f := NewFinder([]Provider{broken, empty, good, never}, time.Hour, nil)
	urls, err := f.Search(context.Background(), "query")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img/1.jpg"}, urls)
	assert.Zero(t, never.calls.Load())
}

func TestFinderCachesUntilExpiry(t *testing.T) {
	t.Parallel()

	good := &stubProvider{name: "good", urls: []string{"https://img/1.jpg"}}
	f := NewFinder([]Provider{good}, time.Hour, nil)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := f.Search(context.Background(), "query")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, good.calls.Load())

	now = now.Add(time.Hour)
	_, err := f.Search(context.Background(), "query")
	require.NoError(t, err)
	assert.EqualValues(t, 2, good.calls.Load())
}

func TestFinderFallsBackToPlaceholder(t *testing.T) {
	t.Parallel()

	f := NewFinder([]Provider{&stubProvider{name: "broken", err: errors.New("down")}, Placeholder{}}, 0, nil)
	urls, err := f.Search(context.Background(), "business quarterly earnings")
	require.NoError(t, err)
	assert.Equal(t, []string{placeholderBusiness}, urls)

	_, err = NewFinder(nil, 0, nil).Search(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestPlaceholderTopics(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"technology gadgets":   placeholderTech,
		"finance markets":      placeholderBusiness,
		"fitness routines":     placeholderLifestyle,
		"sports championships": placeholderGeneral,
	}
	for query, want := range tests {
		urls, err := Placeholder{}.Search(context.Background(), query)
		require.NoError(t, err)
		assert.Equal(t, []string{want}, urls, query)
	}
}

func TestQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		title, category, want string
	}{
		{"Apple's new M5 chips are here, finally!", "Technology", "technology apples chips here"},
		{"The big AI race", "", "race"},
		{"A to Z", "", "technology"},
		{"", "Health", "health"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Query(tt.title, tt.category), tt.title)
	}
}
