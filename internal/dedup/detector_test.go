package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ContentFeed/internal/domain"
)

type stubArticles struct {
	byURL   map[string]domain.Article
	byTitle map[string]domain.Article
	err     error
}

func (s *stubArticles) FindByURL(_ context.Context, url string) (*domain.Article, error) {
	if s.err != nil {
		return nil, s.err
	}
	if a, ok := s.byURL[url]; ok {
		return &a, nil
	}
	return nil, nil
}

func (s *stubArticles) FindByTitle(_ context.Context, title string) (*domain.Article, error) {
	if s.err != nil {
		return nil, s.err
	}
	if a, ok := s.byTitle[title]; ok {
		return &a, nil
	}
	return nil, nil
}

func (s *stubArticles) InsertArticle(_ context.Context, a domain.Article) (domain.Article, error) {
	s.byURL[a.URL] = a
	s.byTitle[a.Title] = a
	return a, nil
}

func TestDetectorExactMatches(t *testing.T) {
	t.Parallel()

	store := &stubArticles{byURL: map[string]domain.Article{}, byTitle: map[string]domain.Article{}}
	d := NewDetector(store)
	ctx := context.Background()

	known, err := d.IsKnownURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.False(t, known)

	_, _ = store.InsertArticle(ctx, domain.Article{URL: "https://example.com/a", Title: "Ten tips for remote work"})

	known, err = d.IsKnownURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, known, "a just inserted article must be visible")

	dup, err := d.IsDuplicate(ctx, "Ten tips for remote work")
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = d.IsDuplicate(ctx, "Ten Tips For Remote Work")
	require.NoError(t, err)
	assert.False(t, dup, "title matching is exact")
}

func TestDetectorEmptyInputIsNeverDuplicate(t *testing.T) {
	t.Parallel()

	d := NewDetector(&stubArticles{err: errors.New("must not be called")})

	known, err := d.IsKnownURL(context.Background(), "  ")
	require.NoError(t, err)
	assert.False(t, known)

	dup, err := d.IsDuplicate(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestDetectorPropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	d := NewDetector(&stubArticles{err: boom})

	_, err := d.IsKnownURL(context.Background(), "https://example.com/a")
	assert.ErrorIs(t, err, boom)

	_, err = d.IsDuplicate(context.Background(), "A title")
	assert.ErrorIs(t, err, boom)
}
