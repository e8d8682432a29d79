package domain

import (
	"errors"
	"time"
)

// FeedSource is a syndication feed configured for ingestion.
type FeedSource struct {
	ID          int64
	Name        string
	URL         string
	Category    string
	Source      string
	Active      bool
	LastFetched *time.Time
}

// CandidateItem is one entry parsed out of a fetched feed, not yet an Article.
type CandidateItem struct {
	FeedID      int64
	Title       string
	Link        string
	Body        string
	HTML        string
	PublishedAt time.Time
	ImageURL    string
}

// Enrichment kinds produced by the AI gateway.
const (
	EnrichmentSummary  = "summary"
	EnrichmentTags     = "tags"
	EnrichmentCategory = "category"
	EnrichmentRewrite  = "rewrite"
)

// Generation is the outcome of one enrichment with its provenance.
type Generation struct {
	Text     string
	Tags     []string
	Provider string
	Degraded bool
}

// Article is the persisted, fully enriched record.
type Article struct {
	ID             int64
	FeedID         int64
	Title          string
	Summary        string
	Content        string
	URL            string
	AffiliateURL   string
	ImageURL       string
	Source         string
	Category       string
	Tags           []string
	Providers      map[string]string
	PublishedAt    time.Time
	CreatedAt      time.Time
	LikesCount     int
	BookmarksCount int
}

// RunStatus enumerates ingestion run outcomes.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunError   RunStatus = "error"
)

// IngestionLogEntry summarizes one orchestrator run.
type IngestionLogEntry struct {
	ID             int64     `json:"id"`
	RunID          string    `json:"run_id"`
	Status         RunStatus `json:"status"`
	ProcessedCount int       `json:"processed_count"`
	FilteredCount  int       `json:"filtered_count"`
	ErrorCount     int       `json:"error_count"`
	DurationMs     int64     `json:"duration_ms"`
	Message        string    `json:"message"`
	Details        string    `json:"details,omitempty"`
	StartedAt      time.Time `json:"started_at,omitzero"`
	CreatedAt      time.Time `json:"created_at"`
}

// ErrDuplicateArticle is returned by stores when an article URL is already
// persisted.
var ErrDuplicateArticle = errors.New("article already stored")
