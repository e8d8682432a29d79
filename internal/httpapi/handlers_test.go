package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ContentFeed/internal/domain"
	"ContentFeed/internal/filter"
	"ContentFeed/internal/infrastructure/llm"
	"ContentFeed/internal/metrics"
	"ContentFeed/internal/ratelimit"
	"ContentFeed/internal/usecase"
)

var fixedNow = time.Date(2025, 11, 8, 12, 0, 0, 0, time.UTC)

type fakeIngester struct {
	report  usecase.Report
	err     error
	running bool
	ctxErr  error
}

func (f *fakeIngester) Run(ctx context.Context) (usecase.Report, error) {
	f.ctxErr = ctx.Err()
	return f.report, f.err
}

func (f *fakeIngester) Running() bool { return f.running }

type memoryRuleStore struct {
	mu      sync.Mutex
	rules   *domain.FilterRuleSet
	saveErr error
}

func (s *memoryRuleStore) LoadRules(context.Context) (*domain.FilterRuleSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rules, nil
}

func (s *memoryRuleStore) SaveRules(_ context.Context, rules domain.FilterRuleSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.rules = &rules
	return nil
}

type fakeLogs struct {
	entries []domain.IngestionLogEntry
	limit   int
	err     error
}

func (f *fakeLogs) ListLogs(_ context.Context, limit int) ([]domain.IngestionLogEntry, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.entries) {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

type fakeRateLimits struct {
	statuses []llm.ProviderStatus
	resets   []string
}

func (f *fakeRateLimits) RateLimits() []llm.ProviderStatus { return f.statuses }

func (f *fakeRateLimits) ResetRateLimit(provider string) bool {
	if provider != "" && provider != "openrouter" && provider != "mistral" {
		return false
	}
	f.resets = append(f.resets, provider)
	return true
}

func do(t *testing.T, h http.Handler, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	res := rec.Result()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	res, raw := do(t, New(Deps{}).Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(raw))
}

func TestIngestReturnsReport(t *testing.T) {
	t.Parallel()

	ing := &fakeIngester{report: usecase.Report{
		RunID:     "run-1",
		Status:    domain.RunPartial,
		Processed: 3,
		Filtered:  4,
		Errors:    []string{"feed Example: boom"},
		Duration:  1500 * time.Millisecond,
	}}
	h := New(Deps{Ingester: ing}).Handler()

	res, raw := do(t, h, http.MethodPost, "/api/v1/ingest", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))

	body := decode[ingestResponse](t, raw)
	assert.True(t, body.Success)
	assert.Equal(t, "run-1", body.Report.RunID)
	assert.Equal(t, 3, body.Report.Processed)
	assert.Equal(t, 4, body.Report.Filtered)
	assert.Equal(t, int64(1500), body.DurationMs)
	assert.NoError(t, ing.ctxErr)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(raw, &flat))
	assert.EqualValues(t, 3, flat["processed"])
	assert.EqualValues(t, 4, flat["filtered"])
	assert.Len(t, flat["errors"], 1)
}

func TestIngestConflictsWhileRunning(t *testing.T) {
	t.Parallel()

	ing := &fakeIngester{err: usecase.ErrRunInProgress, running: true}
	h := New(Deps{Ingester: ing}).Handler()

	res, raw := do(t, h, http.MethodPost, "/api/v1/ingest", "")
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	body := decode[errorResponse](t, raw)
	assert.False(t, body.Success)
	assert.Contains(t, body.Error, "in progress")

	res, raw = do(t, h, http.MethodGet, "/api/v1/ingest", "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"running":true}`, string(raw))
}

func TestIngestFailureIsServerError(t *testing.T) {
	t.Parallel()

	ing := &fakeIngester{
		report: usecase.Report{RunID: "run-2", Status: domain.RunError},
		err:    errors.New("list feeds: database is locked"),
	}
	res, raw := do(t, New(Deps{Ingester: ing}).Handler(), http.MethodPost, "/api/v1/ingest", "")
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)

	body := decode[ingestResponse](t, raw)
	assert.False(t, body.Success)
	assert.Equal(t, "run-2", body.RunID)
	assert.Empty(t, body.Errors)
	assert.Contains(t, body.Error, "database is locked")
}

func TestFilterConfigLifecycle(t *testing.T) {
	t.Parallel()

	store := &memoryRuleStore{}
	manager := filter.NewManager(store, nil)
	require.NoError(t, manager.Init(context.Background()))
	h := New(Deps{Filters: manager}).Handler()

	res, raw := do(t, h, http.MethodGet, "/api/v1/filter-config", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	current := decode[filterConfigResponse](t, raw)
	assert.Equal(t, filter.DefaultRules().MinTitleLength, current.Config.MinTitleLength)

	update := `{"config":{
		"MIN_TITLE_LENGTH": 5,
		"MAX_TITLE_LENGTH": 120,
		"EXCLUDE_KEYWORDS": ["crypto", " "],
		"INCLUDE_KEYWORDS": [],
		"MAX_AGE_HOURS": 48,
		"SPAM_INDICATORS": ["free\\s+money"]
	}}`
	res, raw = do(t, h, http.MethodPost, "/api/v1/filter-config", update)
	require.Equal(t, http.StatusOK, res.StatusCode, string(raw))
	updated := decode[filterConfigResponse](t, raw)
	assert.True(t, updated.Success)
	assert.Equal(t, 120, updated.Config.MaxTitleLength)
	assert.Equal(t, []string{"crypto"}, updated.Config.ExcludeKeywords)
	require.NotNil(t, store.rules)
	assert.Equal(t, 48, store.rules.MaxAgeHours)
	assert.Equal(t, 5, manager.Current().MinTitleLength)

	res, raw = do(t, h, http.MethodPut, "/api/v1/filter-config", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	reset := decode[filterConfigResponse](t, raw)
	assert.Equal(t, filter.DefaultRules().MaxTitleLength, reset.Config.MaxTitleLength)
	assert.Equal(t, filter.DefaultRules().MaxAgeHours, store.rules.MaxAgeHours)
}

func TestFilterConfigRejectsBadInput(t *testing.T) {
	t.Parallel()

	manager := filter.NewManager(&memoryRuleStore{}, nil)
	h := New(Deps{Filters: manager}).Handler()
	before := manager.Current()

	cases := map[string]struct {
		body string
		want string
	}{
		"malformed":      {body: `{"config":`, want: "invalid JSON"},
		"missing config": {body: `{}`, want: "config is required"},
		"missing field": {
			body: `{"config":{"MIN_TITLE_LENGTH":5,"MAX_TITLE_LENGTH":50,"EXCLUDE_KEYWORDS":[],"INCLUDE_KEYWORDS":[],"SPAM_INDICATORS":[]}}`,
			want: "MAX_AGE_HOURS",
		},
		"inverted bounds": {
			body: `{"config":{"MIN_TITLE_LENGTH":50,"MAX_TITLE_LENGTH":50,"EXCLUDE_KEYWORDS":[],"INCLUDE_KEYWORDS":[],"MAX_AGE_HOURS":1,"SPAM_INDICATORS":[]}}`,
			want: "less than",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res, raw := do(t, h, http.MethodPost, "/api/v1/filter-config", tc.body)
			assert.Equal(t, http.StatusBadRequest, res.StatusCode)
			body := decode[errorResponse](t, raw)
			assert.False(t, body.Success)
			assert.Contains(t, body.Error, tc.want)
		})
	}
	assert.Equal(t, before, manager.Current())
}

func TestFilterConfigSaveFailure(t *testing.T) {
	t.Parallel()

	manager := filter.NewManager(&memoryRuleStore{saveErr: errors.New("disk full")}, nil)
	h := New(Deps{Filters: manager}).Handler()

	body := `{"config":{"MIN_TITLE_LENGTH":5,"MAX_TITLE_LENGTH":50,"EXCLUDE_KEYWORDS":[],"INCLUDE_KEYWORDS":[],"MAX_AGE_HOURS":1,"SPAM_INDICATORS":[]}}`
	res, _ := do(t, h, http.MethodPost, "/api/v1/filter-config", body)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, filter.DefaultRules().MaxTitleLength, manager.Current().MaxTitleLength)

	res, _ = do(t, h, http.MethodPut, "/api/v1/filter-config", "")
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
}

func TestIngestionLogs(t *testing.T) {
	t.Parallel()

	logs := &fakeLogs{}
	for i := range 30 {
		logs.entries = append(logs.entries, domain.IngestionLogEntry{ID: int64(30 - i), Status: domain.RunSuccess})
	}
	h := New(Deps{Logs: logs}).Handler()

	res, raw := do(t, h, http.MethodGet, "/api/v1/ingestion-logs", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, decode[logsResponse](t, raw).Logs, defaultLogLimit)

	res, raw = do(t, h, http.MethodGet, "/api/v1/ingestion-logs?limit=5", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	got := decode[logsResponse](t, raw).Logs
	require.Len(t, got, 5)
	assert.Equal(t, int64(30), got[0].ID)

	_, _ = do(t, h, http.MethodGet, "/api/v1/ingestion-logs?limit=1000", "")
	assert.Equal(t, maxLogLimit, logs.limit)

	res, _ = do(t, h, http.MethodGet, "/api/v1/ingestion-logs?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestIngestionLogsEmptyAndFailing(t *testing.T) {
	t.Parallel()

	res, raw := do(t, New(Deps{Logs: &fakeLogs{}}).Handler(), http.MethodGet, "/api/v1/ingestion-logs", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"success":true,"logs":[]}`, string(raw))

	res, _ = do(t, New(Deps{Logs: &fakeLogs{err: errors.New("closed")}}).Handler(), http.MethodGet, "/api/v1/ingestion-logs", "")
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
}

func TestRateLimits(t *testing.T) {
	t.Parallel()

	reporter := &fakeRateLimits{statuses: []llm.ProviderStatus{
		{Provider: "openrouter", Configured: true, Status: ratelimit.Status{
			Remaining: 0, MaxRequests: 20, Window: time.Minute, TimeUntilReset: 42 * time.Second, Limited: true,
		}},
		{Provider: "mistral", Configured: false, Status: ratelimit.Status{
			Remaining: 3, MaxRequests: 3, Window: time.Minute,
		}},
	}}
	h := New(Deps{RateLimits: reporter, Now: func() time.Time { return fixedNow }}).Handler()

	res, raw := do(t, h, http.MethodGet, "/api/v1/rate-limits", "")
	require.Equal(t, http.StatusOK, res.StatusCode)

	body := decode[rateLimitsResponse](t, raw)
	assert.True(t, body.Success)
	assert.True(t, body.Timestamp.Equal(fixedNow))
	assert.Equal(t, providerLimit{
		Configured: true, Remaining: 0, MaxRequests: 20, WindowMs: 60000, TimeUntilResetMs: 42000, IsRateLimited: true,
	}, body.Providers["openrouter"])
	assert.Equal(t, 3, body.Providers["mistral"].Remaining)
	assert.False(t, body.Providers["mistral"].IsRateLimited)
}

func TestRateLimitsReset(t *testing.T) {
	t.Parallel()

	reporter := &fakeRateLimits{}
	h := New(Deps{RateLimits: reporter}).Handler()

	res, raw := do(t, h, http.MethodDelete, "/api/v1/rate-limits/mistral", "")
	require.Equal(t, http.StatusOK, res.StatusCode, string(raw))
	assert.True(t, decode[rateLimitsResponse](t, raw).Success)

	res, _ = do(t, h, http.MethodDelete, "/api/v1/rate-limits", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, []string{"mistral", ""}, reporter.resets)

	res, raw = do(t, h, http.MethodDelete, "/api/v1/rate-limits/nobody", "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, decode[errorResponse](t, raw).Error, "nobody")
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.Run(string(domain.RunSuccess), time.Second)

	res, raw := do(t, New(Deps{Metrics: m.Handler()}).Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(raw), "contentfeed_runs_total")
}

func TestDisabledRoutesAreNotFound(t *testing.T) {
	t.Parallel()

	h := New(Deps{}).Handler()
	for _, path := range []string{"/api/v1/ingest", "/api/v1/filter-config", "/api/v1/rate-limits", "/metrics"} {
		res, _ := do(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, res.StatusCode, path)
	}
}
