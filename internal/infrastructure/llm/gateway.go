package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"ContentFeed/internal/config"
	"ContentFeed/internal/domain"
	"ContentFeed/internal/metrics"
	"ContentFeed/internal/ports"
	"ContentFeed/internal/ratelimit"
)

// ProviderFallback is the provenance of degraded defaults.
const ProviderFallback = "fallback"

const (
	defaultAttempts  = 3
	defaultBaseDelay = time.Second
)

// Provider is one slot in the failover chain.
type Provider struct {
	Backend     Backend
	LimiterKey  string
	MaxRequests int
	Window      time.Duration
	// Metered backends are locked out for the rest of the window when they
	// answer 429. Multi-model aggregators are not: their 429 only means
	// every free model was busy on this call.
	Metered bool
}

// Gateway fans enrichment requests out over an ordered provider chain, each
// call guarded by the shared rate limiter.
type Gateway struct {
	providers []Provider
	limiter   *ratelimit.Limiter

	attempts  int
	baseDelay time.Duration
	sleep     func(context.Context, time.Duration) error
	intn      func(int) int

	metrics *metrics.Metrics
	logger  *slog.Logger
}

var _ ports.Enricher = (*Gateway)(nil)

// Option customizes a Gateway.
type Option func(*Gateway)

// WithRetry sets the attempt count and the first backoff delay for
// summary, tags and category generation.
func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(g *Gateway) {
		if attempts > 0 {
			g.attempts = attempts
		}
		if baseDelay >= 0 {
			g.baseDelay = baseDelay
		}
	}
}

// WithSleeper overrides how backoff waits are performed (useful for tests).
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(g *Gateway) {
		if sleep != nil {
			g.sleep = sleep
		}
	}
}

// WithRandom overrides the source used to pick rewrite target lengths.
// intn must return a value in [0, n).
func WithRandom(intn func(int) int) Option {
	return func(g *Gateway) {
		if intn != nil {
			g.intn = intn
		}
	}
}

// WithMetrics records provider outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithLogger sets the gateway logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGateway wires providers, in failover order, to the limiter.
func NewGateway(limiter *ratelimit.Limiter, providers []Provider, opts ...Option) *Gateway {
	if limiter == nil {
		limiter = ratelimit.New()
	}
	g := &Gateway{
		providers: providers,
		limiter:   limiter,
		attempts:  defaultAttempts,
		baseDelay: defaultBaseDelay,
		sleep:     sleepContext,
		intn:      rand.IntN,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ProvidersFromConfig builds chat backends for every configured provider.
func ProvidersFromConfig(cfgs []config.ProviderConfig, logger *slog.Logger) []Provider {
	providers := make([]Provider, 0, len(cfgs))
	for _, cfg := range cfgs {
		providers = append(providers, Provider{
			Backend:     NewChatBackend(cfg, logger),
			LimiterKey:  LimiterKey(cfg.Name),
			MaxRequests: cfg.MaxRequests,
			Window:      cfg.Window,
			Metered:     len(cfg.Models) <= 1,
		})
	}
	return providers
}

// LimiterKey is the rate limiter key used for a provider name.
func LimiterKey(provider string) string {
	return provider + "-api"
}

// ProviderStatus is the limiter view of one provider slot.
type ProviderStatus struct {
	Provider   string
	Configured bool
	ratelimit.Status
}

// RateLimits reports the remaining budget of every provider in chain order
// without consuming any of it.
func (g *Gateway) RateLimits() []ProviderStatus {
	out := make([]ProviderStatus, 0, len(g.providers))
	for _, p := range g.providers {
		out = append(out, ProviderStatus{
			Provider:   p.Backend.Name(),
			Configured: p.Backend.Configured(),
			Status:     g.limiter.Status(p.LimiterKey, p.MaxRequests, p.Window),
		})
	}
	return out
}

// ResetRateLimit clears the limiter state of the named provider, or of
// every provider when name is empty. It reports whether name is part of
// the chain.
func (g *Gateway) ResetRateLimit(name string) bool {
	if name == "" {
		g.limiter.Reset()
		g.logger.Info("rate limits reset", "provider", "all")
		return true
	}
	for _, p := range g.providers {
		if p.Backend != nil && p.Backend.Name() == name {
			g.limiter.ResetKey(p.LimiterKey)
			g.logger.Info("rate limits reset", "provider", name)
			return true
		}
	}
	return false
}

// Summarize produces a 2-3 sentence summary.
func (g *Gateway) Summarize(ctx context.Context, item domain.CandidateItem) (domain.Generation, error) {
	content := itemText(item)
	req := Request{
		System:      summarySystemPrompt,
		Prompt:      summaryPrompt(content),
		MaxTokens:   150,
		Temperature: 0.7,
	}
	return g.withRetry(ctx, domain.EnrichmentSummary, req,
		func(text string) (domain.Generation, error) {
			return domain.Generation{Text: text}, nil
		},
		func() domain.Generation {
			return domain.Generation{Text: truncateText(content, fallbackSummaryLen)}
		})
}

// GenerateTags produces up to eight topical tags.
func (g *Gateway) GenerateTags(ctx context.Context, item domain.CandidateItem) (domain.Generation, error) {
	req := Request{
		Prompt:      tagsPrompt(itemText(item)),
		MaxTokens:   100,
		Temperature: 0.5,
	}
	return g.withRetry(ctx, domain.EnrichmentTags, req,
		func(text string) (domain.Generation, error) {
			tags := parseTags(text)
			if len(tags) == 0 {
				return domain.Generation{}, fmt.Errorf("%w: no tags in response", ErrProviderFailed)
			}
			return domain.Generation{Text: strings.Join(tags, ", "), Tags: tags}, nil
		},
		func() domain.Generation {
			return domain.Generation{Text: fallbackTag, Tags: []string{fallbackTag}}
		})
}

// Categorize assigns a single category.
func (g *Gateway) Categorize(ctx context.Context, item domain.CandidateItem) (domain.Generation, error) {
	req := Request{
		Prompt:      categoryPrompt(itemText(item)),
		MaxTokens:   50,
		Temperature: 0.3,
	}
	return g.withRetry(ctx, domain.EnrichmentCategory, req,
		func(text string) (domain.Generation, error) {
			category, err := parseCategory(text)
			if err != nil {
				return domain.Generation{}, fmt.Errorf("%w: %v", ErrProviderFailed, err)
			}
			return domain.Generation{Text: category}, nil
		},
		func() domain.Generation {
			return domain.Generation{Text: fallbackCategory}
		})
}

// Rewrite produces an original article of a length derived from the
// source. It does not retry; any failure is returned.
func (g *Gateway) Rewrite(ctx context.Context, item domain.CandidateItem, source string) (domain.Generation, error) {
	content := itemText(item)
	original := wordCount(content)
	target := TargetWordCount(original, g.intn)

	req := Request{
		Prompt:      rewritePrompt(item.Title, source, content, original, target),
		MaxTokens:   RewriteMaxTokens(target),
		Temperature: 0.7,
	}

	gen, err := g.complete(ctx, domain.EnrichmentRewrite, req)
	if err != nil {
		return domain.Generation{}, err
	}
	gen.Text = NormalizeRewrite(gen.Text)
	if gen.Text == "" {
		return domain.Generation{}, fmt.Errorf("%w: empty rewrite", ErrProviderFailed)
	}
	g.logger.Debug("article rewritten",
		"provider", gen.Provider,
		"original_words", original,
		"target_words", target,
		"words", wordCount(gen.Text),
	)
	return gen, nil
}

// TargetWordCount picks the rewrite length: short sources grow to 200-299
// words, long ones shrink to 600-799, the rest stay within 20% (min 100).
func TargetWordCount(original int, intn func(int) int) int {
	switch {
	case original < 50:
		return 200 + intn(100)
	case original > 1000:
		return 600 + intn(200)
	}
	target := original
	if variance := original / 5; variance > 0 {
		target = original - variance + intn(2*variance)
	}
	return max(target, 100)
}

// RewriteMaxTokens is the completion budget for a target word count.
func RewriteMaxTokens(target int) int {
	return max(800, target*3/2)
}

func (g *Gateway) withRetry(
	ctx context.Context,
	kind string,
	req Request,
	parse func(string) (domain.Generation, error),
	fallback func() domain.Generation,
) (domain.Generation, error) {
	for attempt := 0; attempt < g.attempts; attempt++ {
		gen, err := g.complete(ctx, kind, req)
		if err == nil {
			parsed, perr := parse(gen.Text)
			if perr != nil {
				return domain.Generation{}, fmt.Errorf("%s via %s: %w", kind, gen.Provider, perr)
			}
			parsed.Provider = gen.Provider
			return parsed, nil
		}
		if !errors.Is(err, ErrAllProvidersRateLimited) {
			return domain.Generation{}, err
		}
		if attempt == g.attempts-1 {
			break
		}

		delay := g.baseDelay << attempt
		g.logger.Info("all providers rate limited, backing off",
			"enrichment", kind,
			"attempt", attempt+1,
			"delay", delay,
		)
		if err := g.sleep(ctx, delay); err != nil {
			return domain.Generation{}, err
		}
	}

	g.logger.Warn("providers still rate limited, using default", "enrichment", kind)
	gen := fallback()
	gen.Provider = ProviderFallback
	gen.Degraded = true
	return gen, nil
}

// complete walks the provider chain once.
func (g *Gateway) complete(ctx context.Context, kind string, req Request) (domain.Generation, error) {
	var (
		configured  int
		attempted   int
		otherFailed bool
		lastErr     error
	)

	for _, p := range g.providers {
		if p.Backend == nil || !p.Backend.Configured() {
			continue
		}
		configured++
		name := p.Backend.Name()

		if !g.limiter.Allow(p.LimiterKey, p.MaxRequests, p.Window) {
			g.metrics.ProviderRequest(name, "rate_limited")
			g.logger.Debug("provider rate limited, skipping", "provider", name, "enrichment", kind)
			continue
		}

		attempted++
		text, err := p.Backend.Complete(ctx, req)
		if err == nil {
			g.metrics.ProviderRequest(name, "ok")
			return domain.Generation{Text: text, Provider: name}, nil
		}
		lastErr = err

		if errors.Is(err, ErrProviderRateLimited) {
			g.metrics.ProviderRequest(name, "rate_limited")
			if p.Metered {
				g.limiter.ForceExhaust(p.LimiterKey, p.Window)
				g.logger.Warn("provider returned rate limit, exhausting key", "provider", name, "enrichment", kind)
			} else {
				g.logger.Warn("provider returned rate limit", "provider", name, "enrichment", kind)
			}
		} else {
			otherFailed = true
			g.metrics.ProviderRequest(name, "error")
			g.logger.Warn("provider failed", "provider", name, "enrichment", kind, "error", err)
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Generation{}, ctxErr
		}
	}

	switch {
	case configured == 0:
		return domain.Generation{}, ErrNoCredentialsConfigured
	case attempted == 0:
		return domain.Generation{}, ErrAllProvidersRateLimited
	case !otherFailed:
		return domain.Generation{}, fmt.Errorf("%w: %w", ErrAllProvidersRateLimited, lastErr)
	default:
		return domain.Generation{}, fmt.Errorf("%w: %w", ErrAllProvidersExhausted, lastErr)
	}
}

func itemText(item domain.CandidateItem) string {
	if body := strings.TrimSpace(item.Body); body != "" {
		return body
	}
	return strings.TrimSpace(item.Title)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
