package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"ContentFeed/internal/config"
)

// Request is one completion call.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Backend is a single language model provider.
type Backend interface {
	Name() string
	Configured() bool
	Complete(ctx context.Context, req Request) (string, error)
}

// ChatBackend implements Backend on an OpenAI-compatible chat completions API.
// With several models it walks them in order; an authentication failure stops
// the walk, any other failure moves on to the next model.
type ChatBackend struct {
	name       string
	models     []string
	apiKey     string
	client     *openai.Client
	timeout    time.Duration
	quotaCodes map[string]struct{}
	logger     *slog.Logger
}

var _ Backend = (*ChatBackend)(nil)

// NewChatBackend builds a backend from configuration.
func NewChatBackend(cfg config.ProviderConfig, logger *slog.Logger) *ChatBackend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{
		Transport: &headerTransport{base: http.DefaultTransport, headers: cfg.Headers},
	}

	quota := map[string]struct{}{"rate_limit_exceeded": {}, "insufficient_quota": {}}
	for _, code := range cfg.QuotaCodes {
		quota[strings.ToLower(strings.TrimSpace(code))] = struct{}{}
	}

	return &ChatBackend{
		name:       cfg.Name,
		models:     cfg.Models,
		apiKey:     cfg.APIKey,
		client:     openai.NewClientWithConfig(clientCfg),
		timeout:    cfg.Timeout,
		quotaCodes: quota,
		logger:     logger.With("provider", cfg.Name),
	}
}

// Name identifies the provider in provenance and logs.
func (b *ChatBackend) Name() string {
	return b.name
}

// Configured reports whether the backend has credentials and a model.
func (b *ChatBackend) Configured() bool {
	return b.apiKey != "" && len(b.models) > 0
}

// Complete sends the request to each model in turn until one answers.
func (b *ChatBackend) Complete(ctx context.Context, req Request) (string, error) {
	if !b.Configured() {
		return "", fmt.Errorf("%s: %w", b.name, ErrNoCredentialsConfigured)
	}

	var lastErr error
	for _, model := range b.models {
		text, err := b.completeModel(ctx, model, req)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if errors.Is(err, ErrProviderAuth) {
			b.logger.Warn("authentication rejected, skipping remaining models", "model", model)
			break
		}
		if ctx.Err() != nil {
			break
		}
		b.logger.Debug("model failed", "model", model, "error", err)
	}
	return "", lastErr
}

func (b *ChatBackend) completeModel(ctx context.Context, model string, req Request) (string, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", b.classify(model, err)
	}

	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: b.name, Model: model, Kind: ErrProviderFailed, Err: errors.New("no choices in response")}
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", &ProviderError{Provider: b.name, Model: model, Kind: ErrProviderFailed, Err: errors.New("empty content")}
	}
	return content, nil
}

func (b *ChatBackend) classify(model string, err error) error {
	var (
		status int
		code   string
		apiErr *openai.APIError
		reqErr *openai.RequestError
	)
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		if s, ok := apiErr.Code.(string); ok {
			code = s
		}
		if code == "" {
			code = apiErr.Type
		}
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	kind := ErrProviderFailed
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = ErrProviderAuth
	case status == http.StatusTooManyRequests:
		kind = ErrProviderRateLimited
	default:
		if _, ok := b.quotaCodes[strings.ToLower(code)]; ok && code != "" {
			kind = ErrProviderRateLimited
		}
	}

	return &ProviderError{Provider: b.name, Model: model, StatusCode: status, Kind: kind, Err: err}
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
