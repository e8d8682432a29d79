package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderRateLimited marks a provider answering with HTTP 429 or a quota error.
	ErrProviderRateLimited = errors.New("provider rate limited")
	// ErrProviderAuth marks rejected credentials.
	ErrProviderAuth = errors.New("provider authentication failed")
	// ErrProviderFailed covers every other provider failure.
	ErrProviderFailed = errors.New("provider request failed")

	// ErrAllProvidersExhausted is returned when no provider produced a result.
	ErrAllProvidersExhausted = errors.New("all providers exhausted")
	// ErrAllProvidersRateLimited is the retryable form of exhaustion.
	ErrAllProvidersRateLimited = fmt.Errorf("all providers rate limited: %w", ErrAllProvidersExhausted)
	// ErrNoCredentialsConfigured means no provider has an API key.
	ErrNoCredentialsConfigured = errors.New("no provider credentials configured")
)

// ProviderError describes one failed backend call.
type ProviderError struct {
	Provider   string
	Model      string
	StatusCode int
	Kind       error
	Err        error
}

func (e *ProviderError) Error() string {
	target := e.Provider
	if e.Model != "" {
		target += "/" + e.Model
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %v (status %d): %v", target, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", target, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
