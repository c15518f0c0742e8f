package ai

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable covers network failures and 5xx style responses.
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	// ErrTimeout indicates the per-call deadline expired.
	ErrTimeout = errors.New("ai provider timeout")
	// ErrAuth indicates the credential was rejected.
	ErrAuth = errors.New("ai provider authentication failed")
	// ErrRateLimited indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
	ErrRateLimited = errors.New("ai provider rate limited")
)

// ProviderError ties a transport failure to the provider that raised it.
type ProviderError struct {
	Provider string
	Kind     error
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewProviderError wraps err under one of the four transport sentinels.
func NewProviderError(provider string, kind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// IsTransport reports whether err is an adapter-level failure eligible for fallback.
func IsTransport(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrAuth) ||
		errors.Is(err, ErrRateLimited)
}

// Kind returns a short label for metrics and logs.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrProviderUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}
