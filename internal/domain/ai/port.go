package ai

import "context"

// Client is one configured reasoning provider. Analyze performs exactly one
// call; retries and fallback belong to the caller.
type Client interface {
	Analyze(ctx context.Context, prompt string) (string, error)
	Name() string
}
