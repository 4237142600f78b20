// Package llm generates candidate caller responses and terminality
// judgments for discovered conversation states.
package llm

import "context"

// Options tune a single completion request.
type Options struct {
	Temperature float64
	MaxTokens   int
	Seed        int64 // 0 means unseeded
}

// Client is the language-model capability contract. Implementations must be
// safe for concurrent use.
type Client interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}
