package llm

import "context"

// Request is one non-conversational generation.
type Request struct {
	System string
	Prompt string
	// Model overrides the provider default when set.
	Model string
	// APIKey is honored by key-authenticated backends only.
	APIKey string
}

type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
	Close() error
}
