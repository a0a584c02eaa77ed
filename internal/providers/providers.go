package providers

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a provider answers without any content
var ErrEmptyResponse = errors.New("empty response from provider")

// Config represents one completion request sent to an LLM provider
type Config struct {
	Model       string
	Temperature float64
	// System is sent as the system instruction when the provider supports one
	System string
	Prompt string
	// JSON asks the provider to constrain its answer to a JSON document
	JSON bool
}

// Provider defines the interface for an LLM provider
type Provider interface {
	ExtractText(ctx context.Context, config Config) (string, error)
}

// Func adapts an ordinary function to the Provider interface
type Func func(ctx context.Context, config Config) (string, error)

func (f Func) ExtractText(ctx context.Context, config Config) (string, error) {
	return f(ctx, config)
}
