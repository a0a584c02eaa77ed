package pipelinecmd

import (
	"fmt"

	"github.com/mvc24/bibliopa/internal/gemini"
	"github.com/mvc24/bibliopa/internal/ollama"
	"github.com/mvc24/bibliopa/internal/openai"
	"github.com/mvc24/bibliopa/internal/providers"
)

// newProvider returns the LLM provider configured by name
func newProvider(name string) (providers.Provider, error) {
	switch name {
	case "ollama":
		return ollama.New(), nil
	case "openai":
		return openai.New(), nil
	case "gemini":
		return gemini.New(), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}
