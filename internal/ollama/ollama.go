package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/mvc24/bibliopa/internal/providers"
)

const defaultURL = "http://localhost:11434"

// Ollama is a provider for Ollama
type Ollama struct {
	baseURL string
	client  *http.Client
}

// Option configures an Ollama provider
type Option func(*Ollama)

// WithBaseURL overrides OLLAMA_URL
func WithBaseURL(u string) Option {
	return func(o *Ollama) { o.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the client used for requests
func WithHTTPClient(c *http.Client) Option {
	return func(o *Ollama) { o.client = c }
}

// New returns a new Ollama provider
func New(opts ...Option) *Ollama {
	baseURL := os.Getenv("OLLAMA_URL")
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = defaultURL
	}

	o := &Ollama{baseURL: strings.TrimRight(baseURL, "/"), client: http.DefaultClient}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ExtractText sends the prompt to /api/generate and returns the response text
func (o *Ollama) ExtractText(ctx context.Context, config providers.Config) (string, error) {
	body := map[string]interface{}{
		"model":  config.Model,
		"prompt": config.Prompt,
		"stream": false,
		"options": map[string]interface{}{
			"temperature": config.Temperature,
		},
	}
	if config.System != "" {
		body["system"] = config.System
	}
	if config.JSON {
		body["format"] = "json"
	}

	requestBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("received non-200 status code: %d - %s", resp.StatusCode, string(body))
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}
	if strings.TrimSpace(response.Response) == "" {
		return "", providers.ErrEmptyResponse
	}

	return response.Response, nil
}
