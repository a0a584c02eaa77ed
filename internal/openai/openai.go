package openai

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

const defaultURL = "https://api.openai.com/v1"

// OpenAI is a provider for the chat completions API
type OpenAI struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// Option configures an OpenAI provider
type Option func(*OpenAI)

// WithBaseURL points the provider at a compatible endpoint
func WithBaseURL(u string) Option {
	return func(o *OpenAI) { o.baseURL = strings.TrimRight(u, "/") }
}

// WithAPIKey overrides OPENAI_API_KEY
func WithAPIKey(key string) Option {
	return func(o *OpenAI) { o.apiKey = key }
}

// WithHTTPClient sets the client used for requests
func WithHTTPClient(c *http.Client) Option {
	return func(o *OpenAI) { o.client = c }
}

// New returns a new OpenAI provider
func New(opts ...Option) *OpenAI {
	o := &OpenAI{
		baseURL: defaultURL,
		apiKey:  os.Getenv("OPENAI_API_KEY"),
		client:  http.DefaultClient,
	}
	if u := os.Getenv("OPENAI_BASE_URL"); u != "" {
		o.baseURL = strings.TrimRight(u, "/")
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ExtractText sends the prompt as a chat completion and returns the first choice
func (o *OpenAI) ExtractText(ctx context.Context, config providers.Config) (string, error) {
	if o.apiKey == "" {
		return "", fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	messages := make([]map[string]string, 0, 2)
	if config.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": config.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": config.Prompt})

	body := map[string]interface{}{
		"model":       config.Model,
		"messages":    messages,
		"temperature": config.Temperature,
	}
	if config.JSON {
		body["response_format"] = map[string]string{"type": "json_object"}
	}

	requestBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

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
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	if len(response.Choices) == 0 || strings.TrimSpace(response.Choices[0].Message.Content) == "" {
		return "", providers.ErrEmptyResponse
	}

	return response.Choices[0].Message.Content, nil
}
