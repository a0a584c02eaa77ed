package gemini

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/mvc24/bibliopa/internal/providers"
	"google.golang.org/api/option"
)

// Gemini is a provider for Google Gemini
type Gemini struct {
	apiKey string
}

// New returns a new Gemini provider
func New() *Gemini {
	return &Gemini{apiKey: os.Getenv("GEMINI_API_KEY")}
}

// ExtractText generates content for the prompt and joins the text parts
// of the first candidate.
func (g *Gemini) ExtractText(ctx context.Context, config providers.Config) (string, error) {
	if g.apiKey == "" {
		return "", fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create new gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(config.Model)
	model.SetTemperature(float32(config.Temperature))
	if config.System != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(config.System))
	}
	if config.JSON {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(config.Prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from Gemini")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", providers.ErrEmptyResponse
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("unexpected response format from Gemini")
	}
	return sb.String(), nil
}
