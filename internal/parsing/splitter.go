package parsing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mvc24/bibliopa/internal/models"
	"github.com/mvc24/bibliopa/internal/people"
	"github.com/mvc24/bibliopa/internal/providers"
)

// Splitter asks an LLM provider to break multi-person mentions into people
type Splitter struct {
	provider providers.Provider
	model    string
}

func NewSplitter(provider providers.Provider, model string) *Splitter {
	return &Splitter{provider: provider, model: model}
}

// SplitBatch returns the splits for the mentions of one batch. Splits whose
// source does not match a mention of the batch are dropped, as are people
// without any name.
func (s *Splitter) SplitBatch(ctx context.Context, batch []models.PersonMention) ([]people.Split, error) {
	prompt, err := SplitPrompt(batch)
	if err != nil {
		return nil, err
	}

	raw, err := s.provider.ExtractText(ctx, providers.Config{
		Model:       s.model,
		Temperature: 0,
		System:      splitSystemPrompt,
		Prompt:      prompt,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}

	decoded, err := DecodeSplits(raw)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(batch))
	for _, m := range batch {
		known[people.MentionKey(m)] = true
	}

	var out []people.Split
	for _, split := range decoded {
		if !known[people.MentionKey(split.Source)] {
			slog.Warn("Split response names an unknown mention", "composite_id", split.Source.BookCompositeID, "display_name", split.Source.DisplayName)
			continue
		}
		var named []models.PersonName
		for _, p := range split.People {
			if strings.TrimSpace(p.DisplayName) != "" || strings.TrimSpace(p.SingleName) != "" {
				named = append(named, p)
			}
		}
		split.People = named
		out = append(out, split)
	}
	return out, nil
}

// SplitAll runs every batch in order. A failed batch leaves its mentions
// unsplit and is counted in the returned failure count.
func (s *Splitter) SplitAll(ctx context.Context, batches [][]models.PersonMention) ([]people.Split, int, error) {
	var out []people.Split
	failed := 0
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return nil, failed, err
		}
		splits, err := s.SplitBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, failed, ctx.Err()
			}
			slog.Warn("Split batch failed", "batch", i+1, "error", err)
			failed++
			continue
		}
		slog.Info("Split batch done", "batch", i+1, "of", len(batches), "splits", len(splits))
		out = append(out, splits...)
	}
	return out, failed, nil
}

// DecodeSplits decodes the JSON array a split request returns, keeping the
// complete leading elements of a truncated array.
func DecodeSplits(raw string) ([]people.Split, error) {
	var splits []people.Split
	if doc, err := extractJSON(raw, '[', ']'); err == nil {
		if err := decodeStrict(doc, &splits); err == nil {
			return splits, nil
		}
	}

	salvaged, err := decodeArrayPrefix[people.Split](raw)
	if err != nil {
		return nil, err
	}
	slog.Warn("Recovered splits from truncated response", "splits", len(salvaged))
	return salvaged, nil
}
