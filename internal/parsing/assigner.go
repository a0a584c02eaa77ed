package parsing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mvc24/bibliopa/internal/models"
	"github.com/mvc24/bibliopa/internal/people"
	"github.com/mvc24/bibliopa/internal/providers"
)

// Assigner asks an LLM provider to assign unified ids to batches of person mentions
type Assigner struct {
	provider providers.Provider
	model    string
}

// NewAssigner creates an assigner for the given provider and model
func NewAssigner(provider providers.Provider, model string) *Assigner {
	return &Assigner{provider: provider, model: model}
}

// AssignBatch returns the batch with identities set. Mentions the provider
// dropped or mangled come back unassigned; the batch length never changes.
func (a *Assigner) AssignBatch(ctx context.Context, batch []models.PersonMention) ([]models.PersonMention, error) {
	prompt, err := DedupPrompt(batch)
	if err != nil {
		return nil, err
	}

	raw, err := a.provider.ExtractText(ctx, providers.Config{
		Model:       a.model,
		Temperature: 0,
		System:      dedupSystemPrompt,
		Prompt:      prompt,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}

	assigned, err := DecodeAssignments(raw)
	if err != nil {
		return nil, err
	}

	merged, matched := people.MergeAssignments(batch, assigned)
	if matched < len(batch) {
		slog.Warn("Dedup response missed mentions", "batch_size", len(batch), "matched", matched)
	}
	return merged, nil
}

// AssignAll runs every batch in order. A batch that fails stays unassigned
// and is reported through the returned count.
func (a *Assigner) AssignAll(ctx context.Context, batches [][]models.PersonMention) ([]models.PersonMention, int, error) {
	var out []models.PersonMention
	failed := 0
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return nil, failed, err
		}
		merged, err := a.AssignBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, failed, ctx.Err()
			}
			slog.Warn("Dedup batch failed", "batch", i+1, "error", err)
			failed++
			out = append(out, batch...)
			continue
		}
		slog.Info("Dedup batch assigned", "batch", i+1, "of", len(batches), "mentions", len(batch))
		out = append(out, merged...)
	}
	return out, failed, nil
}

// DecodeAssignments decodes the JSON array a dedup service returns. Some
// models wrap the array in an object; a single "mentions" or "people" key
// is accepted too. A truncated array yields its complete leading elements.
func DecodeAssignments(raw string) ([]models.PersonMention, error) {
	var mentions []models.PersonMention

	if doc, err := extractJSON(raw, '[', ']'); err == nil {
		if err := decodeStrict(doc, &mentions); err == nil {
			return mentions, nil
		}
	}

	if doc, err := extractJSON(raw, '{', '}'); err == nil {
		var wrapped struct {
			Mentions []models.PersonMention `json:"mentions"`
			People   []models.PersonMention `json:"people"`
		}
		if err := decodeStrict(doc, &wrapped); err == nil {
			if wrapped.Mentions != nil {
				return wrapped.Mentions, nil
			}
			if wrapped.People != nil {
				return wrapped.People, nil
			}
		}
	}

	salvaged, err := decodeArrayPrefix[models.PersonMention](raw)
	if err != nil {
		return nil, err
	}
	slog.Warn("Recovered mentions from truncated dedup response", "mentions", len(salvaged))
	return salvaged, nil
}
