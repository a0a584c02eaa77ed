package parsing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mvc24/bibliopa/internal/models"
	"github.com/mvc24/bibliopa/internal/providers"
	"github.com/mvc24/bibliopa/internal/validation"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// QuarantinedRecord is a record whose response could not be parsed
type QuarantinedRecord struct {
	SourceID   string    `json:"source_id"`
	RawContent string    `json:"raw_content"`
	Error      string    `json:"error"`
	Timestamp  time.Time `json:"timestamp"`
}

// Options configures a Parser
type Options struct {
	Model       string
	Temperature float64
	// Concurrency bounds the number of in-flight requests
	Concurrency int
	// RequestsPerMinute paces requests; zero disables pacing
	RequestsPerMinute int
	// Quarantine receives every record that fails, as it fails
	Quarantine func(QuarantinedRecord)
}

// Result holds the outcome of a parse run. Books keeps input order.
type Result struct {
	Books       []models.ParsedBook
	NeedsReview []string
	Quarantined []QuarantinedRecord
}

// Parser turns consolidated records into structured book records using an LLM provider
type Parser struct {
	provider  providers.Provider
	opts      Options
	limiter   *rate.Limiter
	validator *validation.Validator
}

// NewParser creates a parser backed by the given provider
func NewParser(provider providers.Provider, opts Options) *Parser {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), opts.Concurrency)
	}

	return &Parser{
		provider:  provider,
		opts:      opts,
		limiter:   limiter,
		validator: validation.New("json"),
	}
}

// ParseAll parses every record. Provider and decoding failures are
// quarantined and do not stop the run; only cancellation does.
func (p *Parser) ParseAll(ctx context.Context, records []models.ConsolidatedRecord) (Result, error) {
	books := make([]*models.ParsedBook, len(records))

	var mu sync.Mutex
	var quarantined []QuarantinedRecord

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for i, rec := range records {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			book, raw, err := p.parseOne(gctx, rec)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				q := QuarantinedRecord{
					SourceID:   rec.CompositeID,
					RawContent: raw,
					Error:      err.Error(),
					Timestamp:  time.Now().UTC(),
				}
				slog.Warn("Quarantined record", "composite_id", rec.CompositeID, "error", err)
				mu.Lock()
				quarantined = append(quarantined, q)
				if p.opts.Quarantine != nil {
					p.opts.Quarantine(q)
				}
				mu.Unlock()
				return nil
			}
			books[i] = &book
			slog.Debug("Parsed record", "composite_id", rec.CompositeID, "title", book.Entry.Title)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var result Result
	for _, b := range books {
		if b == nil {
			continue
		}
		result.Books = append(result.Books, *b)
		if b.Entry.Administrative.NeedsReview {
			result.NeedsReview = append(result.NeedsReview, b.CompositeID)
		}
	}
	result.Quarantined = quarantined
	return result, nil
}

// Parse parses a single record
func (p *Parser) Parse(ctx context.Context, rec models.ConsolidatedRecord) (models.ParsedBook, error) {
	book, _, err := p.parseOne(ctx, rec)
	return book, err
}

func (p *Parser) parseOne(ctx context.Context, rec models.ConsolidatedRecord) (models.ParsedBook, string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return models.ParsedBook{}, "", err
	}

	raw, err := p.provider.ExtractText(ctx, providers.Config{
		Model:       p.opts.Model,
		Temperature: p.opts.Temperature,
		System:      entrySystemPrompt,
		Prompt:      EntryPrompt(rec),
		JSON:        true,
	})
	if err != nil {
		return models.ParsedBook{}, "", fmt.Errorf("failed to extract text: %w", err)
	}

	entry, err := p.DecodeEntry(raw)
	if err != nil {
		return models.ParsedBook{}, raw, err
	}

	// the reconciled values win over whatever the model echoed back
	entry.Price = rec.Price
	entry.Topic = rec.Topic
	if entry.Administrative.OriginalEntry == "" {
		entry.Administrative.OriginalEntry = rec.Text
	}
	if entry.Administrative.SourceFilename == "" {
		entry.Administrative.SourceFilename = rec.Topic
	}

	book := models.ParsedBook{CompositeID: rec.CompositeID, Entry: entry}
	if err := p.validator.Validate(book); err != nil {
		return models.ParsedBook{}, raw, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return book, raw, nil
}

// DecodeEntry extracts and decodes a parsed entry from a provider response
func (p *Parser) DecodeEntry(raw string) (models.ParsedEntry, error) {
	doc, err := extractJSON(raw, '{', '}')
	if err != nil {
		return models.ParsedEntry{}, err
	}

	var entry models.ParsedEntry
	if err := decodeStrict(doc, &entry); err != nil {
		return models.ParsedEntry{}, err
	}
	return entry, nil
}
