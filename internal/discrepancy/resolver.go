package discrepancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mvc24/bibliopa/internal/models"
	"github.com/mvc24/bibliopa/internal/textmatch"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultExactThreshold    = 95
	DefaultProbableThreshold = 75
)

// ErrEmptyCorpus is returned when there is nothing to resolve against
var ErrEmptyCorpus = errors.New("consolidated corpus is empty")

// ProgressFunc is called after each discrepancy with the number finished so far
type ProgressFunc func(done, total int)

// Config controls the resolver thresholds and fan-out
type Config struct {
	// ExactThreshold is the fuzzy score treated as the same entry
	ExactThreshold int
	// ProbableThreshold is the lowest score reported as resolved_ish
	ProbableThreshold int
	// Workers above 1 resolves discrepancies in parallel
	Workers  int
	Progress ProgressFunc
}

// Buckets holds each discrepancy exactly once, in input order per bucket
type Buckets struct {
	Resolved    []models.ResolvedDiscrepancy `json:"resolved"`
	ResolvedIsh []models.ResolvedDiscrepancy `json:"resolved_ish"`
	Unresolved  []models.ResolvedDiscrepancy `json:"unresolved"`
}

// Total returns the number of discrepancies across all buckets
func (b Buckets) Total() int {
	return len(b.Resolved) + len(b.ResolvedIsh) + len(b.Unresolved)
}

// Resolver re-attaches discrepancies to the consolidated corpus
type Resolver struct {
	cfg   Config
	index *Index
}

// NewResolver indexes the corpus. An empty corpus is a structural error.
func NewResolver(corpus []models.ConsolidatedRecord, cfg Config) (*Resolver, error) {
	if len(corpus) == 0 {
		return nil, ErrEmptyCorpus
	}
	if cfg.ExactThreshold == 0 {
		cfg.ExactThreshold = DefaultExactThreshold
	}
	if cfg.ProbableThreshold == 0 {
		cfg.ProbableThreshold = DefaultProbableThreshold
	}
	if cfg.ProbableThreshold > cfg.ExactThreshold {
		return nil, fmt.Errorf("probable threshold %d above exact threshold %d", cfg.ProbableThreshold, cfg.ExactThreshold)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	idx := NewIndex(corpus)
	slog.Debug("Indexed consolidated corpus", "records", len(corpus), "keys", idx.Len(), "collisions", idx.Collisions())

	return &Resolver{cfg: cfg, index: idx}, nil
}

// ResolveAll classifies every discrepancy. It stops at the next discrepancy
// boundary when ctx is cancelled; nothing partial is returned in that case.
func (r *Resolver) ResolveAll(ctx context.Context, discrepancies []models.Discrepancy) (Buckets, error) {
	results := make([]models.ResolvedDiscrepancy, len(discrepancies))

	var err error
	if r.cfg.Workers > 1 {
		err = r.resolveParallel(ctx, discrepancies, results)
	} else {
		err = r.resolveSequential(ctx, discrepancies, results)
	}
	if err != nil {
		return Buckets{}, err
	}

	var b Buckets
	for _, res := range results {
		switch res.Tier {
		case models.TierResolved:
			b.Resolved = append(b.Resolved, res)
		case models.TierResolvedIsh:
			b.ResolvedIsh = append(b.ResolvedIsh, res)
		default:
			b.Unresolved = append(b.Unresolved, res)
		}
	}

	slog.Info("Resolved discrepancies",
		"total", len(discrepancies),
		"resolved", len(b.Resolved),
		"resolved_ish", len(b.ResolvedIsh),
		"unresolved", len(b.Unresolved))

	return b, nil
}

func (r *Resolver) resolveSequential(ctx context.Context, discrepancies []models.Discrepancy, results []models.ResolvedDiscrepancy) error {
	for i, d := range discrepancies {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("resolution cancelled after %d of %d: %w", i, len(discrepancies), err)
		}
		results[i] = r.Resolve(d)
		if r.cfg.Progress != nil {
			r.cfg.Progress(i+1, len(discrepancies))
		}
	}
	return nil
}

func (r *Resolver) resolveParallel(ctx context.Context, discrepancies []models.Discrepancy, results []models.ResolvedDiscrepancy) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	progress := make(chan struct{}, len(discrepancies))
	reported := make(chan struct{})
	go func() {
		defer close(reported)
		done := 0
		for range progress {
			done++
			if r.cfg.Progress != nil {
				r.cfg.Progress(done, len(discrepancies))
			}
		}
	}()

	for i, d := range discrepancies {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.Resolve(d)
			progress <- struct{}{}
			return nil
		})
	}

	err := g.Wait()
	close(progress)
	<-reported

	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("resolution cancelled: %w", err)
	}
	return nil
}

// Resolve classifies a single discrepancy. An exact normalized match wins
// outright; otherwise the distinct corpus keys are scanned in sorted order,
// keeping the first best score and stopping at the exact threshold.
func (r *Resolver) Resolve(d models.Discrepancy) models.ResolvedDiscrepancy {
	out := models.ResolvedDiscrepancy{Discrepancy: d}
	key := textmatch.Normalize(d.Text)

	if matches := r.index.Lookup(key); len(matches) > 0 {
		out.Tier = models.TierResolved
		out.Exact = true
		out.Score = 100
		attach(&out, matches)
		return out
	}

	bestScore := -1
	bestKey := ""
	for _, candidate := range r.index.keys {
		score := textmatch.Ratio(key, candidate)
		if score > bestScore {
			bestScore, bestKey = score, candidate
		}
		if score >= r.cfg.ExactThreshold {
			break
		}
	}

	out.Score = bestScore
	attach(&out, r.index.Lookup(bestKey))

	switch {
	case bestScore >= r.cfg.ExactThreshold:
		out.Tier = models.TierResolved
	case bestScore >= r.cfg.ProbableThreshold:
		out.Tier = models.TierResolvedIsh
	default:
		out.Tier = models.TierUnresolved
	}
	return out
}

func attach(out *models.ResolvedDiscrepancy, matches []models.ConsolidatedRecord) {
	if len(matches) == 0 {
		return
	}
	m := matches[0]
	out.MatchedText = m.Text
	out.MatchedTopic = m.Topic
	out.MatchedPrice = m.Price
	out.MatchedCompositeID = m.CompositeID
	out.CandidateCount = len(matches)
}
