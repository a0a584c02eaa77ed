package reconcile

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mvc24/bibliopa/internal/models"
	"github.com/mvc24/bibliopa/internal/textmatch"
)

// DefaultBatchSize is the number of records sharing one batch id
const DefaultBatchSize = 25

// Options controls composite id assignment and audit metadata
type Options struct {
	BatchSize int
	RunID     string
	Now       func() time.Time
}

// Result is the output of reconciling one topic
type Result struct {
	Records       []models.ConsolidatedRecord
	Discrepancies []models.Discrepancy
	Summary       models.TopicSummary
}

// Reconcile merges a text-authoritative and a price-authoritative sequence of
// entries for one topic. Every primary entry yields one record in input order.
// A primary entry takes its price from the secondary entry at the same index
// when the normalized texts agree, otherwise from the first unconsumed
// secondary entry with equal normalized text. The scan skips secondary
// entries already taken by an earlier primary, so no secondary entry is ever
// both attached and reported. Secondary entries left unconsumed are returned
// as discrepancies in index order.
func Reconcile(primary, secondary []models.Entry, opts Options) Result {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	secondaryKeys := make([]string, len(secondary))
	for i, e := range secondary {
		secondaryKeys[i] = textmatch.Normalize(e.Text)
	}

	consumed := make([]bool, len(secondary))
	records := make([]models.ConsolidatedRecord, 0, len(primary))
	batchTotal := BatchTotal(len(primary), opts.BatchSize)
	matches := 0

	for i, p := range primary {
		key := textmatch.Normalize(p.Text)
		match := -1

		if i < len(secondary) && !consumed[i] && secondaryKeys[i] == key {
			match = i
		} else {
			for j, sk := range secondaryKeys {
				if !consumed[j] && sk == key {
					match = j
					break
				}
			}
		}

		record := models.ConsolidatedRecord{
			Text:        p.Text,
			Topic:       p.Topic,
			TopicKey:    p.TopicKey,
			CompositeID: CompositeID(p.TopicKey, i, opts.BatchSize, batchTotal),
		}
		if match >= 0 {
			consumed[match] = true
			matches++
			record.Price = secondary[match].Price
		}
		records = append(records, record)
	}

	var discrepancies []models.Discrepancy
	for j, e := range secondary {
		if !consumed[j] {
			discrepancies = append(discrepancies, models.Discrepancy{Entry: e, SourceIndex: j})
		}
	}

	summary := models.TopicSummary{
		RunID:            opts.RunID,
		Timestamp:        opts.Now().UTC(),
		PrimaryEntries:   len(primary),
		SecondaryEntries: len(secondary),
		RecordsCreated:   len(records),
		MatchesFound:     matches,
		Discrepancies:    len(discrepancies),
	}
	switch {
	case len(primary) > 0:
		summary.Topic, summary.TopicKey = primary[0].Topic, primary[0].TopicKey
	case len(secondary) > 0:
		summary.Topic, summary.TopicKey = secondary[0].Topic, secondary[0].TopicKey
	}

	slog.Debug("Reconciled topic",
		"topic", summary.Topic,
		"primary", summary.PrimaryEntries,
		"secondary", summary.SecondaryEntries,
		"matches", summary.MatchesFound,
		"discrepancies", summary.Discrepancies)

	return Result{Records: records, Discrepancies: discrepancies, Summary: summary}
}

// BatchTotal returns how many batches n records occupy
func BatchTotal(n, batchSize int) int {
	if n == 0 {
		return 0
	}
	return (n + batchSize - 1) / batchSize
}

// CompositeID builds the join key "{topic_key}_{index}_{batch_id}_{batch_total}"
// for the record at the 0-based index within its topic.
func CompositeID(topicKey string, index, batchSize, batchTotal int) string {
	return fmt.Sprintf("%s_%d_%d_%d", topicKey, index, index/batchSize+1, batchTotal)
}

// Batches splits records into consecutive slices of batchSize, matching the
// batch ids encoded in their composite ids.
func Batches(records []models.ConsolidatedRecord, batchSize int) [][]models.ConsolidatedRecord {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	var out [][]models.ConsolidatedRecord
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		out = append(out, records[start:end])
	}
	return out
}
