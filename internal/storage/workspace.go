package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Workspace lays out every artifact the pipeline persists between stages
type Workspace struct {
	Root string
}

func NewWorkspace(root string) Workspace {
	return Workspace{Root: root}
}

func (w Workspace) path(parts ...string) string {
	return filepath.Join(append([]string{w.Root}, parts...)...)
}

func (w Workspace) ConsolidatedDir() string { return w.path("consolidated") }

func (w Workspace) ConsolidatedFile(topicKey string) string {
	return w.path("consolidated", topicKey+".json")
}

func (w Workspace) BatchDir(topicKey string) string { return w.path("batched", topicKey) }

func (w Workspace) BatchFile(topicKey string, batchID, batchTotal int) string {
	return w.path("batched", topicKey, fmt.Sprintf("%s_batch_%d_of_%d.json", topicKey, batchID, batchTotal))
}

func (w Workspace) Discrepancies() string { return w.path("discrepancies.json") }

func (w Workspace) ProcessingLog() string { return w.path("logs", "processing_log.jsonl") }

func (w Workspace) DiscrepancyLog() string { return w.path("logs", "discrepancies.jsonl") }

func (w Workspace) Resolution() string {
	return w.path("resolution", "discrepancies_processed.json")
}

func (w Workspace) ParsedDir() string { return w.path("parsed") }

func (w Workspace) ParsedFile(topicKey string) string { return w.path("parsed", topicKey+".json") }

func (w Workspace) QuarantineLog() string { return w.path("logs", "quarantine.jsonl") }

func (w Workspace) SplitBatchFile(n int) string {
	return w.path("people", "split_batches", fmt.Sprintf("split_batch_%02d.json", n))
}

func (w Workspace) Splits() string { return w.path("people", "splits.json") }

func (w Workspace) Mentions() string { return w.path("people", "mentions.json") }

func (w Workspace) DedupBatchDir() string { return w.path("people", "batches") }

func (w Workspace) DedupBatchFile(n int) string {
	return w.path("people", "batches", fmt.Sprintf("people_batch_%03d.json", n))
}

func (w Workspace) Assignments() string { return w.path("people", "assignments.json") }

func (w Workspace) CanonicalPeople() string { return w.path("people", "canonical.json") }

func (w Workspace) BookPeople() string { return w.path("people", "book_people.json") }

func (w Workspace) PeopleReview() string { return w.path("people", "review.json") }

func (w Workspace) ValidatedBooks() string { return w.path("validated", "books.json") }

func (w Workspace) ValidatedPeople() string { return w.path("validated", "people.json") }

func (w Workspace) ValidatedBookPeople() string { return w.path("validated", "book_people.json") }

func (w Workspace) HeldPeople() string { return w.path("validated", "people_held.json") }

func (w Workspace) ValidationFailedLog() string { return w.path("logs", "validation_failed.json") }

func (w Workspace) ValidationReportLog() string { return w.path("logs", "validation_report.json") }

func (w Workspace) ValidationSummaryLog() string { return w.path("logs", "validation_summary.json") }

func (w Workspace) ExportDir() string { return w.path("export") }

func (w Workspace) ReportDir() string { return w.path("reports") }

// JSONFiles lists the .json files in dir in name order
func JSONFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingInput, dir)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
