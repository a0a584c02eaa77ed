package report

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mvc24/bibliopa/internal/database"
	"github.com/mvc24/bibliopa/internal/discrepancy"
	"github.com/mvc24/bibliopa/internal/models"
	"github.com/mvc24/bibliopa/internal/parsing"
	"github.com/mvc24/bibliopa/internal/people"
	"github.com/mvc24/bibliopa/internal/validate"
)

func price(v int64) *int64 { return &v }

func testRun() Run {
	return Run{
		Config: RunConfig{
			RunID:             "V1StGXR8",
			Timestamp:         time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
			Workdir:           "data",
			BatchSize:         25,
			ExactThreshold:    95,
			ProbableThreshold: 75,
		},
		Reconcile: &ReconcileStats{
			Topics:        []TopicStats{{Topic: "PHILOSOPHIE", PrimaryEntries: 10, SecondaryEntries: 9, RecordsCreated: 10, MatchesFound: 8, Discrepancies: 1}},
			Records:       10,
			Discrepancies: 1,
		},
		Resolution: &ResolutionStats{Resolved: 1, PricesApplied: 1},
		Database:   &database.Stats{Books: 10, People: 4},
	}
}

func TestSaveAndLoadYAML(t *testing.T) {
	dir := t.TempDir()

	path, err := SaveYAML(dir, testRun())
	require.NoError(t, err)
	assert.Equal(t, "run-2025-03-01_12-00-00-V1StGXR8.yaml", filepath.Base(path))

	run, err := LoadYAML(path)
	require.NoError(t, err)
	assert.Equal(t, testRun(), run)
	assert.Nil(t, run.Parsing)
}

func TestWriteYAMLOmitsSkippedStages(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, testRun()))

	out := buf.String()
	assert.Contains(t, out, "run_id: V1StGXR8")
	assert.Contains(t, out, "prices_applied: 1")
	assert.NotContains(t, out, "parsing:")
	assert.NotContains(t, out, "validation:")
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, testRun())

	out := buf.String()
	assert.Contains(t, out, "Pipeline Run V1StGXR8")
	assert.Contains(t, out, "PHILOSOPHIE")
	assert.Contains(t, out, "Resolved:          1 (100.0%)")
	assert.NotContains(t, out, "Parsing:")
}

func testBuckets() discrepancy.Buckets {
	d := models.Discrepancy{Entry: models.Entry{Text: "KANT: Kritik der reinen Vernunft", Price: price(30), Topic: "PHILOSOPHIE"}, SourceIndex: 4}
	return discrepancy.Buckets{
		Resolved: []models.ResolvedDiscrepancy{{Discrepancy: d, Tier: models.TierResolved, Exact: true, Score: 100,
			MatchedText: "KANT: Kritik der reinen Vernunft", MatchedCompositeID: "philosophie_1_1_5", CandidateCount: 1}},
		Unresolved: []models.ResolvedDiscrepancy{{Discrepancy: d, Tier: models.TierUnresolved, Score: 40}},
	}
}

func TestWriteResolution(t *testing.T) {
	tests := []struct {
		format string
		check  func(t *testing.T, out string)
	}{
		{format: "text", check: func(t *testing.T, out string) {
			assert.Contains(t, out, "Resolved:      1")
			assert.Contains(t, out, "Unresolved:")
			assert.Contains(t, out, "(score 40)")
		}},
		{format: "json", check: func(t *testing.T, out string) {
			assert.Contains(t, out, `"resolved_ish": null`)
			assert.Contains(t, out, `"matched_composite_id": "philosophie_1_1_5"`)
		}},
		{format: "csv", check: func(t *testing.T, out string) {
			records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
			require.NoError(t, err)
			require.Len(t, records, 3)
			assert.Equal(t, "Tier", records[0][0])
			assert.Equal(t, []string{"resolved", "PHILOSOPHIE", "4", "100", "true", "30"}, records[1][:6])
			assert.Equal(t, "unresolved", records[2][0])
		}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteResolution(&buf, testBuckets(), tt.format))
			tt.check(t, buf.String())
		})
	}

	assert.Error(t, WriteResolution(&bytes.Buffer{}, testBuckets(), "xml"))
}

func TestSaveWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "review.xlsx")
	b := testBuckets()

	err := SaveWorkbook(path, Review{
		Unresolved:  b.Unresolved,
		Quarantined: []parsing.QuarantinedRecord{{SourceID: "philosophie_1_1_7", Error: "malformed response", RawContent: "nope"}},
		NeedsReview: []models.ParsedBook{{CompositeID: "philosophie_1_1_8", Entry: models.ParsedEntry{Title: "Siehe Kant",
			Administrative: models.Administrative{OriginalEntry: "Siehe Kant", ParsingConfidence: "low", NeedsReview: true}}}},
		People: []people.ReviewItem{{Reason: people.ReasonAmbiguousIdentity,
			Mention: models.PersonMention{BookCompositeID: "philosophie_1_1_9", DisplayName: "Meyer", Identity: models.Ambiguous()}}},
		Failures: []validate.BookResult{{CompositeID: "philosophie_1_1_10", Outcome: validate.Failed, ExpectedTotal: 2, FoundTotal: 1}},
	})
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetDiscrepancies, SheetQuarantine, SheetEntries, SheetPeople, SheetValidation}, f.GetSheetList())

	rows, err := f.GetRows(SheetDiscrepancies)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Tier", rows[0][0])
	assert.Equal(t, "unresolved", rows[1][0])

	rows, err = f.GetRows(SheetQuarantine)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "philosophie_1_1_7", rows[1][0])

	rows, err = f.GetRows(SheetPeople)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ambiguous_identity", rows[1][0])

	rows, err = f.GetRows(SheetValidation)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"philosophie_1_1_10", "", "failed", "2", "1", "0"}, rows[1])
}
