package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/mvc24/bibliopa/internal/discrepancy"
	"github.com/mvc24/bibliopa/internal/models"
)

// Formats lists the formats WriteResolution understands
var Formats = []string{"text", "json", "csv"}

// WriteResolution renders the buckets of a resolution run
func WriteResolution(w io.Writer, b discrepancy.Buckets, format string) error {
	switch format {
	case "text":
		return writeResolutionText(w, b)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	case "csv":
		return writeResolutionCSV(w, b)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeResolutionText(w io.Writer, b discrepancy.Buckets) error {
	fmt.Fprintln(w, "========================================")
	fmt.Fprintln(w, "Discrepancy Resolution Report")
	fmt.Fprintln(w, "========================================")
	fmt.Fprintf(w, "Resolved:      %d\n", len(b.Resolved))
	fmt.Fprintf(w, "Resolved-ish:  %d\n", len(b.ResolvedIsh))
	fmt.Fprintf(w, "Unresolved:    %d\n", len(b.Unresolved))

	sections := []struct {
		title string
		items []models.ResolvedDiscrepancy
	}{
		{"Resolved-ish (check these)", b.ResolvedIsh},
		{"Unresolved", b.Unresolved},
	}
	for _, s := range sections {
		if len(s.items) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", s.title)
		fmt.Fprintln(w, "========================================")
		for i, r := range s.items {
			fmt.Fprintf(w, "\n[%d] %s (score %d)\n", i+1, r.Discrepancy.Topic, r.Score)
			fmt.Fprintf(w, "  Discrepancy: %s\n", truncate(r.Discrepancy.Text, 80))
			if r.MatchedText != "" {
				fmt.Fprintf(w, "  Best match:  %s\n", truncate(r.MatchedText, 80))
				fmt.Fprintf(w, "  Composite:   %s\n", r.MatchedCompositeID)
			}
		}
	}
	return nil
}

func writeResolutionCSV(w io.Writer, b discrepancy.Buckets) error {
	writer := csv.NewWriter(w)

	header := []string{"Tier", "Topic", "Source Index", "Score", "Exact", "Price", "Text", "Matched Composite ID", "Matched Topic", "Matched Text", "Candidates"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, bucket := range [][]models.ResolvedDiscrepancy{b.Resolved, b.ResolvedIsh, b.Unresolved} {
		for _, r := range bucket {
			row := []string{
				string(r.Tier),
				r.Discrepancy.Topic,
				strconv.Itoa(r.Discrepancy.SourceIndex),
				strconv.Itoa(r.Score),
				strconv.FormatBool(r.Exact),
				formatPrice(r.Discrepancy.Price),
				r.Discrepancy.Text,
				r.MatchedCompositeID,
				r.MatchedTopic,
				r.MatchedText,
				strconv.Itoa(r.CandidateCount),
			}
			if err := writer.Write(row); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatPrice(p *int64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatInt(*p, 10)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
