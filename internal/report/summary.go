package report

import (
	"fmt"
	"io"
	"strings"
)

// PrintSummary writes a human readable run summary
func PrintSummary(w io.Writer, run Run) {
	rule := strings.Repeat("=", 70)

	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Pipeline Run %s\n", run.Config.RunID)
	fmt.Fprintln(w, rule)

	if r := run.Reconcile; r != nil {
		fmt.Fprintln(w, "Reconciliation:")
		for _, t := range r.Topics {
			fmt.Fprintf(w, "  %-40s %5d records  %5d matched  %5d discrepancies\n",
				t.Topic, t.RecordsCreated, t.MatchesFound, t.Discrepancies)
		}
		fmt.Fprintf(w, "  Total records:        %d\n", r.Records)
		fmt.Fprintf(w, "  Total discrepancies:  %d\n", r.Discrepancies)
		fmt.Fprintln(w)
	}

	if r := run.Resolution; r != nil {
		total := r.Resolved + r.ResolvedIsh + r.Unresolved
		fmt.Fprintln(w, "Discrepancy Resolution:")
		fmt.Fprintf(w, "  Resolved:      %5d (%s)\n", r.Resolved, percent(r.Resolved, total))
		fmt.Fprintf(w, "  Resolved-ish:  %5d (%s)\n", r.ResolvedIsh, percent(r.ResolvedIsh, total))
		fmt.Fprintf(w, "  Unresolved:    %5d (%s)\n", r.Unresolved, percent(r.Unresolved, total))
		fmt.Fprintf(w, "  Prices applied: %d\n", r.PricesApplied)
		if r.Collisions > 0 {
			fmt.Fprintf(w, "  Key collisions: %d\n", r.Collisions)
		}
		fmt.Fprintln(w)
	}

	if r := run.Parsing; r != nil {
		fmt.Fprintln(w, "Parsing:")
		fmt.Fprintf(w, "  Parsed:        %d\n", r.Parsed)
		fmt.Fprintf(w, "  Quarantined:   %d\n", r.Quarantined)
		fmt.Fprintf(w, "  Needs review:  %d\n", r.NeedsReview)
		fmt.Fprintln(w)
	}

	if r := run.People; r != nil {
		fmt.Fprintln(w, "People:")
		if r.Split > 0 {
			fmt.Fprintf(w, "  Split:         %d\n", r.Split)
		}
		fmt.Fprintf(w, "  Mentions:      %d\n", r.Mentions)
		fmt.Fprintf(w, "  Canonical:     %d\n", r.People)
		fmt.Fprintf(w, "  Review:        %d\n", r.Review)
		fmt.Fprintln(w)
	}

	if r := run.Validation; r != nil {
		fmt.Fprintln(w, "Validation:")
		fmt.Fprintf(w, "  Validated:              %d\n", r.Validated)
		fmt.Fprintf(w, "  Validated with issues:  %d\n", r.ValidatedWithIssues)
		fmt.Fprintf(w, "  Failed:                 %d\n", r.Failed)
		fmt.Fprintf(w, "  Not found:              %d\n", r.NotFound)
		fmt.Fprintf(w, "  People validated/held:  %d/%d\n", r.PeopleValidated, r.PeopleHeld)
		for _, f := range r.Files {
			fmt.Fprintf(w, "    %-38s %5d books  %6.1f%% matched  %d failed\n",
				f.SourceFilename, f.TotalBooks, f.MatchedPercent, f.Failed)
		}
		fmt.Fprintln(w)
	}

	if r := run.Database; r != nil {
		fmt.Fprintln(w, "Database:")
		fmt.Fprintf(w, "  Books: %d  People: %d  Book-people: %d  Prices: %d\n",
			r.Books, r.People, r.BookPeople, r.Prices)
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, rule)
}

func percent(n, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)/float64(total)*100)
}
