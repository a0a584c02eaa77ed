package validate

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/mvc24/bibliopa/internal/models"
)

// Outcome classifies one book after cross-checking its people
type Outcome string

const (
	Validated           Outcome = "validated"
	ValidatedWithIssues Outcome = "validated_with_issues"
	Failed              Outcome = "failed"
	NotFound            Outcome = "not_found"
)

// RoleCounts tallies people per role
type RoleCounts struct {
	Authors      int `json:"authors" yaml:"authors"`
	Editors      int `json:"editors" yaml:"editors"`
	Contributors int `json:"contributors" yaml:"contributors"`
	Translators  int `json:"translators" yaml:"translators"`
}

func (c RoleCounts) Total() int {
	return c.Authors + c.Editors + c.Contributors + c.Translators
}

// RoleMismatch flags each role whose expected and found counts differ
type RoleMismatch struct {
	Authors      bool `json:"authors" yaml:"authors"`
	Editors      bool `json:"editors" yaml:"editors"`
	Contributors bool `json:"contributors" yaml:"contributors"`
	Translators  bool `json:"translators" yaml:"translators"`
}

func (m RoleMismatch) Any() bool {
	return m.Authors || m.Editors || m.Contributors || m.Translators
}

// Issue is an association row that could not be counted
type Issue struct {
	DisplayName string `json:"display_name" yaml:"display_name"`
	SortOrder   int    `json:"sort_order" yaml:"sort_order"`
	Identity    string `json:"identity" yaml:"identity"`
}

// BookResult is the validation outcome and diff for one book
type BookResult struct {
	CompositeID    string       `json:"composite_id" yaml:"composite_id"`
	SourceFilename string       `json:"source_filename" yaml:"source_filename"`
	Outcome        Outcome      `json:"outcome" yaml:"outcome"`
	Expected       RoleCounts   `json:"expected" yaml:"expected"`
	Found          RoleCounts   `json:"found" yaml:"found"`
	ExpectedTotal  int          `json:"expected_total" yaml:"expected_total"`
	FoundTotal     int          `json:"found_total" yaml:"found_total"`
	Mismatch       RoleMismatch `json:"role_mismatch" yaml:"role_mismatch"`
	Issues         []Issue      `json:"issues,omitempty" yaml:"issues,omitempty"`
}

// FileSummary aggregates outcomes per source file
type FileSummary struct {
	SourceFilename      string  `json:"source_filename" yaml:"source_filename"`
	TotalBooks          int     `json:"total_books" yaml:"total_books"`
	MatchedPercent      float64 `json:"matched_percent" yaml:"matched_percent"`
	NotFound            int     `json:"not_found" yaml:"not_found"`
	Validated           int     `json:"validated" yaml:"validated"`
	ValidatedWithIssues int     `json:"validated_with_issues" yaml:"validated_with_issues"`
	Failed              int     `json:"failed" yaml:"failed"`
}

// Report is everything the validator produces
type Report struct {
	Books          []BookResult             `json:"books"`
	Files          []FileSummary            `json:"files"`
	ValidatedBooks []models.ParsedBook      `json:"-"`
	ValidatedRows  []models.BookPerson      `json:"-"`
	People         []models.CanonicalPerson `json:"-"`
	HeldPeople     []models.CanonicalPerson `json:"-"`
}

// Count returns the number of books with the given outcome
func (r Report) Count(o Outcome) int {
	n := 0
	for _, b := range r.Books {
		if b.Outcome == o {
			n++
		}
	}
	return n
}

// Failures returns the not_found and failed books
func (r Report) Failures() []BookResult {
	var out []BookResult
	for _, b := range r.Books {
		if b.Outcome == Failed || b.Outcome == NotFound {
			out = append(out, b)
		}
	}
	return out
}

// Validate cross-checks each book's declared people against the association
// rows for its composite id. Rows without a resolved identity are reported as
// issues and left out of the tally. A book fails if and only if the expected
// and found totals differ; matching totals with a role mismatch or with
// uncounted rows yield validated_with_issues.
func Validate(books []models.ParsedBook, rows []models.BookPerson, people []models.CanonicalPerson) Report {
	byBook := make(map[string][]models.BookPerson)
	for _, row := range rows {
		byBook[row.CompositeID] = append(byBook[row.CompositeID], row)
	}

	var report Report
	files := make(map[string]*FileSummary)
	found := make(map[string]bool)

	for _, book := range books {
		res := validateBook(book, byBook[book.CompositeID])
		report.Books = append(report.Books, res)

		fs, ok := files[res.SourceFilename]
		if !ok {
			fs = &FileSummary{SourceFilename: res.SourceFilename}
			files[res.SourceFilename] = fs
		}
		fs.TotalBooks++

		switch res.Outcome {
		case NotFound:
			fs.NotFound++
		case Failed:
			fs.Failed++
		case Validated, ValidatedWithIssues:
			if res.Outcome == Validated {
				fs.Validated++
			} else {
				fs.ValidatedWithIssues++
			}
			report.ValidatedBooks = append(report.ValidatedBooks, book)
			for _, row := range byBook[book.CompositeID] {
				if id, ok := row.Identity.ID(); ok {
					found[id] = true
					report.ValidatedRows = append(report.ValidatedRows, row)
				}
			}
		}
	}

	for _, fs := range files {
		if fs.TotalBooks > 0 {
			fs.MatchedPercent = float64(fs.TotalBooks-fs.NotFound) / float64(fs.TotalBooks) * 100
		}
		report.Files = append(report.Files, *fs)
	}
	sort.Slice(report.Files, func(i, j int) bool {
		return report.Files[i].SourceFilename < report.Files[j].SourceFilename
	})

	for _, p := range people {
		if found[p.UnifiedID] {
			report.People = append(report.People, p)
		} else {
			report.HeldPeople = append(report.HeldPeople, p)
		}
	}

	slog.Info("Validated books",
		"books", len(books),
		"validated", report.Count(Validated),
		"validated_with_issues", report.Count(ValidatedWithIssues),
		"failed", report.Count(Failed),
		"not_found", report.Count(NotFound),
		"people_validated", len(report.People),
		"people_held", len(report.HeldPeople))

	return report
}

func validateBook(book models.ParsedBook, rows []models.BookPerson) BookResult {
	e := book.Entry
	res := BookResult{
		CompositeID:    book.CompositeID,
		SourceFilename: SourceOf(book),
		Expected: RoleCounts{
			Authors:      len(e.Authors),
			Editors:      len(e.Editors),
			Contributors: len(e.Contributors),
		},
	}
	if e.Translator != nil {
		res.Expected.Translators = 1
	}
	res.ExpectedTotal = res.Expected.Total()

	if len(rows) == 0 {
		res.Outcome = NotFound
		return res
	}

	for _, row := range rows {
		if !row.Identity.IsResolved() {
			res.Issues = append(res.Issues, Issue{
				DisplayName: row.DisplayName,
				SortOrder:   row.SortOrder,
				Identity:    row.Identity.String(),
			})
			continue
		}
		if row.IsAuthor {
			res.Found.Authors++
		}
		if row.IsEditor {
			res.Found.Editors++
		}
		if row.IsContributor {
			res.Found.Contributors++
		}
		if row.IsTranslator {
			res.Found.Translators++
		}
	}
	res.FoundTotal = res.Found.Total()

	res.Mismatch = RoleMismatch{
		Authors:      res.Expected.Authors != res.Found.Authors,
		Editors:      res.Expected.Editors != res.Found.Editors,
		Contributors: res.Expected.Contributors != res.Found.Contributors,
		Translators:  res.Expected.Translators != res.Found.Translators,
	}

	switch {
	case res.ExpectedTotal != res.FoundTotal:
		res.Outcome = Failed
	case res.Mismatch.Any() || len(res.Issues) > 0:
		res.Outcome = ValidatedWithIssues
	default:
		res.Outcome = Validated
	}
	return res
}

// SourceOf returns the source file a book was parsed from, falling back to
// the topic key embedded in its composite id.
func SourceOf(book models.ParsedBook) string {
	if s := book.Entry.Administrative.SourceFilename; s != "" {
		return s
	}
	parts := strings.Split(book.CompositeID, "_")
	if len(parts) > 3 {
		return strings.Join(parts[:len(parts)-3], "_")
	}
	return book.CompositeID
}
