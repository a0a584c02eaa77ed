package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/mvc24/bibliopa/internal/models"
	"github.com/mvc24/bibliopa/internal/parsing"
	"github.com/mvc24/bibliopa/internal/people"
	"github.com/mvc24/bibliopa/internal/validate"
)

// Review is everything a person needs to look at after a run
type Review struct {
	ResolvedIsh []models.ResolvedDiscrepancy
	Unresolved  []models.ResolvedDiscrepancy
	Quarantined []parsing.QuarantinedRecord
	NeedsReview []models.ParsedBook
	People      []people.ReviewItem
	Failures    []validate.BookResult
}

// Sheet names of the review workbook
const (
	SheetDiscrepancies = "Discrepancies"
	SheetQuarantine    = "Quarantine"
	SheetEntries       = "Entries"
	SheetPeople        = "People"
	SheetValidation    = "Validation"
)

type sheet struct {
	name    string
	headers []string
	rows    [][]interface{}
}

// SaveWorkbook writes the review material as an XLSX workbook, one sheet per concern
func SaveWorkbook(filename string, r Review) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, s := range reviewSheets(r) {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", s.name, err)
		}

		for col, header := range s.headers {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			if err := f.SetCellValue(s.name, cell, header); err != nil {
				return err
			}
			if err := f.SetCellStyle(s.name, cell, cell, headerStyle); err != nil {
				return err
			}
			name, _ := excelize.ColumnNumberToName(col + 1)
			if err := f.SetColWidth(s.name, name, name, 20); err != nil {
				return err
			}
		}

		for i, row := range s.rows {
			cell, _ := excelize.CoordinatesToCellName(1, i+2)
			if err := f.SetSheetRow(s.name, cell, &row); err != nil {
				return fmt.Errorf("failed to write %s row %d: %w", s.name, i+1, err)
			}
		}
	}

	f.SetActiveSheet(0)
	if err := f.SaveAs(filename); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func reviewSheets(r Review) []sheet {
	discrepancies := sheet{
		name:    SheetDiscrepancies,
		headers: []string{"Tier", "Topic", "Score", "Price", "Text", "Matched Composite ID", "Matched Text"},
	}
	for _, bucket := range [][]models.ResolvedDiscrepancy{r.ResolvedIsh, r.Unresolved} {
		for _, d := range bucket {
			discrepancies.rows = append(discrepancies.rows, []interface{}{
				string(d.Tier), d.Discrepancy.Topic, d.Score, formatPrice(d.Discrepancy.Price),
				d.Discrepancy.Text, d.MatchedCompositeID, d.MatchedText,
			})
		}
	}

	quarantine := sheet{
		name:    SheetQuarantine,
		headers: []string{"Composite ID", "Error", "Raw Response"},
	}
	for _, q := range r.Quarantined {
		quarantine.rows = append(quarantine.rows, []interface{}{q.SourceID, q.Error, truncate(q.RawContent, 32000)})
	}

	entries := sheet{
		name:    SheetEntries,
		headers: []string{"Composite ID", "Title", "Confidence", "Original Entry", "Notes"},
	}
	for _, b := range r.NeedsReview {
		a := b.Entry.Administrative
		entries.rows = append(entries.rows, []interface{}{b.CompositeID, b.Entry.Title, a.ParsingConfidence, a.OriginalEntry, a.VerificationNotes})
	}

	persons := sheet{
		name:    SheetPeople,
		headers: []string{"Reason", "Composite ID", "Display Name", "Family Name", "Given Names", "Sort Order"},
	}
	for _, item := range r.People {
		m := item.Mention
		persons.rows = append(persons.rows, []interface{}{string(item.Reason), m.BookCompositeID, m.DisplayName, m.FamilyName, m.GivenNames, m.SortOrder})
	}

	validation := sheet{
		name:    SheetValidation,
		headers: []string{"Composite ID", "Source", "Outcome", "Expected", "Found", "Issues"},
	}
	for _, f := range r.Failures {
		validation.rows = append(validation.rows, []interface{}{f.CompositeID, f.SourceFilename, string(f.Outcome), f.ExpectedTotal, f.FoundTotal, len(f.Issues)})
	}

	return []sheet{discrepancies, quarantine, entries, persons, validation}
}
