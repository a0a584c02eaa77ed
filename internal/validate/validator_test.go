package validate

import (
	"testing"

	"github.com/mvc24/bibliopa/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(n int) []models.PersonName {
	out := make([]models.PersonName, n)
	for i := range out {
		out[i] = models.PersonName{DisplayName: "Person"}
	}
	return out
}

func book(id string, authors, editors, contributors int, translator bool) models.ParsedBook {
	b := models.ParsedBook{
		CompositeID: id,
		Entry: models.ParsedEntry{
			Title:          "Titel",
			Authors:        names(authors),
			Editors:        names(editors),
			Contributors:   names(contributors),
			Administrative: models.Administrative{SourceFilename: "philosophie.json", OriginalEntry: "x"},
		},
	}
	if translator {
		b.Entry.Translator = &models.PersonName{DisplayName: "Übersetzer"}
	}
	return b
}

func row(book, id string, roles models.Roles) models.BookPerson {
	r := models.BookPerson{CompositeID: book, Roles: roles}
	if id == "oops" {
		r.Identity = models.Ambiguous()
	} else if id != "" {
		r.Identity = models.Resolved(id)
	}
	return r
}

var (
	asAuthor     = models.Roles{IsAuthor: true}
	asEditor     = models.Roles{IsEditor: true}
	asTranslator = models.Roles{IsTranslator: true}
)

func TestValidateOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		book     models.ParsedBook
		rows     []models.BookPerson
		expected Outcome
		mismatch RoleMismatch
	}{
		{
			name:     "clean",
			book:     book("b_0_1_1", 1, 1, 0, true),
			rows:     []models.BookPerson{row("b_0_1_1", "a", asAuthor), row("b_0_1_1", "e", asEditor), row("b_0_1_1", "t", asTranslator)},
			expected: Validated,
		},
		{
			name:     "role mismatch with matching total",
			book:     book("b_0_1_1", 1, 1, 0, false),
			rows:     []models.BookPerson{row("b_0_1_1", "a", asAuthor), row("b_0_1_1", "b", asAuthor)},
			expected: ValidatedWithIssues,
			mismatch: RoleMismatch{Authors: true, Editors: true},
		},
		{
			name:     "total mismatch",
			book:     book("b_0_1_1", 2, 0, 0, false),
			rows:     []models.BookPerson{row("b_0_1_1", "a", asAuthor)},
			expected: Failed,
			mismatch: RoleMismatch{Authors: true},
		},
		{
			name:     "not found",
			book:     book("b_0_1_1", 1, 0, 0, false),
			rows:     []models.BookPerson{row("other_0_1_1", "a", asAuthor)},
			expected: NotFound,
		},
		{
			name:     "ambiguous row drops the total",
			book:     book("b_0_1_1", 2, 0, 0, false),
			rows:     []models.BookPerson{row("b_0_1_1", "a", asAuthor), row("b_0_1_1", "oops", asAuthor)},
			expected: Failed,
			mismatch: RoleMismatch{Authors: true},
		},
		{
			name:     "ambiguous row with total still matching",
			book:     book("b_0_1_1", 1, 0, 0, false),
			rows:     []models.BookPerson{row("b_0_1_1", "a", asAuthor), row("b_0_1_1", "oops", asEditor)},
			expected: ValidatedWithIssues,
		},
		{
			name:     "one person with two roles",
			book:     book("b_0_1_1", 1, 1, 0, false),
			rows:     []models.BookPerson{row("b_0_1_1", "a", models.Roles{IsAuthor: true, IsEditor: true})},
			expected: Validated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Validate([]models.ParsedBook{tt.book}, tt.rows, nil)
			require.Len(t, report.Books, 1)
			assert.Equal(t, tt.expected, report.Books[0].Outcome)
			assert.Equal(t, tt.mismatch, report.Books[0].Mismatch)
		})
	}
}

func TestValidateRoleMismatchScenario(t *testing.T) {
	b := book("philosophie_5_1_1", 1, 1, 0, false)
	rows := []models.BookPerson{
		row("philosophie_5_1_1", "kant_immanuel", asAuthor),
		row("philosophie_5_1_1", "hegel_georg", asAuthor),
	}

	report := Validate([]models.ParsedBook{b}, rows, nil)
	res := report.Books[0]

	assert.Equal(t, 2, res.ExpectedTotal)
	assert.Equal(t, 2, res.FoundTotal)
	assert.True(t, res.Mismatch.Editors)
	assert.Equal(t, ValidatedWithIssues, res.Outcome)
	assert.Len(t, report.ValidatedBooks, 1)
}

func TestValidateFailsIffTotalsDiffer(t *testing.T) {
	var books []models.ParsedBook
	var rows []models.BookPerson
	for i, shape := range [][2]int{{1, 1}, {2, 1}, {0, 1}, {3, 3}, {2, 0}} {
		id := string(rune('a'+i)) + "_0_1_1"
		books = append(books, book(id, shape[0], 0, 0, false))
		for j := 0; j < shape[1]; j++ {
			rows = append(rows, row(id, "p", asEditor))
		}
	}

	report := Validate(books, rows, nil)
	for _, res := range report.Books {
		if res.Outcome == NotFound {
			continue
		}
		assert.Equal(t, res.ExpectedTotal != res.FoundTotal, res.Outcome == Failed, res.CompositeID)
	}
}

func TestValidateFileSummaryAndPeople(t *testing.T) {
	books := []models.ParsedBook{
		book("philosophie_0_1_1", 1, 0, 0, false),
		book("philosophie_1_1_1", 1, 0, 0, false),
		book("philosophie_2_1_1", 2, 0, 0, false),
		book("philosophie_3_1_1", 1, 0, 0, false),
	}
	rows := []models.BookPerson{
		row("philosophie_0_1_1", "kant", asAuthor),
		row("philosophie_1_1_1", "hegel", asEditor),
		row("philosophie_2_1_1", "fichte", asAuthor),
	}
	people := []models.CanonicalPerson{{UnifiedID: "kant"}, {UnifiedID: "hegel"}, {UnifiedID: "fichte"}, {UnifiedID: "schelling"}}

	report := Validate(books, rows, people)

	require.Len(t, report.Files, 1)
	fs := report.Files[0]
	assert.Equal(t, "philosophie.json", fs.SourceFilename)
	assert.Equal(t, 4, fs.TotalBooks)
	assert.Equal(t, 1, fs.Validated)
	assert.Equal(t, 1, fs.ValidatedWithIssues)
	assert.Equal(t, 1, fs.Failed)
	assert.Equal(t, 1, fs.NotFound)
	assert.InDelta(t, 75.0, fs.MatchedPercent, 0.001)

	var validated []string
	for _, p := range report.People {
		validated = append(validated, p.UnifiedID)
	}
	assert.ElementsMatch(t, []string{"kant", "hegel"}, validated)
	require.Len(t, report.HeldPeople, 2)

	assert.Len(t, report.ValidatedRows, 2)
	assert.Len(t, report.Failures(), 2)
}

func TestSourceOf(t *testing.T) {
	assert.Equal(t, "de-lit-texte", SourceOf(models.ParsedBook{CompositeID: "de-lit-texte_12_1_3"}))
	assert.Equal(t, "kunst_und_design", SourceOf(models.ParsedBook{CompositeID: "kunst_und_design_0_1_1"}))
	assert.Equal(t, "lyrik.json", SourceOf(models.ParsedBook{
		CompositeID: "lyrik_0_1_1",
		Entry:       models.ParsedEntry{Administrative: models.Administrative{SourceFilename: "lyrik.json"}},
	}))
}
