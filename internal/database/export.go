package database

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/mvc24/bibliopa/internal/models"
)

// BookRow is the flat Parquet shape of a book
type BookRow struct {
	CompositeID        string `parquet:"composite_id"`
	Title              string `parquet:"title"`
	Subtitle           string `parquet:"subtitle,optional"`
	Publisher          string `parquet:"publisher,optional"`
	PlaceOfPublication string `parquet:"place_of_publication,optional"`
	PublicationYear    *int64 `parquet:"publication_year,optional"`
	Edition            string `parquet:"edition,optional"`
	Pages              *int64 `parquet:"pages,optional"`
	ISBN               string `parquet:"isbn,optional"`
	FormatOriginal     string `parquet:"format_original,optional"`
	FormatExpanded     string `parquet:"format_expanded,optional"`
	Condition          string `parquet:"condition,optional"`
	Topic              string `parquet:"topic"`
	Price              *int64 `parquet:"price,optional"`
	PriceImported      bool   `parquet:"price_imported"`
	IsTranslation      bool   `parquet:"is_translation"`
	IsMultivolume      bool   `parquet:"is_multivolume"`
	OriginalEntry      string `parquet:"original_entry"`
	ParsingConfidence  string `parquet:"parsing_confidence,optional"`
	NeedsReview        bool   `parquet:"needs_review"`
}

// PersonRow is the flat Parquet shape of a canonical person
type PersonRow struct {
	UnifiedID      string   `parquet:"unified_id"`
	DisplayName    string   `parquet:"display_name"`
	FamilyName     string   `parquet:"family_name,optional"`
	GivenNames     string   `parquet:"given_names,optional"`
	NameParticles  string   `parquet:"name_particles,optional"`
	SingleName     string   `parquet:"single_name,optional"`
	IsOrganisation bool     `parquet:"is_organisation"`
	FamilyVariants []string `parquet:"family_variants,list"`
	GivenVariants  []string `parquet:"given_variants,list"`
	MentionCount   int64    `parquet:"mention_count"`
}

// BookPersonRow is the flat Parquet shape of an association row
type BookPersonRow struct {
	CompositeID   string `parquet:"composite_id"`
	UnifiedID     string `parquet:"unified_id"`
	DisplayName   string `parquet:"display_name"`
	SortOrder     int64  `parquet:"sort_order"`
	IsAuthor      bool   `parquet:"is_author"`
	IsEditor      bool   `parquet:"is_editor"`
	IsContributor bool   `parquet:"is_contributor"`
	IsTranslator  bool   `parquet:"is_translator"`
}

// ExportFiles lists the files ExportParquet writes, relative to its directory
var ExportFiles = []string{"books.parquet", "people.parquet", "book_people.parquet"}

// ExportParquet writes the dataset's three tables as Parquet files into dir
func ExportParquet(dir string, ds Dataset) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}

	books := make([]BookRow, 0, len(ds.Books))
	for _, b := range ds.Books {
		e := b.Entry
		books = append(books, BookRow{
			CompositeID:        b.CompositeID,
			Title:              e.Title,
			Subtitle:           e.Subtitle,
			Publisher:          e.Publisher,
			PlaceOfPublication: e.PlaceOfPublication,
			PublicationYear:    int64Ptr(e.PublicationYear),
			Edition:            e.Edition,
			Pages:              int64Ptr(e.Pages),
			ISBN:               e.ISBN,
			FormatOriginal:     e.FormatOriginal,
			FormatExpanded:     e.FormatExpanded,
			Condition:          e.Condition,
			Topic:              e.Topic,
			Price:              e.Price,
			PriceImported:      ds.ImportedPrices[b.CompositeID],
			IsTranslation:      e.IsTranslation,
			IsMultivolume:      e.IsMultivolume,
			OriginalEntry:      e.Administrative.OriginalEntry,
			ParsingConfidence:  e.Administrative.ParsingConfidence,
			NeedsReview:        e.Administrative.NeedsReview,
		})
	}

	people := make([]PersonRow, 0, len(ds.People))
	for _, p := range ds.People {
		people = append(people, PersonRow{
			UnifiedID:      p.UnifiedID,
			DisplayName:    p.DisplayName,
			FamilyName:     p.FamilyName,
			GivenNames:     p.GivenNames,
			NameParticles:  p.NameParticles,
			SingleName:     p.SingleName,
			IsOrganisation: p.IsOrganisation,
			FamilyVariants: p.Variants.Family,
			GivenVariants:  p.Variants.Given,
			MentionCount:   int64(p.MentionCount),
		})
	}

	rows := make([]BookPersonRow, 0, len(ds.BookPeople))
	for _, r := range ds.BookPeople {
		id, _ := r.Identity.ID()
		rows = append(rows, BookPersonRow{
			CompositeID:   r.CompositeID,
			UnifiedID:     id,
			DisplayName:   r.DisplayName,
			SortOrder:     int64(r.SortOrder),
			IsAuthor:      r.IsAuthor,
			IsEditor:      r.IsEditor,
			IsContributor: r.IsContributor,
			IsTranslator:  r.IsTranslator,
		})
	}

	if err := parquet.WriteFile(filepath.Join(dir, ExportFiles[0]), books); err != nil {
		return fmt.Errorf("failed to write books parquet: %w", err)
	}
	if err := parquet.WriteFile(filepath.Join(dir, ExportFiles[1]), people); err != nil {
		return fmt.Errorf("failed to write people parquet: %w", err)
	}
	if err := parquet.WriteFile(filepath.Join(dir, ExportFiles[2]), rows); err != nil {
		return fmt.Errorf("failed to write book_people parquet: %w", err)
	}

	slog.Info("Exported parquet", "dir", dir, "books", len(books), "people", len(people), "book_people", len(rows))
	return nil
}

// ReadParquet reads every row of an exported file
func ReadParquet[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet %s: %w", path, err)
	}
	return rows, nil
}

func int64Ptr(v *int) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	return &n
}

// ImportedPrices collects the composite ids whose price came from discrepancy resolution
func ImportedPrices(records []models.ConsolidatedRecord) map[string]bool {
	out := make(map[string]bool)
	for _, r := range records {
		if r.PriceImported {
			out[r.CompositeID] = true
		}
	}
	return out
}
