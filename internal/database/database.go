// Package database bulk-loads validated books and people into SQLite and
// exports the same tables to Parquet.
package database

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mvc24/bibliopa/internal/models"
	"github.com/mvc24/bibliopa/internal/reconcile"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// ErrUnknownPerson is returned when an association row points at a person
// that is not part of the load.
var ErrUnknownPerson = errors.New("association references unknown person")

// Dataset is everything one load writes
type Dataset struct {
	Books      []models.ParsedBook
	People     []models.CanonicalPerson
	BookPeople []models.BookPerson
	// ImportedPrices holds the composite ids whose price was attached by
	// discrepancy resolution rather than by reconciliation.
	ImportedPrices map[string]bool
	RunID          string
}

// Stats counts the rows written per table
type Stats struct {
	Topics     int `json:"topics" yaml:"topics"`
	Books      int `json:"books" yaml:"books"`
	Volumes    int `json:"volumes" yaml:"volumes"`
	People     int `json:"people" yaml:"people"`
	BookPeople int `json:"book_people" yaml:"book_people"`
	Prices     int `json:"prices" yaml:"prices"`
}

// DB is the SQLite target database
type DB struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to exec pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Load replaces the contents of every table with the dataset in a single
// transaction. Nothing is written if any row fails.
func (d *DB) Load(ctx context.Context, ds Dataset) (Stats, error) {
	var stats Stats

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"book_people", "prices", "book_admin", "volumes", "people", "books", "topics"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return stats, fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	topicIDs, err := insertTopics(ctx, tx, ds.Books)
	if err != nil {
		return stats, err
	}
	stats.Topics = len(topicIDs)

	bookIDs := make(map[string]int64, len(ds.Books))
	for _, b := range ds.Books {
		id, err := insertBook(ctx, tx, b, topicIDs[b.Entry.Topic])
		if err != nil {
			return stats, fmt.Errorf("failed to insert book %s: %w", b.CompositeID, err)
		}
		bookIDs[b.CompositeID] = id
		stats.Books++

		for _, v := range b.Entry.Volumes {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO volumes (book_id, volume_number, volume_title, pages, notes)
				VALUES (?, ?, ?, ?, ?)`,
				id, nullInt(v.VolumeNumber), nullString(v.VolumeTitle), nullInt(v.Pages), nullString(v.Notes),
			); err != nil {
				return stats, fmt.Errorf("failed to insert volume for %s: %w", b.CompositeID, err)
			}
			stats.Volumes++
		}

		if b.Entry.Price != nil {
			source := "catalog"
			if ds.ImportedPrices[b.CompositeID] {
				source = "resolved"
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO prices (book_id, amount, imported_price, source)
				VALUES (?, ?, ?, ?)`,
				id, *b.Entry.Price, ds.ImportedPrices[b.CompositeID], source,
			); err != nil {
				return stats, fmt.Errorf("failed to insert price for %s: %w", b.CompositeID, err)
			}
			stats.Prices++
		}

		a := b.Entry.Administrative
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO book_admin (book_id, composite_id, original_entry, parsing_confidence, needs_review, verification_notes, batch_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, b.CompositeID, a.OriginalEntry, nullString(a.ParsingConfidence), a.NeedsReview,
			nullString(a.VerificationNotes), nullString(ds.RunID),
		); err != nil {
			return stats, fmt.Errorf("failed to insert admin row for %s: %w", b.CompositeID, err)
		}
	}

	personIDs := make(map[string]int64, len(ds.People))
	for _, p := range ds.People {
		variants, err := json.Marshal(p.Variants)
		if err != nil {
			return stats, fmt.Errorf("failed to marshal variants for %s: %w", p.UnifiedID, err)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO people (unified_id, display_name, family_name, given_names, name_particles, single_name, is_organisation, variants)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.UnifiedID, nullString(p.DisplayName), nullString(p.FamilyName), nullString(p.GivenNames),
			nullString(p.NameParticles), nullString(p.SingleName), p.IsOrganisation, string(variants),
		)
		if err != nil {
			return stats, fmt.Errorf("failed to insert person %s: %w", p.UnifiedID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return stats, fmt.Errorf("failed to read person id: %w", err)
		}
		personIDs[p.UnifiedID] = id
		stats.People++
	}

	for _, row := range ds.BookPeople {
		unifiedID, ok := row.Identity.ID()
		if !ok {
			return stats, fmt.Errorf("%w: %s row %q is %s", ErrUnknownPerson, row.CompositeID, row.DisplayName, row.Identity)
		}
		personID, ok := personIDs[unifiedID]
		if !ok {
			return stats, fmt.Errorf("%w: %s", ErrUnknownPerson, unifiedID)
		}
		bookID, ok := bookIDs[row.CompositeID]
		if !ok {
			return stats, fmt.Errorf("association references unknown book %s", row.CompositeID)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO book_people (book_id, composite_id, person_id, unified_id, display_name, family_name,
				given_names, name_particles, single_name, sort_order, is_author, is_editor, is_contributor, is_translator)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			bookID, row.CompositeID, personID, unifiedID, nullString(row.DisplayName), nullString(row.FamilyName),
			nullString(row.GivenNames), nullString(row.NameParticles), nullString(row.SingleName), row.SortOrder,
			row.IsAuthor, row.IsEditor, row.IsContributor, row.IsTranslator,
		); err != nil {
			return stats, fmt.Errorf("failed to insert book_people row for %s: %w", row.CompositeID, err)
		}
		stats.BookPeople++
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("failed to commit: %w", err)
	}

	slog.Info("Loaded database",
		"topics", stats.Topics,
		"books", stats.Books,
		"people", stats.People,
		"book_people", stats.BookPeople,
		"prices", stats.Prices)
	return stats, nil
}

// Count returns the number of rows in a table
func (d *DB) Count(ctx context.Context, table string) (int, error) {
	switch table {
	case "topics", "books", "volumes", "people", "book_people", "prices", "book_admin":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// PeopleForBook returns the display names linked to a book in sort order
func (d *DB) PeopleForBook(ctx context.Context, compositeID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT p.display_name
		FROM book_people bp
		JOIN people p ON p.person_id = bp.person_id
		WHERE bp.composite_id = ?
		ORDER BY bp.is_translator, bp.sort_order`, compositeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query book_people: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan book_people: %w", err)
		}
		names = append(names, name.String)
	}
	return names, rows.Err()
}

func insertTopics(ctx context.Context, tx *sql.Tx, books []models.ParsedBook) (map[string]int64, error) {
	seen := make(map[string]bool)
	var topics []string
	for _, b := range books {
		t := strings.TrimSpace(b.Entry.Topic)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		topics = append(topics, t)
	}
	sort.Strings(topics)

	ids := make(map[string]int64, len(topics))
	for _, t := range topics {
		res, err := tx.ExecContext(ctx, `INSERT INTO topics (topic_name, topic_key) VALUES (?, ?)`, t, reconcile.TopicKey(t))
		if err != nil {
			return nil, fmt.Errorf("failed to insert topic %s: %w", t, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read topic id: %w", err)
		}
		ids[t] = id
	}
	return ids, nil
}

func insertBook(ctx context.Context, tx *sql.Tx, b models.ParsedBook, topicID int64) (int64, error) {
	e := b.Entry
	var topic sql.NullInt64
	if topicID != 0 {
		topic = sql.NullInt64{Int64: topicID, Valid: true}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO books (composite_id, title, subtitle, publisher, place_of_publication, publication_year,
			edition, pages, isbn, format_original, format_expanded, condition, copies, illustrations, packaging,
			topic_id, is_translation, original_language, is_multivolume, series_title, total_volumes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.CompositeID, e.Title, nullString(e.Subtitle), nullString(e.Publisher), nullString(e.PlaceOfPublication),
		nullInt(e.PublicationYear), nullString(e.Edition), nullInt(e.Pages), nullString(e.ISBN),
		nullString(e.FormatOriginal), nullString(e.FormatExpanded), nullString(e.Condition), nullInt(e.Copies),
		nullString(e.Illustrations), nullString(e.Packaging), topic, e.IsTranslation,
		nullString(e.OriginalLanguage), e.IsMultivolume, nullString(e.SeriesTitle), nullInt(e.TotalVolumes),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
