package models

import "time"

// SourceTag identifies which catalog an entry was extracted from
type SourceTag string

const (
	// TextAuthoritative entries are trusted for text and topic ("kp")
	TextAuthoritative SourceTag = "text-authoritative"
	// PriceAuthoritative entries are only trusted for their price ("p")
	PriceAuthoritative SourceTag = "price-authoritative"
)

// Entry is one extracted catalog line before reconciliation
type Entry struct {
	Text      string    `json:"text" parquet:"text"`
	SourceTag SourceTag `json:"source_tag" parquet:"source_tag"`
	Price     *int64    `json:"price" parquet:"price,optional"`
	Topic     string    `json:"topic" parquet:"topic"`
	TopicKey  string    `json:"topic_key" parquet:"topic_key"`
}

// ConsolidatedRecord is a reconciled book entry keyed by its composite id
type ConsolidatedRecord struct {
	Text          string `json:"text"`
	Price         *int64 `json:"price"`
	Topic         string `json:"topic"`
	TopicKey      string `json:"topic_key"`
	CompositeID   string `json:"composite_id"`
	PriceImported bool   `json:"price_imported,omitempty"`
}

// Discrepancy is a price-authoritative entry with no text-authoritative counterpart
type Discrepancy struct {
	Entry
	SourceIndex int `json:"source_index"`
}

// Tier is the confidence bucket a resolved discrepancy lands in
type Tier string

const (
	TierResolved    Tier = "resolved"
	TierResolvedIsh Tier = "resolved_ish"
	TierUnresolved  Tier = "unresolved"
)

// ResolvedDiscrepancy is the outcome of matching a discrepancy against the corpus
type ResolvedDiscrepancy struct {
	Discrepancy        Discrepancy `json:"discrepancy"`
	Tier               Tier        `json:"tier"`
	Exact              bool        `json:"exact"`
	Score              int         `json:"score"`
	MatchedText        string      `json:"matched_text,omitempty"`
	MatchedTopic       string      `json:"matched_topic,omitempty"`
	MatchedPrice       *int64      `json:"matched_price,omitempty"`
	MatchedCompositeID string      `json:"matched_composite_id,omitempty"`
	CandidateCount     int         `json:"candidate_count,omitempty"`
}

// TopicSummary is the audit line written for every reconciled topic
type TopicSummary struct {
	RunID            string    `json:"run_id"`
	Timestamp        time.Time `json:"timestamp"`
	Topic            string    `json:"topic"`
	TopicKey         string    `json:"topic_key"`
	PrimaryEntries   int       `json:"primary_entries"`
	SecondaryEntries int       `json:"secondary_entries"`
	RecordsCreated   int       `json:"records_created"`
	MatchesFound     int       `json:"matches_found"`
	Discrepancies    int       `json:"discrepancies"`
}

// Roles holds the role flags of one person mention
type Roles struct {
	IsAuthor      bool `json:"is_author" parquet:"is_author"`
	IsEditor      bool `json:"is_editor" parquet:"is_editor"`
	IsContributor bool `json:"is_contributor" parquet:"is_contributor"`
	IsTranslator  bool `json:"is_translator" parquet:"is_translator"`
}

// PersonMention is one occurrence of a person linked to one book
type PersonMention struct {
	BookCompositeID string         `json:"composite_id"`
	SourceFilename  string         `json:"source_filename,omitempty"`
	DisplayName     string         `json:"display_name"`
	FamilyName      string         `json:"family_name"`
	GivenNames      string         `json:"given_names"`
	NameParticles   string         `json:"name_particles"`
	SingleName      string         `json:"single_name"`
	Roles           Roles          `json:"roles"`
	SortOrder       int            `json:"sort_order"`
	Identity        PersonIdentity `json:"unified_id"`
}

// NameVariants lists the non-canonical spellings observed for each attribute
type NameVariants struct {
	Family    []string `json:"family_variants"`
	Given     []string `json:"given_variants"`
	Particles []string `json:"particles_variants"`
	Single    []string `json:"single_variants"`
}

// CanonicalPerson is the deduplicated identity for a group of mentions
type CanonicalPerson struct {
	UnifiedID      string       `json:"unified_id"`
	DisplayName    string       `json:"display_name"`
	FamilyName     string       `json:"family_name"`
	GivenNames     string       `json:"given_names"`
	NameParticles  string       `json:"name_particles"`
	SingleName     string       `json:"single_name"`
	IsOrganisation bool         `json:"is_organisation"`
	Variants       NameVariants `json:"variants"`
	MentionCount   int          `json:"mention_count"`
}

// BookPerson is one row of the book-to-person association table
type BookPerson struct {
	CompositeID    string         `json:"composite_id"`
	SourceFilename string         `json:"source_filename,omitempty"`
	Identity       PersonIdentity `json:"unified_id"`
	DisplayName    string         `json:"display_name"`
	FamilyName     string         `json:"family_name"`
	GivenNames     string         `json:"given_names"`
	NameParticles  string         `json:"name_particles"`
	SingleName     string         `json:"single_name"`
	SortOrder      int            `json:"sort_order"`
	Roles
}

// PersonName is a person as returned by the structured parser
type PersonName struct {
	DisplayName   string `json:"display_name" validate:"required_without=SingleName"`
	FamilyName    string `json:"family_name"`
	GivenNames    string `json:"given_names"`
	NameParticles string `json:"name_particles"`
	SingleName    string `json:"single_name"`
}

// Volume describes one volume of a multi-volume work
type Volume struct {
	VolumeNumber *int   `json:"volume_number"`
	VolumeTitle  string `json:"volume_title"`
	Pages        *int   `json:"pages"`
	Notes        string `json:"notes"`
}

// Administrative carries provenance and review data for a parsed entry
type Administrative struct {
	SourceFilename    string `json:"source_filename,omitempty"`
	OriginalEntry     string `json:"original_entry" validate:"required"`
	ParsingConfidence string `json:"parsing_confidence" validate:"omitempty,oneof=high medium low"`
	NeedsReview       bool   `json:"needs_review"`
	VerificationNotes string `json:"verification_notes,omitempty"`
}

// ParsedEntry is the structured bibliographic record for one consolidated entry
type ParsedEntry struct {
	Title              string         `json:"title" validate:"required"`
	Subtitle           string         `json:"subtitle"`
	Publisher          string         `json:"publisher"`
	PlaceOfPublication string         `json:"place_of_publication"`
	PublicationYear    *int           `json:"publication_year" validate:"omitempty,min=1400,max=2100"`
	Edition            string         `json:"edition"`
	Pages              *int           `json:"pages" validate:"omitempty,min=0"`
	ISBN               string         `json:"isbn"`
	FormatOriginal     string         `json:"format_original"`
	FormatExpanded     string         `json:"format_expanded"`
	Condition          string         `json:"condition"`
	Copies             *int           `json:"copies"`
	Illustrations      string         `json:"illustrations"`
	Packaging          string         `json:"packaging"`
	Topic              string         `json:"topic"`
	Price              *int64         `json:"price" validate:"omitempty,min=0"`
	IsTranslation      bool           `json:"is_translation"`
	OriginalLanguage   string         `json:"original_language"`
	IsMultivolume      bool           `json:"is_multivolume"`
	SeriesTitle        string         `json:"series_title"`
	TotalVolumes       *int           `json:"total_volumes"`
	Volumes            []Volume       `json:"volumes"`
	Authors            []PersonName   `json:"authors" validate:"dive"`
	Editors            []PersonName   `json:"editors" validate:"dive"`
	Contributors       []PersonName   `json:"contributors" validate:"dive"`
	Translator         *PersonName    `json:"translator" validate:"omitempty"`
	Administrative     Administrative `json:"administrative" validate:"required"`
}

// ParsedBook pairs a parsed entry with the composite id it was parsed from
type ParsedBook struct {
	CompositeID string      `json:"custom_id" validate:"required"`
	Entry       ParsedEntry `json:"parsed_entry"`
}
