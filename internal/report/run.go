// Package report renders run summaries and review material for people.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mvc24/bibliopa/internal/database"
	"github.com/mvc24/bibliopa/internal/validate"
)

// RunConfig records the settings a run used
type RunConfig struct {
	RunID             string    `yaml:"run_id"`
	Timestamp         time.Time `yaml:"timestamp"`
	Workdir           string    `yaml:"workdir"`
	BatchSize         int       `yaml:"batch_size"`
	ExactThreshold    int       `yaml:"exact_threshold"`
	ProbableThreshold int       `yaml:"probable_threshold"`
	Provider          string    `yaml:"provider,omitempty"`
	Model             string    `yaml:"model,omitempty"`
}

// TopicStats is the reconciliation outcome of one topic
type TopicStats struct {
	Topic            string `yaml:"topic"`
	PrimaryEntries   int    `yaml:"primary_entries"`
	SecondaryEntries int    `yaml:"secondary_entries"`
	RecordsCreated   int    `yaml:"records_created"`
	MatchesFound     int    `yaml:"matches_found"`
	Discrepancies    int    `yaml:"discrepancies"`
}

type ReconcileStats struct {
	Topics        []TopicStats `yaml:"topics"`
	Records       int          `yaml:"records"`
	Discrepancies int          `yaml:"discrepancies"`
}

type ResolutionStats struct {
	Resolved      int `yaml:"resolved"`
	ResolvedIsh   int `yaml:"resolved_ish"`
	Unresolved    int `yaml:"unresolved"`
	PricesApplied int `yaml:"prices_applied"`
	Collisions    int `yaml:"collisions"`
}

type ParsingStats struct {
	Parsed      int `yaml:"parsed"`
	Quarantined int `yaml:"quarantined"`
	NeedsReview int `yaml:"needs_review"`
}

type PeopleStats struct {
	Split        int `yaml:"split"`
	Mentions     int `yaml:"mentions"`
	People       int `yaml:"people"`
	Associations int `yaml:"associations"`
	Review       int `yaml:"review"`
}

type ValidationStats struct {
	Validated           int                    `yaml:"validated"`
	ValidatedWithIssues int                    `yaml:"validated_with_issues"`
	Failed              int                    `yaml:"failed"`
	NotFound            int                    `yaml:"not_found"`
	PeopleValidated     int                    `yaml:"people_validated"`
	PeopleHeld          int                    `yaml:"people_held"`
	Files               []validate.FileSummary `yaml:"files,omitempty"`
}

// Run is the YAML report of one pipeline run. Stages that did not run are omitted.
type Run struct {
	Config     RunConfig        `yaml:"config"`
	Reconcile  *ReconcileStats  `yaml:"reconcile,omitempty"`
	Resolution *ResolutionStats `yaml:"resolution,omitempty"`
	Parsing    *ParsingStats    `yaml:"parsing,omitempty"`
	People     *PeopleStats     `yaml:"people,omitempty"`
	Validation *ValidationStats `yaml:"validation,omitempty"`
	Database   *database.Stats  `yaml:"database,omitempty"`
}

// ValidationStatsFrom summarises a validation report
func ValidationStatsFrom(r validate.Report) *ValidationStats {
	return &ValidationStats{
		Validated:           r.Count(validate.Validated),
		ValidatedWithIssues: r.Count(validate.ValidatedWithIssues),
		Failed:              r.Count(validate.Failed),
		NotFound:            r.Count(validate.NotFound),
		PeopleValidated:     len(r.People),
		PeopleHeld:          len(r.HeldPeople),
		Files:               r.Files,
	}
}

// WriteYAML encodes the run report
func WriteYAML(w io.Writer, run Run) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&run); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return enc.Close()
}

// SaveYAML writes the run report into dir and returns the file path
func SaveYAML(dir string, run Run) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	ts := run.Config.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	filename := filepath.Join(dir, fmt.Sprintf("run-%s-%s.yaml", ts.Format("2006-01-02_15-04-05"), run.Config.RunID))

	f, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("failed to create YAML file: %w", err)
	}
	defer f.Close()

	if err := WriteYAML(f, run); err != nil {
		return "", err
	}
	return filename, f.Close()
}

// LoadYAML reads a run report written by SaveYAML
func LoadYAML(path string) (Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Run{}, fmt.Errorf("failed to read report: %w", err)
	}
	var run Run
	if err := yaml.Unmarshal(data, &run); err != nil {
		return Run{}, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return run, nil
}
