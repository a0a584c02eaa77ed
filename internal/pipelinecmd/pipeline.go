package pipelinecmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/mvc24/bibliopa/internal/config"
	"github.com/mvc24/bibliopa/internal/models"
	"github.com/mvc24/bibliopa/internal/report"
	"github.com/mvc24/bibliopa/internal/storage"
)

// Pipeline runs the stages against one workspace. Every stage reads its
// inputs from the workspace and writes its outputs back, so stages can be
// run one at a time or in sequence.
type Pipeline struct {
	cfg config.Config
	ws  storage.Workspace
	run report.Run
	out io.Writer
	now func() time.Time
}

// NewPipeline creates a pipeline with a fresh run id
func NewPipeline(cfg config.Config) (*Pipeline, error) {
	runID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run id: %w", err)
	}

	p := &Pipeline{
		cfg: cfg,
		ws:  storage.NewWorkspace(cfg.Workdir),
		out: os.Stdout,
		now: time.Now,
	}
	p.run.Config = report.RunConfig{
		RunID:             runID,
		Timestamp:         p.now().UTC(),
		Workdir:           cfg.Workdir,
		BatchSize:         cfg.BatchSize,
		ExactThreshold:    cfg.Resolver.ExactThreshold,
		ProbableThreshold: cfg.Resolver.ProbableThreshold,
	}
	return p, nil
}

// RunID identifies this pipeline run in logs and reports
func (p *Pipeline) RunID() string { return p.run.Config.RunID }

// Report returns the run report collected so far
func (p *Pipeline) Report() report.Run { return p.run }

// Finish writes the run report and prints the summary
func (p *Pipeline) Finish() error {
	path, err := report.SaveYAML(p.ws.ReportDir(), p.run)
	if err != nil {
		return err
	}
	report.PrintSummary(p.out, p.run)
	fmt.Fprintf(p.out, "\nRun report saved to: %s\n", path)
	return nil
}

func (p *Pipeline) readConsolidated() ([]models.ConsolidatedRecord, error) {
	files, err := storage.JSONFiles(p.ws.ConsolidatedDir())
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no consolidated files in %s", storage.ErrMissingInput, p.ws.ConsolidatedDir())
	}

	var corpus []models.ConsolidatedRecord
	for _, f := range files {
		var records []models.ConsolidatedRecord
		if err := storage.ReadJSON(f, &records); err != nil {
			return nil, err
		}
		corpus = append(corpus, records...)
	}
	slog.Debug("Read consolidated corpus", "files", len(files), "records", len(corpus))
	return corpus, nil
}

// writeConsolidated writes the corpus back, one file per topic key, keeping record order
func (p *Pipeline) writeConsolidated(corpus []models.ConsolidatedRecord) error {
	byTopic := make(map[string][]models.ConsolidatedRecord)
	var order []string
	for _, r := range corpus {
		if _, ok := byTopic[r.TopicKey]; !ok {
			order = append(order, r.TopicKey)
		}
		byTopic[r.TopicKey] = append(byTopic[r.TopicKey], r)
	}
	for _, key := range order {
		if err := storage.WriteJSON(p.ws.ConsolidatedFile(key), byTopic[key]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) readParsed() ([]models.ParsedBook, error) {
	files, err := storage.JSONFiles(p.ws.ParsedDir())
	if err != nil {
		return nil, err
	}

	var books []models.ParsedBook
	for _, f := range files {
		var batch []models.ParsedBook
		if err := storage.ReadJSON(f, &batch); err != nil {
			return nil, err
		}
		books = append(books, batch...)
	}
	return books, nil
}
