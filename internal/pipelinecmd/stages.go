package pipelinecmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/mvc24/bibliopa/internal/database"
	"github.com/mvc24/bibliopa/internal/discrepancy"
	"github.com/mvc24/bibliopa/internal/models"
	"github.com/mvc24/bibliopa/internal/parsing"
	"github.com/mvc24/bibliopa/internal/people"
	"github.com/mvc24/bibliopa/internal/providers"
	"github.com/mvc24/bibliopa/internal/reconcile"
	"github.com/mvc24/bibliopa/internal/report"
	"github.com/mvc24/bibliopa/internal/source"
	"github.com/mvc24/bibliopa/internal/storage"
	"github.com/mvc24/bibliopa/internal/validate"
)

// Reconcile pairs the two extraction outputs per topic and writes the
// consolidated records, their batches and the discrepancy backlog. All
// inputs are read before anything is written.
func (p *Pipeline) Reconcile(ctx context.Context) (*report.ReconcileStats, error) {
	pairs, err := source.Pair(p.cfg.TextDir, p.cfg.PriceDir)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: no source files in %s", storage.ErrMissingInput, p.cfg.TextDir)
	}

	// Hyphenated files such as ERSTAUSGABEN-A and ERSTAUSGABEN-B share a
	// topic key and are reconciled as one topic, in filename order.
	type topicInput struct {
		key                string
		files              []string
		primary, secondary []models.Entry
	}
	var inputs []*topicInput
	byKey := make(map[string]*topicInput)
	for _, pair := range pairs {
		primary, secondary, err := pair.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", pair.Filename, err)
		}
		key := reconcile.TopicKey(reconcile.TopicFromFilename(pair.Filename))
		in, ok := byKey[key]
		if !ok {
			in = &topicInput{key: key}
			byKey[key] = in
			inputs = append(inputs, in)
		}
		in.files = append(in.files, pair.Filename)
		in.primary = append(in.primary, primary...)
		in.secondary = append(in.secondary, secondary...)
	}

	stats := &report.ReconcileStats{}
	var backlog []models.Discrepancy
	processingLog := storage.NewJSONLog(p.ws.ProcessingLog())
	discrepancyLog := storage.NewJSONLog(p.ws.DiscrepancyLog())

	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res := reconcile.Reconcile(in.primary, in.secondary, reconcile.Options{
			BatchSize: p.cfg.BatchSize,
			RunID:     p.RunID(),
			Now:       p.now,
		})
		if res.Summary.TopicKey == "" {
			res.Summary.Topic = reconcile.TopicFromFilename(in.files[0])
			res.Summary.TopicKey = in.key
		}
		if len(in.files) > 1 {
			res.Summary.Topic = reconcile.BaseTopic(res.Summary.Topic)
		}
		key := res.Summary.TopicKey

		if err := storage.WriteJSON(p.ws.ConsolidatedFile(key), res.Records); err != nil {
			return nil, err
		}
		batches := reconcile.Batches(res.Records, p.cfg.BatchSize)
		for i, batch := range batches {
			if err := storage.WriteJSON(p.ws.BatchFile(key, i+1, len(batches)), batch); err != nil {
				return nil, err
			}
		}

		if err := processingLog.Append(res.Summary); err != nil {
			return nil, err
		}
		logged := make([]any, len(res.Discrepancies))
		for i, d := range res.Discrepancies {
			logged[i] = d
		}
		if err := discrepancyLog.Append(logged...); err != nil {
			return nil, err
		}

		backlog = append(backlog, res.Discrepancies...)
		stats.Records += len(res.Records)
		stats.Discrepancies += len(res.Discrepancies)
		stats.Topics = append(stats.Topics, report.TopicStats{
			Topic:            res.Summary.Topic,
			PrimaryEntries:   res.Summary.PrimaryEntries,
			SecondaryEntries: res.Summary.SecondaryEntries,
			RecordsCreated:   res.Summary.RecordsCreated,
			MatchesFound:     res.Summary.MatchesFound,
			Discrepancies:    res.Summary.Discrepancies,
		})
		slog.Info("Reconciled topic", "topic", res.Summary.Topic, "files", len(in.files), "records", len(res.Records), "discrepancies", len(res.Discrepancies))
	}

	if backlog == nil {
		backlog = []models.Discrepancy{}
	}
	if err := storage.WriteJSON(p.ws.Discrepancies(), backlog); err != nil {
		return nil, err
	}

	p.run.Reconcile = stats
	return stats, nil
}

// Resolve matches the discrepancy backlog against the consolidated corpus
// and imports the prices of resolved matches into it.
func (p *Pipeline) Resolve(ctx context.Context) (discrepancy.Buckets, error) {
	var backlog []models.Discrepancy
	if err := storage.ReadJSON(p.ws.Discrepancies(), &backlog); err != nil {
		return discrepancy.Buckets{}, err
	}
	corpus, err := p.readConsolidated()
	if err != nil {
		return discrepancy.Buckets{}, err
	}

	resolver, err := discrepancy.NewResolver(corpus, discrepancy.Config{
		ExactThreshold:    p.cfg.Resolver.ExactThreshold,
		ProbableThreshold: p.cfg.Resolver.ProbableThreshold,
		Workers:           p.cfg.Resolver.Workers,
		Progress: func(done, total int) {
			if done%100 == 0 || done == total {
				slog.Info("Resolving discrepancies", "done", done, "total", total)
			}
		},
	})
	if err != nil {
		return discrepancy.Buckets{}, err
	}

	buckets, err := resolver.ResolveAll(ctx, backlog)
	if err != nil {
		return discrepancy.Buckets{}, err
	}

	applied := discrepancy.ApplyPrices(corpus, buckets.Resolved)
	if err := storage.WriteJSON(p.ws.Resolution(), buckets); err != nil {
		return discrepancy.Buckets{}, err
	}
	if applied > 0 {
		if err := p.writeConsolidated(corpus); err != nil {
			return discrepancy.Buckets{}, err
		}
	}

	p.run.Resolution = &report.ResolutionStats{
		Resolved:      len(buckets.Resolved),
		ResolvedIsh:   len(buckets.ResolvedIsh),
		Unresolved:    len(buckets.Unresolved),
		PricesApplied: applied,
		Collisions:    discrepancy.NewIndex(corpus).Collisions(),
	}
	return buckets, nil
}

// ParseOptions selects what the parse stage works on
type ParseOptions struct {
	// Topics limits parsing to these topic keys; empty means all
	Topics []string
	// Limit caps the records parsed per topic; zero means no cap
	Limit int
	// Force re-parses topics that already have output
	Force bool
}

// Parse sends consolidated records to the provider and writes one parsed
// file per topic. Failed records go to the quarantine log.
func (p *Pipeline) Parse(ctx context.Context, provider providers.Provider, opts ParseOptions) (*report.ParsingStats, error) {
	corpus, err := p.readConsolidated()
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(opts.Topics))
	for _, t := range opts.Topics {
		wanted[t] = true
	}

	byTopic := make(map[string][]models.ConsolidatedRecord)
	var order []string
	for _, r := range corpus {
		if len(wanted) > 0 && !wanted[r.TopicKey] {
			continue
		}
		if _, ok := byTopic[r.TopicKey]; !ok {
			order = append(order, r.TopicKey)
		}
		byTopic[r.TopicKey] = append(byTopic[r.TopicKey], r)
	}

	quarantine := storage.NewJSONLog(p.ws.QuarantineLog())
	parser := parsing.NewParser(provider, parsing.Options{
		Model:             p.cfg.Parser.Model,
		Temperature:       p.cfg.Parser.Temperature,
		Concurrency:       p.cfg.Parser.Concurrency,
		RequestsPerMinute: p.cfg.Parser.RequestsPerMinute,
		Quarantine: func(q parsing.QuarantinedRecord) {
			if err := quarantine.Append(q); err != nil {
				slog.Error("Unable to write quarantine log", "err", err)
			}
		},
	})

	stats := &report.ParsingStats{}
	for _, key := range order {
		out := p.ws.ParsedFile(key)
		if !opts.Force && storage.Exists(out) {
			slog.Info("Skipping parsed topic", "topic", key, "file", out)
			continue
		}

		records := byTopic[key]
		if opts.Limit > 0 && len(records) > opts.Limit {
			records = records[:opts.Limit]
		}

		slog.Info("Parsing topic", "topic", key, "records", len(records), "model", p.cfg.Parser.Model)
		res, err := parser.ParseAll(ctx, records)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", key, err)
		}
		books := res.Books
		if books == nil {
			books = []models.ParsedBook{}
		}
		if err := storage.WriteJSON(out, books); err != nil {
			return nil, err
		}

		stats.Parsed += len(res.Books)
		stats.Quarantined += len(res.Quarantined)
		stats.NeedsReview += len(res.NeedsReview)
	}

	p.run.Config.Provider = p.cfg.Parser.Provider
	p.run.Config.Model = p.cfg.Parser.Model
	p.run.Parsing = stats
	return stats, nil
}

// SplitPeople finds mentions that name several people in one string, has
// the provider split them and writes the split people back into the parsed
// files. Run it before PeopleBatches so the mentions are extracted from the
// split records.
func (p *Pipeline) SplitPeople(ctx context.Context, provider providers.Provider) (*report.PeopleStats, error) {
	files, err := storage.JSONFiles(p.ws.ParsedDir())
	if err != nil {
		return nil, err
	}
	parsed := make([][]models.ParsedBook, len(files))
	var mentions []models.PersonMention
	for i, f := range files {
		if err := storage.ReadJSON(f, &parsed[i]); err != nil {
			return nil, err
		}
		mentions = append(mentions, people.ExtractMentions(parsed[i])...)
	}

	multi := people.MultiPersonMentions(mentions)
	stats := p.peopleStats()
	if len(multi) == 0 {
		slog.Info("No multi-person mentions to split", "mentions", len(mentions))
		return stats, nil
	}

	batches := people.SplitBatches(multi, people.DefaultSplitBatchSize)
	for i, batch := range batches {
		if err := storage.WriteJSON(p.ws.SplitBatchFile(i+1), batch); err != nil {
			return nil, err
		}
	}

	splits, failed, err := parsing.NewSplitter(provider, p.cfg.Parser.Model).SplitAll(ctx, batches)
	if err != nil {
		return nil, err
	}
	if splits == nil {
		splits = []people.Split{}
	}
	if err := storage.WriteJSON(p.ws.Splits(), splits); err != nil {
		return nil, err
	}

	replaced := 0
	for i, f := range files {
		n := people.ApplySplits(parsed[i], splits)
		if n == 0 {
			continue
		}
		if err := storage.WriteJSON(f, parsed[i]); err != nil {
			return nil, err
		}
		replaced += n
	}

	slog.Info("Split multi-person mentions",
		"candidates", len(multi),
		"batches", len(batches),
		"failed_batches", failed,
		"split", replaced)

	stats.Split += replaced
	return stats, nil
}

// PeopleBatches extracts person mentions from the parsed books and writes
// them with their surname-grouped dedup batches.
func (p *Pipeline) PeopleBatches() (*report.PeopleStats, error) {
	books, err := p.readParsed()
	if err != nil {
		return nil, err
	}

	mentions := people.ExtractMentions(books)
	if err := storage.WriteJSON(p.ws.Mentions(), mentions); err != nil {
		return nil, err
	}

	batches := people.Batches(mentions, p.cfg.People.BatchSize)
	for i, batch := range batches {
		if err := storage.WriteJSON(p.ws.DedupBatchFile(i+1), batch); err != nil {
			return nil, err
		}
	}
	slog.Info("Prepared person batches", "mentions", len(mentions), "batches", len(batches))

	stats := p.peopleStats()
	stats.Mentions = len(mentions)
	return stats, nil
}

// AssignPeople sends every dedup batch to the provider and stores the assigned mentions
func (p *Pipeline) AssignPeople(ctx context.Context, provider providers.Provider) (int, error) {
	files, err := storage.JSONFiles(p.ws.DedupBatchDir())
	if err != nil {
		return 0, err
	}

	batches := make([][]models.PersonMention, 0, len(files))
	for _, f := range files {
		var batch []models.PersonMention
		if err := storage.ReadJSON(f, &batch); err != nil {
			return 0, err
		}
		batches = append(batches, batch)
	}

	assigned, failed, err := parsing.NewAssigner(provider, p.cfg.Parser.Model).AssignAll(ctx, batches)
	if err != nil {
		return 0, err
	}
	if err := storage.WriteJSON(p.ws.Assignments(), assigned); err != nil {
		return 0, err
	}
	slog.Info("Assigned person identities", "batches", len(batches), "failed", failed, "mentions", len(assigned))
	return failed, nil
}

// Canonicalize groups the mentions into canonical people and association rows.
// Identities from the dedup service are used when an assignment file exists.
func (p *Pipeline) Canonicalize() (*report.PeopleStats, error) {
	var mentions []models.PersonMention
	if err := storage.ReadJSON(p.ws.Mentions(), &mentions); err != nil {
		return nil, err
	}

	if storage.Exists(p.ws.Assignments()) {
		var assigned []models.PersonMention
		if err := storage.ReadJSON(p.ws.Assignments(), &assigned); err != nil {
			return nil, err
		}
		var matched int
		mentions, matched = people.MergeAssignments(mentions, assigned)
		slog.Info("Merged dedup assignments", "mentions", len(mentions), "matched", matched)
	}

	res := people.NewEngine(p.cfg.People.OrganisationKeywords).Canonicalize(mentions)
	if res.Review == nil {
		res.Review = []people.ReviewItem{}
	}

	if err := storage.WriteJSON(p.ws.CanonicalPeople(), res.People); err != nil {
		return nil, err
	}
	if err := storage.WriteJSON(p.ws.BookPeople(), res.Associations); err != nil {
		return nil, err
	}
	if err := storage.WriteJSON(p.ws.PeopleReview(), res.Review); err != nil {
		return nil, err
	}

	stats := p.peopleStats()
	stats.Mentions = len(mentions)
	stats.People = len(res.People)
	stats.Associations = len(res.Associations)
	stats.Review = len(res.Review)
	return stats, nil
}

func (p *Pipeline) peopleStats() *report.PeopleStats {
	if p.run.People == nil {
		p.run.People = &report.PeopleStats{}
	}
	return p.run.People
}

// Validate cross-checks parsed books against the association rows and
// writes the validated tables, the held-back people and the failure logs.
func (p *Pipeline) Validate() (validate.Report, error) {
	books, err := p.readParsed()
	if err != nil {
		return validate.Report{}, err
	}
	var rows []models.BookPerson
	if err := storage.ReadJSON(p.ws.BookPeople(), &rows); err != nil {
		return validate.Report{}, err
	}
	var persons []models.CanonicalPerson
	if err := storage.ReadJSON(p.ws.CanonicalPeople(), &persons); err != nil {
		return validate.Report{}, err
	}

	rep := validate.Validate(books, rows, persons)

	outputs := []struct {
		path string
		v    any
	}{
		{p.ws.ValidatedBooks(), nonNil(rep.ValidatedBooks)},
		{p.ws.ValidatedBookPeople(), nonNil(rep.ValidatedRows)},
		{p.ws.ValidatedPeople(), nonNil(rep.People)},
		{p.ws.HeldPeople(), nonNil(rep.HeldPeople)},
		{p.ws.ValidationFailedLog(), nonNil(rep.Failures())},
		{p.ws.ValidationReportLog(), nonNil(rep.Books)},
		{p.ws.ValidationSummaryLog(), nonNil(rep.Files)},
	}
	for _, o := range outputs {
		if err := storage.WriteJSON(o.path, o.v); err != nil {
			return validate.Report{}, err
		}
	}

	p.run.Validation = report.ValidationStatsFrom(rep)
	return rep, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (p *Pipeline) dataset() (database.Dataset, error) {
	ds := database.Dataset{RunID: p.RunID()}
	if err := storage.ReadJSON(p.ws.ValidatedBooks(), &ds.Books); err != nil {
		return ds, err
	}
	if err := storage.ReadJSON(p.ws.ValidatedPeople(), &ds.People); err != nil {
		return ds, err
	}
	if err := storage.ReadJSON(p.ws.ValidatedBookPeople(), &ds.BookPeople); err != nil {
		return ds, err
	}

	corpus, err := p.readConsolidated()
	if err != nil {
		return ds, err
	}
	ds.ImportedPrices = database.ImportedPrices(corpus)
	return ds, nil
}

// Load writes the validated tables into the SQLite database
func (p *Pipeline) Load(ctx context.Context) (database.Stats, error) {
	ds, err := p.dataset()
	if err != nil {
		return database.Stats{}, err
	}

	if err := storage.EnsureDir(filepath.Dir(p.cfg.Database.Path)); err != nil {
		return database.Stats{}, err
	}
	db, err := database.Open(p.cfg.Database.Path)
	if err != nil {
		return database.Stats{}, err
	}
	defer db.Close()

	stats, err := db.Load(ctx, ds)
	if err != nil {
		return database.Stats{}, err
	}
	p.run.Database = &stats
	return stats, nil
}

// Export writes the validated tables as Parquet files
func (p *Pipeline) Export() (string, error) {
	ds, err := p.dataset()
	if err != nil {
		return "", err
	}
	dir := p.ws.ExportDir()
	if err := database.ExportParquet(dir, ds); err != nil {
		return "", err
	}
	return dir, nil
}

// ReviewWorkbook collects everything that needs a human from the stage
// outputs present in the workspace and writes it as an XLSX workbook.
// Missing stage outputs leave their sheet empty.
func (p *Pipeline) ReviewWorkbook() (string, error) {
	var review report.Review

	var buckets discrepancy.Buckets
	if err := readOptional(p.ws.Resolution(), &buckets); err != nil {
		return "", err
	}
	review.ResolvedIsh = buckets.ResolvedIsh
	review.Unresolved = buckets.Unresolved

	quarantined, err := storage.ReadJSONLines[parsing.QuarantinedRecord](p.ws.QuarantineLog())
	if err != nil {
		return "", err
	}
	review.Quarantined = quarantined

	if storage.Exists(p.ws.ParsedDir()) {
		books, err := p.readParsed()
		if err != nil {
			return "", err
		}
		for _, b := range books {
			if b.Entry.Administrative.NeedsReview {
				review.NeedsReview = append(review.NeedsReview, b)
			}
		}
	}

	if err := readOptional(p.ws.PeopleReview(), &review.People); err != nil {
		return "", err
	}
	if err := readOptional(p.ws.ValidationFailedLog(), &review.Failures); err != nil {
		return "", err
	}
	sort.SliceStable(review.Failures, func(i, j int) bool {
		return review.Failures[i].CompositeID < review.Failures[j].CompositeID
	})

	path := filepath.Join(p.ws.ReportDir(), fmt.Sprintf("review-%s.xlsx", p.RunID()))
	if err := storage.EnsureDir(p.ws.ReportDir()); err != nil {
		return "", err
	}
	if err := report.SaveWorkbook(path, review); err != nil {
		return "", err
	}
	return path, nil
}

func readOptional(path string, v any) error {
	if !storage.Exists(path) {
		return nil
	}
	return storage.ReadJSON(path, v)
}

// RunAll executes the stages in order. Stages after resolve need parsed
// records; without them, and without withLLM, the run stops after resolve.
func (p *Pipeline) RunAll(ctx context.Context, withLLM bool) error {
	if _, err := p.Reconcile(ctx); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	if _, err := p.Resolve(ctx); err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	var provider providers.Provider
	if withLLM {
		var err error
		provider, err = newProvider(p.cfg.Parser.Provider)
		if err != nil {
			return err
		}
		if _, err := p.Parse(ctx, provider, ParseOptions{}); err != nil {
			return fmt.Errorf("parse: %w", err)
		}
	}

	if !storage.Exists(p.ws.ParsedDir()) {
		slog.Info("No parsed records, stopping after resolve", "dir", p.ws.ParsedDir())
		return nil
	}

	if withLLM {
		if _, err := p.SplitPeople(ctx, provider); err != nil {
			return fmt.Errorf("people split: %w", err)
		}
	}
	if _, err := p.PeopleBatches(); err != nil {
		return fmt.Errorf("people batches: %w", err)
	}
	if withLLM {
		if _, err := p.AssignPeople(ctx, provider); err != nil {
			return fmt.Errorf("people assign: %w", err)
		}
	}
	if _, err := p.Canonicalize(); err != nil {
		return fmt.Errorf("people canonicalize: %w", err)
	}
	if _, err := p.Validate(); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if _, err := p.Load(ctx); err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if _, err := p.Export(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}
