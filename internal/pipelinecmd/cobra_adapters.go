package pipelinecmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvc24/bibliopa/internal/config"
	"github.com/mvc24/bibliopa/internal/report"
)

// flagOverrides holds the command-line values that take precedence over
// the config file and the environment.
type flagOverrides struct {
	workdir     string
	textDir     string
	priceDir    string
	batchSize   int
	exact       int
	probable    int
	workers     int
	provider    string
	model       string
	concurrency int
	dbPath      string
}

func (o *flagOverrides) addWorkdir(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.workdir, "workdir", "", "Workspace directory for stage outputs")
}

func (o *flagOverrides) addSources(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.textDir, "text-dir", "", "Directory of text-authoritative extraction files")
	cmd.Flags().StringVar(&o.priceDir, "price-dir", "", "Directory of price-authoritative extraction files")
	cmd.Flags().IntVar(&o.batchSize, "batch-size", 0, "Records per batch in composite ids")
}

func (o *flagOverrides) addResolver(cmd *cobra.Command) {
	cmd.Flags().IntVar(&o.exact, "exact-threshold", 0, "Score at or above which a match is resolved")
	cmd.Flags().IntVar(&o.probable, "probable-threshold", 0, "Score at or above which a match is resolved_ish")
	cmd.Flags().IntVar(&o.workers, "workers", 0, "Parallel resolver workers")
}

func (o *flagOverrides) addProvider(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.provider, "provider", "", "LLM provider (ollama, openai, or gemini)")
	cmd.Flags().StringVar(&o.model, "model", "", "Model name (defaults to provider's default)")
	cmd.Flags().IntVar(&o.concurrency, "concurrency", 0, "Concurrent provider requests")
}

func (o *flagOverrides) addDatabase(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.dbPath, "db", "", "SQLite database path")
}

// load reads the configuration named by --config and applies changed flags
func (o *flagOverrides) load(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	changed := cmd.Flags().Changed
	if changed("workdir") {
		cfg.Workdir = o.workdir
	}
	if changed("text-dir") {
		cfg.TextDir = o.textDir
	}
	if changed("price-dir") {
		cfg.PriceDir = o.priceDir
	}
	if changed("batch-size") {
		cfg.BatchSize = o.batchSize
	}
	if changed("exact-threshold") {
		cfg.Resolver.ExactThreshold = o.exact
	}
	if changed("probable-threshold") {
		cfg.Resolver.ProbableThreshold = o.probable
	}
	if changed("workers") {
		cfg.Resolver.Workers = o.workers
	}
	if changed("provider") {
		cfg.Parser.Provider = o.provider
		if !changed("model") {
			cfg.Parser.Model = config.DefaultModel(o.provider)
		}
	}
	if changed("model") {
		cfg.Parser.Model = o.model
	}
	if changed("concurrency") {
		cfg.Parser.Concurrency = o.concurrency
	}
	if changed("db") {
		cfg.Database.Path = o.dbPath
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (o *flagOverrides) pipeline(cmd *cobra.Command) (*Pipeline, error) {
	cfg, err := o.load(cmd)
	if err != nil {
		return nil, err
	}
	p, err := NewPipeline(cfg)
	if err != nil {
		return nil, err
	}
	p.out = cmd.OutOrStdout()
	return p, nil
}

// NewReconcileCmd creates the reconcile command
func NewReconcileCmd() *cobra.Command {
	var o flagOverrides

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Merge the text and price catalogs into consolidated records",
		Long: `Pair each topic's text-authoritative and price-authoritative extraction files,
attach prices to entries whose normalized text agrees, and write consolidated
records keyed by composite id. Price entries without a counterpart are kept as
the discrepancy backlog for the resolve stage.`,
		Example: `  # Reconcile with the default directories
  bibliopa reconcile

  # Reconcile files from custom directories
  bibliopa reconcile --text-dir extracted/text --price-dir extracted/prices --workdir out`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.pipeline(cmd)
			if err != nil {
				return err
			}
			if _, err := p.Reconcile(cmd.Context()); err != nil {
				return err
			}
			return p.Finish()
		},
	}

	o.addWorkdir(cmd)
	o.addSources(cmd)
	return cmd
}

// NewResolveCmd creates the resolve command
func NewResolveCmd() *cobra.Command {
	var o flagOverrides
	var format string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Match unmatched price entries against the consolidated corpus",
		Long: `Score every discrepancy against the consolidated corpus and sort it into
resolved, resolved_ish or unresolved. Prices of resolved matches are imported
into records that have none.`,
		Example: `  # Resolve with the default thresholds (95/75)
  bibliopa resolve

  # Use eight workers and print a CSV report
  bibliopa resolve --workers 8 --format csv > resolution.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.pipeline(cmd)
			if err != nil {
				return err
			}
			buckets, err := p.Resolve(cmd.Context())
			if err != nil {
				return err
			}
			if format != "" {
				return report.WriteResolution(cmd.OutOrStdout(), buckets, format)
			}
			return p.Finish()
		},
	}

	o.addWorkdir(cmd)
	o.addResolver(cmd)
	cmd.Flags().StringVar(&format, "format", "", "Print the resolution as text, json, or csv instead of the run summary")
	return cmd
}

// NewParseCmd creates the parse command
func NewParseCmd() *cobra.Command {
	var o flagOverrides
	var opts ParseOptions

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse consolidated records into structured book records with an LLM",
		Long: `Send each consolidated record to the configured LLM provider and decode the
structured bibliographic record it returns. Responses that are not valid JSON
or fail schema validation are appended to the quarantine log.`,
		Example: `  # Parse everything with Ollama
  bibliopa parse --provider ollama

  # Try the first 10 records of one topic with OpenAI
  bibliopa parse --provider openai --model gpt-4o --topic philosophie --limit 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.pipeline(cmd)
			if err != nil {
				return err
			}
			provider, err := newProvider(p.cfg.Parser.Provider)
			if err != nil {
				return err
			}
			if _, err := p.Parse(cmd.Context(), provider, opts); err != nil {
				return err
			}
			return p.Finish()
		},
	}

	o.addWorkdir(cmd)
	o.addProvider(cmd)
	cmd.Flags().StringSliceVar(&opts.Topics, "topic", nil, "Topic keys to parse (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum records per topic (0 for all)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Re-parse topics that already have output")
	return cmd
}

// NewPeopleCmd creates the people command and its subcommands
func NewPeopleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "people",
		Short: "Person mention extraction and deduplication",
	}
	cmd.AddCommand(newPeopleSplitCmd())
	cmd.AddCommand(newPeopleBatchesCmd())
	cmd.AddCommand(newPeopleAssignCmd())
	cmd.AddCommand(newPeopleCanonicalizeCmd())
	return cmd
}

func newPeopleSplitCmd() *cobra.Command {
	var o flagOverrides

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split mentions that name several people with an LLM",
		Long: `Find author, editor and contributor mentions the parser left as one
unstructured string joined by "und" or "u.", ask the provider to split them
into separate people, and write the result back into the parsed records.
Run it before "people batches".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.pipeline(cmd)
			if err != nil {
				return err
			}
			provider, err := newProvider(p.cfg.Parser.Provider)
			if err != nil {
				return err
			}
			if _, err := p.SplitPeople(cmd.Context(), provider); err != nil {
				return err
			}
			return p.Finish()
		},
	}

	o.addWorkdir(cmd)
	o.addProvider(cmd)
	return cmd
}

func newPeopleBatchesCmd() *cobra.Command {
	var o flagOverrides

	cmd := &cobra.Command{
		Use:   "batches",
		Short: "Extract person mentions and group them into dedup batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.pipeline(cmd)
			if err != nil {
				return err
			}
			if _, err := p.PeopleBatches(); err != nil {
				return err
			}
			return p.Finish()
		},
	}

	o.addWorkdir(cmd)
	return cmd
}

func newPeopleAssignCmd() *cobra.Command {
	var o flagOverrides

	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign unified ids to the dedup batches with an LLM",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.pipeline(cmd)
			if err != nil {
				return err
			}
			provider, err := newProvider(p.cfg.Parser.Provider)
			if err != nil {
				return err
			}
			failed, err := p.AssignPeople(cmd.Context(), provider)
			if err != nil {
				return err
			}
			if failed > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d batches failed and stay unassigned\n", failed)
			}
			return nil
		},
	}

	o.addWorkdir(cmd)
	o.addProvider(cmd)
	return cmd
}

func newPeopleCanonicalizeCmd() *cobra.Command {
	var o flagOverrides

	cmd := &cobra.Command{
		Use:   "canonicalize",
		Short: "Group mentions into canonical people and association rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.pipeline(cmd)
			if err != nil {
				return err
			}
			if _, err := p.Canonicalize(); err != nil {
				return err
			}
			return p.Finish()
		},
	}

	o.addWorkdir(cmd)
	return cmd
}

// NewValidateCmd creates the validate command
func NewValidateCmd() *cobra.Command {
	var o flagOverrides

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Cross-check parsed books against their person associations",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.pipeline(cmd)
			if err != nil {
				return err
			}
			if _, err := p.Validate(); err != nil {
				return err
			}
			return p.Finish()
		},
	}

	o.addWorkdir(cmd)
	return cmd
}

// NewLoadCmd creates the load command
func NewLoadCmd() *cobra.Command {
	var o flagOverrides

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load the validated tables into SQLite",
		Example: `  bibliopa load --db data/bibliopa.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.pipeline(cmd)
			if err != nil {
				return err
			}
			if _, err := p.Load(cmd.Context()); err != nil {
				return err
			}
			return p.Finish()
		},
	}

	o.addWorkdir(cmd)
	o.addDatabase(cmd)
	return cmd
}

// NewExportCmd creates the export command
func NewExportCmd() *cobra.Command {
	var o flagOverrides

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the validated tables as Parquet files",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.pipeline(cmd)
			if err != nil {
				return err
			}
			dir, err := p.Export()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Parquet files written to: %s\n", dir)
			return nil
		},
	}

	o.addWorkdir(cmd)
	return cmd
}

// NewReportCmd creates the report command
func NewReportCmd() *cobra.Command {
	var o flagOverrides
	var runPath string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the review workbook or print a saved run report",
		Example: `  # Collect everything that needs a human into an XLSX workbook
  bibliopa report

  # Print the summary of an earlier run
  bibliopa report --run data/reports/run-2025-03-01_12-00-00-V1StGXR8.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runPath != "" {
				run, err := report.LoadYAML(runPath)
				if err != nil {
					return err
				}
				report.PrintSummary(cmd.OutOrStdout(), run)
				return nil
			}

			p, err := o.pipeline(cmd)
			if err != nil {
				return err
			}
			path, err := p.ReviewWorkbook()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Review workbook saved to: %s\n", path)
			return nil
		},
	}

	o.addWorkdir(cmd)
	cmd.Flags().StringVar(&runPath, "run", "", "Print a saved run report instead")
	return cmd
}

// NewRunCmd creates the run command, which executes the stages in order
func NewRunCmd() *cobra.Command {
	var o flagOverrides
	var withLLM bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline stages in order",
		Long: `Run reconcile and resolve, then the people, validate, load and export stages
when parsed records are present. With --with-llm the parse and people assign
stages run as well. A review workbook and a run report are written at the end.`,
		Example: `  # Offline stages only
  bibliopa run

  # Everything, parsing with Gemini
  bibliopa run --with-llm --provider gemini`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.pipeline(cmd)
			if err != nil {
				return err
			}
			if err := p.RunAll(cmd.Context(), withLLM); err != nil {
				return err
			}
			if _, err := p.ReviewWorkbook(); err != nil {
				return err
			}
			return p.Finish()
		},
	}

	o.addWorkdir(cmd)
	o.addSources(cmd)
	o.addResolver(cmd)
	o.addProvider(cmd)
	o.addDatabase(cmd)
	cmd.Flags().BoolVar(&withLLM, "with-llm", false, "Also run the parse and people assign stages")
	return cmd
}
