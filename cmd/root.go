package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var verbose bool
	var logFormat string

	cmd := &cobra.Command{
		Use:   "bibliopa",
		Short: "Antiquarian catalog reconciliation and person deduplication pipeline",
		Long: `Bibliopa turns two extracted versions of an antiquarian bookshop catalog into
a clean, relational dataset.

It reconciles the text and price catalogs per topic, re-attaches unmatched
price entries, parses entries into structured records with an LLM,
deduplicates the people named in them, cross-checks books against their
people and loads the result into SQLite or Parquet.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			return setupLogging(verbose, logFormat)
		},
	}

	cmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text or json)")

	addPipelineCmds(cmd)

	return cmd
}

func setupLogging(verbose bool, format string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unsupported log format: %s", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
