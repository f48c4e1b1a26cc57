package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/Docketgraph/internal/app"
	"github.com/markdave123-py/Docketgraph/internal/config"
	"github.com/markdave123-py/Docketgraph/internal/logging"
)

// loadConfig is swapped out by tests.
var loadConfig = config.LoadConfig

var (
	logLevel  string
	logFormat string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "docketgraph",
	Short: "Court filing ingestion, contact extraction and graph population",
	Long: `docketgraph converts court filings to markdown, stores embedded chunks
in Postgres and links the people and firms it finds in an AGE graph.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			c.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			c.Log.Format = logFormat
		}
		logging.SetDefault(logging.New(logging.Options{
			Level:  c.Log.Level,
			Format: c.Log.Format,
			Writer: cmd.ErrOrStderr(),
		}))
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "console or json")
}

// openApp wires the application with a root logger on ctx.
func openApp(ctx context.Context, opts app.Options) (context.Context, *app.App, error) {
	ctx = logging.With(ctx, logging.Default())
	a, err := app.NewApp(ctx, cfg, opts)
	if err != nil {
		return ctx, nil, err
	}
	return ctx, a, nil
}
