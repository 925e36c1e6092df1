// Package commands implements the recap command line.
package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aleix-cd/recap-ae-challenge/internal/config"
	"github.com/aleix-cd/recap-ae-challenge/internal/runner"
	"github.com/aleix-cd/recap-ae-challenge/pkg/logging"
	"github.com/aleix-cd/recap-ae-challenge/pkg/metrics"
	"github.com/aleix-cd/recap-ae-challenge/pkg/pipeline"
)

// app carries the configuration shared by every subcommand.
type app struct {
	cfg config.Config

	apiBase     string
	outCSV      string
	dbFile      string
	sqlDir      string
	startPage   int
	maxPages    int
	logLevel    string
	logPretty   bool
	metricsAddr string
	keepDB      bool
}

// NewRootCommand builds the recap command tree. Without a subcommand it runs
// the whole pipeline.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "recap",
		Short: "recap pulls paginated invoices into a CSV and a SQLite warehouse.",
		Long: `recap fetches every page of the invoices endpoint, writes the records to a
CSV whose columns are the union of all fields, loads it into SQLite and runs
the SQL models of SQL_DIR.

Settings are read from the environment; flags override them.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, nil)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.apiBase, "api-base", "", "API base URL (INVOICES_API_BASE)")
	flags.StringVar(&a.outCSV, "out-csv", "", "CSV output path (OUT_CSV_PATH)")
	flags.StringVar(&a.dbFile, "db", "", "SQLite database file (DB_FILE)")
	flags.StringVar(&a.sqlDir, "sql-dir", "", "directory of SQL models (SQL_DIR)")
	flags.IntVar(&a.startPage, "start-page", 0, "first page to fetch (START_PAGE)")
	flags.IntVar(&a.maxPages, "max-pages", 0, "stop after this many pages, 0 for no limit (MAX_PAGES)")
	flags.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (LOG_LEVEL)")
	flags.BoolVar(&a.logPretty, "log-pretty", false, "human-readable logs (LOG_PRETTY)")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (METRICS_ADDR)")

	// Full-run flags, shared by the root command and "run".
	fullRun := pflag.NewFlagSet("full-run", pflag.ContinueOnError)
	fullRun.BoolVar(&a.keepDB, "keep-db", false, "keep the existing database instead of rebuilding it")
	root.Flags().AddFlagSet(fullRun)

	root.AddCommand(
		a.runCommand(fullRun),
		a.stageCommand(runner.StageFetch, "Fetch every page and write the CSV"),
		a.stageCommand(runner.StageLoad, "Load the CSV and extra tables into SQLite"),
		a.stageCommand(runner.StageTransform, "Run the SQL models against the database"),
	)
	return root
}

func (a *app) runCommand(fullRun *pflag.FlagSet) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, load and transform (the default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, nil)
		},
	}
	cmd.Flags().AddFlagSet(fullRun)
	return cmd
}

func (a *app) stageCommand(stage, short string) *cobra.Command {
	return &cobra.Command{
		Use:   stage,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, []string{stage})
		},
	}
}

// setup loads the environment, applies flag overrides and configures logging.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("api-base") {
		cfg.APIBase = a.apiBase
	}
	if flags.Changed("out-csv") {
		cfg.OutCSV = a.outCSV
	}
	if flags.Changed("db") {
		cfg.DBFile = a.dbFile
	}
	if flags.Changed("sql-dir") {
		cfg.SQLDir = a.sqlDir
	}
	if flags.Changed("start-page") {
		cfg.StartPage = a.startPage
	}
	if flags.Changed("max-pages") {
		cfg.MaxPages = a.maxPages
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if flags.Changed("log-pretty") {
		cfg.LogPretty = a.logPretty
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = a.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.LogLevel),
		Pretty:  cfg.LogPretty,
		Output:  os.Stderr,
		Service: "recap",
	})
	a.cfg = cfg
	return nil
}

// run executes stages (all of them when empty) and prints a summary.
func (a *app) run(cmd *cobra.Command, stages []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if a.cfg.MetricsAddr != "" {
		metricsLogger := logging.NewLogger("metrics")
		srv, err := metrics.Listen(a.cfg.MetricsAddr, metricsLogger)
		if err != nil {
			return err
		}
		metricsCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := srv.Serve(metricsCtx); err != nil {
				metricsLogger.Warn().Err(err).Msg("Metrics server stopped")
			}
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	results, err := runner.Run(ctx, a.cfg, runner.Options{Stages: stages, KeepDB: a.keepDB})
	printSummary(cmd, results)
	return err
}

func printSummary(cmd *cobra.Command, results []pipeline.StageResult) {
	out := cmd.OutOrStdout()
	for _, r := range results {
		fmt.Fprintf(out, "%-10s %-8s %-8s %s\n",
			r.Stage, r.Duration.Round(time.Millisecond), r.Output.Kind, r.Output.Path)
	}
}

// ExecuteContext runs the command line and exits non-zero on failure.
func ExecuteContext(ctx context.Context) {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
