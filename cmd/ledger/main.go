package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dvloznov/ledger-engine/internal/config"
	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/gcsuploader"
	infraBQ "github.com/dvloznov/ledger-engine/internal/infra/bigquery"
	"github.com/dvloznov/ledger-engine/internal/logger"
	"github.com/dvloznov/ledger-engine/internal/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches to a subcommand and returns the process exit code.
// stdout only ever carries a report.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "inspect":
			return runInspect(ctx, args[1:], stdout, stderr)
		case "help":
			printUsage(stderr)
			return 0
		}
	}
	return runLedger(ctx, args, stdout, stderr)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Ledger engine")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  ledger [options] <transactions.csv | gs://bucket/object>")
	fmt.Fprintln(w, "  ledger inspect -run-id ID")
	fmt.Fprintln(w, "\nThe account report is written to stdout; logs go to stderr.")
	fmt.Fprintln(w, "Run 'ledger -h' or 'ledger inspect -h' for options.")
}

func runLedger(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	fs := flag.NewFlagSet("ledger", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		printUsage(stderr)
		fmt.Fprintln(stderr, "\nOptions:")
		fs.PrintDefaults()
	}
	bindCommon(fs, cfg)
	fs.StringVar(&cfg.ReportURI, "report-uri", cfg.ReportURI, "also upload the report to this gs:// URI (or set REPORT_GCS_URI)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	source := fs.Arg(0)
	log := logger.NewConsole(stderr, cfg.LogLevel)
	ctx = logger.WithContext(ctx, log)

	opts := pipeline.RunOptions{
		Out:       stdout,
		ReportURI: cfg.ReportURI,
	}
	if strings.HasPrefix(source, "gs://") || cfg.ReportURI != "" {
		opts.Storage = gcsuploader.NewGCSStorageService()
	}
	if cfg.ExportEnabled() {
		repo, err := infraBQ.NewSnapshotRepository(ctx, cfg.ProjectID, cfg.Dataset, cfg.Table)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create snapshot repository")
			return 1
		}
		defer repo.Close()
		opts.Exporter = repo
	}

	state := pipeline.NewPipelineState(source)
	log.Info().Str("run_id", state.RunID).Str("source", source).Msg("Starting ledger run")

	if err := pipeline.NewLedgerRunPipeline(opts).Execute(ctx, state); err != nil {
		log.Error().Err(err).Str("run_id", state.RunID).Msg("Ledger run failed")
		return 1
	}

	log.Info().
		Str("run_id", state.RunID).
		Int("transactions", state.Applied).
		Int("accounts", len(state.Accounts)).
		Msg("Ledger run completed")
	return 0
}

func runInspect(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	bindCommon(fs, cfg)
	runID := fs.String("run-id", "", "run ID whose exported snapshot to print")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	log := logger.NewConsole(stderr, cfg.LogLevel)
	if *runID == "" {
		log.Error().Msg("Error: -run-id is required")
		return 1
	}
	if !cfg.ExportEnabled() || cfg.ProjectID == "" {
		log.Error().Msg("Error: -project, -bq-dataset and -bq-table are required")
		return 1
	}
	ctx = logger.WithContext(ctx, log)

	repo, err := infraBQ.NewSnapshotRepository(ctx, cfg.ProjectID, cfg.Dataset, cfg.Table)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create snapshot repository")
		return 1
	}
	defer repo.Close()

	rows, err := repo.ListSnapshot(ctx, *runID)
	if err != nil {
		log.Error().Err(err).Str("run_id", *runID).Msg("Failed to read snapshot")
		return 1
	}
	if len(rows) == 0 {
		log.Error().Str("run_id", *runID).Msg("No snapshot exported for run")
		return 1
	}

	accounts := make([]domain.AccountState, 0, len(rows))
	for _, row := range rows {
		state, err := row.State()
		if err != nil {
			log.Error().Err(err).Str("run_id", *runID).Msg("Corrupt snapshot row")
			return 1
		}
		accounts = append(accounts, state)
	}

	if err := pipeline.WriteAccounts(stdout, accounts); err != nil {
		log.Error().Err(err).Msg("Failed to write report")
		return 1
	}
	return 0
}

// bindCommon registers the flags shared by every subcommand. Defaults come
// from the environment.
func bindCommon(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error (or set LOG_LEVEL)")
	fs.StringVar(&cfg.ProjectID, "project", cfg.ProjectID, "GCP project for BigQuery (or set GCP_PROJECT_ID)")
	fs.StringVar(&cfg.Dataset, "bq-dataset", cfg.Dataset, "BigQuery dataset for snapshots (or set BQ_DATASET)")
	fs.StringVar(&cfg.Table, "bq-table", cfg.Table, "BigQuery table for snapshots (or set BQ_TABLE)")
}
