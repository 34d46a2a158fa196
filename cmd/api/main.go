package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/ledger-engine/internal/api/handlers"
	"github.com/dvloznov/ledger-engine/internal/api/middleware"
	"github.com/dvloznov/ledger-engine/internal/config"
	"github.com/dvloznov/ledger-engine/internal/gcsuploader"
	infraBQ "github.com/dvloznov/ledger-engine/internal/infra/bigquery"
	"github.com/dvloznov/ledger-engine/internal/jobs"
	"github.com/dvloznov/ledger-engine/internal/jobs/boltstore"
	"github.com/dvloznov/ledger-engine/internal/jobs/inmemory"
	"github.com/dvloznov/ledger-engine/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.APIPort, "port", cfg.APIPort, "HTTP server port (or set API_PORT)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (or set LOG_LEVEL)")
	flag.StringVar(&cfg.ReportURI, "report-prefix", cfg.ReportURI, "gs:// prefix for run reports (or set REPORT_GCS_URI)")
	flag.StringVar(&cfg.JobStorePath, "job-store", cfg.JobStorePath, "BoltDB file for run history, in-memory when empty (or set JOB_STORE_PATH)")
	flag.IntVar(&cfg.QueueWorkers, "workers", cfg.QueueWorkers, "concurrent ledger runs (or set QUEUE_WORKERS)")
	flag.Parse()

	log := logger.New(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := context.Background()

	runner := jobs.RunnerConfig{
		Storage:      gcsuploader.NewGCSStorageService(),
		ReportPrefix: cfg.ReportURI,
	}
	if cfg.ExportEnabled() {
		repo, err := infraBQ.NewSnapshotRepository(ctx, cfg.ProjectID, cfg.Dataset, cfg.Table)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create snapshot repository")
		}
		defer repo.Close()
		runner.Exporter = repo
	} else {
		log.Warn().Msg("No BigQuery table configured - snapshots will not be exported")
	}

	var jobStore jobs.JobStore
	if cfg.JobStorePath != "" {
		boltStore, err := boltstore.Open(cfg.JobStorePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.JobStorePath).Msg("Failed to open job store")
		}
		defer boltStore.Close()

		n, err := boltStore.FailInterrupted(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to recover job store")
		}
		if n > 0 {
			log.Warn().Int("jobs", n).Msg("Marked unfinished runs from a previous process as failed")
		}
		jobStore = boltStore
	} else {
		jobStore = inmemory.NewStore()
	}

	jobQueue := inmemory.NewQueue(cfg.QueueBuffer, jobStore,
		inmemory.WithWorkers(cfg.QueueWorkers),
		inmemory.WithMaxRetries(cfg.JobMaxRetries),
	)

	workerCtx, cancelWorker := context.WithCancel(logger.WithContext(ctx, log))
	defer cancelWorker()

	log.Info().Int("workers", cfg.QueueWorkers).Msg("Starting job workers")
	if err := jobQueue.Start(workerCtx, jobs.NewLedgerRunHandler(runner)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	runsHandler := handlers.NewRunsHandler(jobStore, jobQueue, log)

	mux := http.NewServeMux()
	runsHandler.Register(mux)
	mux.HandleFunc("/health", handlers.Health)

	handler := middleware.Recovery(log)(
		middleware.RequestID(log)(
			middleware.Logger(log)(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.APIPort).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop accepting jobs and let in-flight runs finish before cancelling them.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
