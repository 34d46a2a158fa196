package jobs

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/ledger-engine/internal/logger"
	"github.com/dvloznov/ledger-engine/internal/pipeline"
)

// RunnerConfig configures the outputs of service-side ledger runs.
type RunnerConfig struct {
	Storage pipeline.StorageService

	// ReportPrefix, when set, is a gs:// prefix; each run uploads
	// <prefix>/<job_id>.csv.
	ReportPrefix string

	Exporter pipeline.SnapshotExporter
}

// ReportURI returns where the report of jobID is uploaded, or "" when uploads are off.
func (c RunnerConfig) ReportURI(jobID string) string {
	if c.ReportPrefix == "" {
		return ""
	}
	return strings.TrimSuffix(c.ReportPrefix, "/") + "/" + jobID + ".csv"
}

// NewLedgerRunHandler returns a JobHandler that replays each LedgerRunJob
// into its own ledger. Input errors are permanent; anything else may be retried.
func NewLedgerRunHandler(cfg RunnerConfig) JobHandler {
	return func(ctx context.Context, job Job) error {
		run, ok := job.(*LedgerRunJob)
		if !ok {
			return Permanent(fmt.Errorf("unexpected job type: %T", job))
		}

		log := logger.FromContext(ctx).With().
			Str("job_id", run.JobID).
			Str("input", run.InputName).
			Int("attempt", run.RetryCount+1).
			Logger()
		ctx = logger.WithContext(ctx, log)

		state := pipeline.NewPipelineState(run.Source)
		state.RunID = run.JobID
		if run.Input != nil {
			state.Input = bytes.NewReader(run.Input)
		}

		p := pipeline.NewLedgerRunPipeline(pipeline.RunOptions{
			Storage:   cfg.Storage,
			ReportURI: cfg.ReportURI(run.JobID),
			Exporter:  cfg.Exporter,
		})

		log.Info().Msg("Processing ledger run")
		err := p.Execute(ctx, state)
		run.Applied = state.Applied
		if err != nil {
			log.Error().Err(err).Msg("Ledger run failed")
			if pipeline.IsInputError(err) {
				return Permanent(err)
			}
			return err
		}

		run.Accounts = state.Accounts
		run.Report = state.Report
		log.Info().
			Int("applied", run.Applied).
			Int("accounts", len(run.Accounts)).
			Msg("Ledger run completed")
		return nil
	}
}
