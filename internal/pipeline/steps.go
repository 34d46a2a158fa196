package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger"
	"github.com/dvloznov/ledger-engine/internal/logger"
)

// PipelineStep represents a single step of a ledger run.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	RunID string

	// Source is a local path or gs:// URI. Ignored when Input is already set.
	Source string
	Input  io.Reader

	Ledger   *ledger.Ledger
	Applied  int
	Accounts []domain.AccountState
	Report   []byte

	closers []io.Closer
}

// NewPipelineState creates state for a run reading from source.
func NewPipelineState(source string) *PipelineState {
	return &PipelineState{
		RunID:  uuid.NewString(),
		Source: source,
	}
}

func (s *PipelineState) close() {
	for _, c := range s.closers {
		_ = c.Close()
	}
	s.closers = nil
}

// FetchInputStep opens the run input from a local file or from GCS.
type FetchInputStep struct {
	Storage StorageService
}

func (s *FetchInputStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Input != nil {
		return nil
	}
	if state.Source == "" {
		return fmt.Errorf("FetchInputStep: no input source")
	}

	if strings.HasPrefix(state.Source, "gs://") {
		if s.Storage == nil {
			return fmt.Errorf("FetchInputStep: %s: no storage service configured", state.Source)
		}
		data, err := s.Storage.FetchFromGCS(ctx, state.Source)
		if err != nil {
			return fmt.Errorf("FetchInputStep: %w", err)
		}
		state.Input = bytes.NewReader(data)
		return nil
	}

	f, err := os.Open(state.Source)
	if err != nil {
		return fmt.Errorf("FetchInputStep: %w", err)
	}
	state.closers = append(state.closers, f)
	state.Input = f
	return nil
}

// ApplyTransactionsStep feeds the input through a fresh ledger and captures the snapshot.
type ApplyTransactionsStep struct{}

func (s *ApplyTransactionsStep) Execute(ctx context.Context, state *PipelineState) error {
	if state.Ledger == nil {
		state.Ledger = ledger.New()
	}

	applied, err := ProcessStream(ctx, state.Input, state.Ledger)
	state.Applied = applied
	if err != nil {
		return err
	}

	state.Accounts = state.Ledger.Snapshot()

	log := logger.FromContext(ctx)
	log.Info().
		Str("run_id", state.RunID).
		Int("transactions", applied).
		Int("accounts", len(state.Accounts)).
		Msg("Applied transactions")
	return nil
}

// RenderReportStep encodes the snapshot as CSV.
type RenderReportStep struct{}

func (s *RenderReportStep) Execute(ctx context.Context, state *PipelineState) error {
	var buf bytes.Buffer
	if err := WriteAccounts(&buf, state.Accounts); err != nil {
		return err
	}
	state.Report = buf.Bytes()
	return nil
}

// WriteReportStep copies the rendered report to Out.
type WriteReportStep struct {
	Out io.Writer
}

func (s *WriteReportStep) Execute(ctx context.Context, state *PipelineState) error {
	if _, err := s.Out.Write(state.Report); err != nil {
		return fmt.Errorf("WriteReportStep: %w", err)
	}
	return nil
}

// UploadReportStep uploads the rendered report to a gs:// URI.
type UploadReportStep struct {
	Storage StorageService
	URI     string
}

func (s *UploadReportStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := s.Storage.UploadBytes(ctx, s.URI, state.Report, ReportContentType); err != nil {
		return fmt.Errorf("UploadReportStep: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("run_id", state.RunID).Str("gcs_uri", s.URI).Msg("Uploaded report")
	return nil
}

// ExportSnapshotStep hands the final account states to an exporter.
type ExportSnapshotStep struct {
	Exporter SnapshotExporter
}

func (s *ExportSnapshotStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := s.Exporter.ExportSnapshot(ctx, state.RunID, state.Accounts); err != nil {
		return fmt.Errorf("ExportSnapshotStep: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("run_id", state.RunID).Int("accounts", len(state.Accounts)).Msg("Exported snapshot")
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure.
// Decode and validation failures are returned unwrapped so callers can
// match them with errors.As.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	defer state.close()

	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			if IsInputError(err) {
				return err
			}
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// RunOptions selects the optional outputs of a run.
type RunOptions struct {
	Storage   StorageService
	Out       io.Writer
	ReportURI string
	Exporter  SnapshotExporter
}

// NewLedgerRunPipeline builds the standard run: fetch, apply, render, then
// whichever outputs opts enables.
func NewLedgerRunPipeline(opts RunOptions) *Pipeline {
	steps := []PipelineStep{
		&FetchInputStep{Storage: opts.Storage},
		&ApplyTransactionsStep{},
		&RenderReportStep{},
	}
	if opts.ReportURI != "" && opts.Storage != nil {
		steps = append(steps, &UploadReportStep{Storage: opts.Storage, URI: opts.ReportURI})
	}
	if opts.Exporter != nil {
		steps = append(steps, &ExportSnapshotStep{Exporter: opts.Exporter})
	}
	// Out goes last so a failed run never emits a partial report.
	if opts.Out != nil {
		steps = append(steps, &WriteReportStep{Out: opts.Out})
	}
	return NewPipeline(steps...)
}
