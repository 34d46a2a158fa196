package bigquery

import (
	"context"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/pipeline"
)

// SnapshotStore is implemented by SnapshotRepository.
type SnapshotStore interface {
	ExportSnapshot(ctx context.Context, runID string, accounts []domain.AccountState) error
	ListSnapshot(ctx context.Context, runID string) ([]*AccountSnapshotRow, error)
	Close() error
}

var (
	_ SnapshotStore             = (*SnapshotRepository)(nil)
	_ pipeline.SnapshotExporter = (*SnapshotRepository)(nil)
)
