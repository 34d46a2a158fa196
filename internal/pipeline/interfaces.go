package pipeline

import (
	"context"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

// StorageService is the subset of cloud storage operations a run needs.
// gcsuploader.GCSStorageService implements it.
type StorageService interface {
	// FetchFromGCS downloads the object at a gs:// URI.
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)

	// UploadBytes writes data to the object at a gs:// URI.
	UploadBytes(ctx context.Context, gcsURI string, data []byte, contentType string) error
}

// SnapshotExporter persists the final account states of a run elsewhere.
// The BigQuery implementation lives in internal/infra/bigquery.
type SnapshotExporter interface {
	ExportSnapshot(ctx context.Context, runID string, accounts []domain.AccountState) error
}
