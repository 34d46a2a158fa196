package gcsuploader

import (
	"context"

	"github.com/dvloznov/ledger-engine/internal/pipeline"
)

// GCSStorageService is the Google Cloud Storage implementation of
// pipeline.StorageService.
type GCSStorageService struct{}

// NewGCSStorageService creates a new instance of GCSStorageService.
func NewGCSStorageService() *GCSStorageService {
	return &GCSStorageService{}
}

// FetchFromGCS delegates to FetchFromGCS.
func (s *GCSStorageService) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	return FetchFromGCS(ctx, gcsURI)
}

// UploadBytes delegates to UploadBytes.
func (s *GCSStorageService) UploadBytes(ctx context.Context, gcsURI string, data []byte, contentType string) error {
	return UploadBytes(ctx, gcsURI, data, contentType)
}

// Ensure GCSStorageService implements pipeline.StorageService.
var _ pipeline.StorageService = (*GCSStorageService)(nil)
