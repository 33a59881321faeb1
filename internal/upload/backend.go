// Package upload implements the client-side upload workflow: dedup
// preflight, conflict resolution, multi-destination dispatch, progress
// tracking, and ledger verification.
package upload

import (
	"context"

	"github.com/alexjbarnes/ledger-upload/internal/backend"
	"github.com/alexjbarnes/ledger-upload/internal/models"
)

//go:generate mockgen -destination=mock_backend_test.go -package=upload . Backend

// NameIndex answers whether a file name is already attested remotely.
type NameIndex interface {
	CheckFileName(ctx context.Context, name string) (*models.RemoteNameRecord, error)
}

// HashVerifier re-hashes file content remotely and compares it with the
// ledger record.
type HashVerifier interface {
	Verify(ctx context.Context, f *models.FileEntry) (*models.VerificationResult, error)
}

// BatchUploader sends a batch of files to the requested destinations in
// one call.
type BatchUploader interface {
	Upload(ctx context.Context, files []*models.FileEntry, dests models.Destinations, onProgress backend.ProgressFunc) ([]models.UploadResult, error)
}

// Backend is everything the workflow needs from the remote service.
// *backend.Client satisfies it.
type Backend interface {
	NameIndex
	HashVerifier
	BatchUploader
}

var _ Backend = (*backend.Client)(nil)
