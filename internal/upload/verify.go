package upload

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	apperrors "github.com/alexjbarnes/ledger-upload/internal/errors"
	"github.com/alexjbarnes/ledger-upload/internal/metrics"
	"github.com/alexjbarnes/ledger-upload/internal/models"
)

// VerificationClient asks the backend to re-hash a file and compare it
// with the ledger record. It never mutates the FileSet.
type VerificationClient struct {
	verifier HashVerifier
	logger   *slog.Logger
}

// NewVerificationClient returns a client backed by verifier.
func NewVerificationClient(verifier HashVerifier, logger *slog.Logger) *VerificationClient {
	return &VerificationClient{verifier: verifier, logger: logger}
}

// Verify checks exactly one selected file. Any other selection count is
// rejected with ErrVerifyFileCount before a network call is made.
func (v *VerificationClient) Verify(ctx context.Context, selected []*models.FileEntry) (*models.VerificationResult, error) {
	if len(selected) != 1 || selected[0] == nil {
		return nil, apperrors.ErrVerifyFileCount
	}

	f := selected[0]

	res, err := v.verifier.Verify(ctx, f)
	if err != nil {
		metrics.RecordVerification("error")
		return nil, fmt.Errorf("verifying %s: %w", f.Name, err)
	}

	if res.Matched {
		metrics.RecordVerification("matched")
	} else {
		metrics.RecordVerification("mismatched")
	}

	v.logger.Info("verification complete",
		slog.String("file", f.Name),
		slog.Bool("matched", res.Matched),
		slog.String("hash", res.ComputedHash),
	)

	return res, nil
}

// HashMatches reports whether f's content hashes to hash according to the
// backend and the ledger holds a matching record. Transport and API
// failures count as no match.
func (v *VerificationClient) HashMatches(ctx context.Context, f *models.FileEntry, hash string) bool {
	res, err := v.verifier.Verify(ctx, f)
	if err != nil {
		v.logger.Debug("hash check failed, treating as no match",
			slog.String("file", f.Name),
			slog.String("error", err.Error()),
		)

		return false
	}

	return res.Matched && strings.EqualFold(res.ComputedHash, hash)
}
