package upload

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/alexjbarnes/ledger-upload/internal/errors"
	"github.com/alexjbarnes/ledger-upload/internal/metrics"
	"github.com/alexjbarnes/ledger-upload/internal/models"
)

// Orchestrator dispatches a resolved batch to the backend in one call
// and reports per-file, per-destination outcomes.
type Orchestrator struct {
	uploader BatchUploader
	logger   *slog.Logger
}

// NewOrchestrator returns an orchestrator backed by uploader.
func NewOrchestrator(uploader BatchUploader, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{uploader: uploader, logger: logger}
}

// Submit uploads files to dests. Empty inputs are rejected locally. On a
// batch-level failure no results are returned and progress is reset;
// destination failures for individual files are reported in the results.
func (o *Orchestrator) Submit(ctx context.Context, files []*models.FileEntry, dests models.Destinations, progress *ProgressTracker) ([]models.UploadResult, error) {
	if len(files) == 0 {
		return nil, apperrors.ErrNoFiles
	}

	if dests.Empty() {
		return nil, apperrors.ErrNoDestination
	}

	batch := make([]*models.FileEntry, len(files))
	copy(batch, files)

	var total int64
	for _, f := range batch {
		total += f.Size
	}

	var onProgress func(sent, total int64)
	if progress != nil {
		onProgress = progress.ReportBytes(TotalKey)
	}

	o.logger.Info("uploading batch",
		slog.Int("files", len(batch)),
		slog.Int64("bytes", total),
		slog.Any("destinations", dests.Sorted()),
	)

	results, err := o.uploader.Upload(ctx, batch, dests, onProgress)
	if err != nil {
		if progress != nil {
			progress.Reset()
		}

		metrics.RecordBatch(false, 0)

		return nil, fmt.Errorf("uploading %d files: %w", len(batch), err)
	}

	metrics.RecordBatch(true, total)

	for _, r := range results {
		for d, outcome := range r.Outcomes {
			metrics.RecordDestinationUpload(string(d), outcome.OK())
		}

		if failed := r.Failed(); len(failed) > 0 {
			o.logger.Warn("destination upload failed",
				slog.String("file", r.FileName),
				slog.Any("failed", failed),
				slog.Bool("partial", r.PartialFailure()),
			)
		}
	}

	return results, nil
}
