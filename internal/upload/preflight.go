package upload

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alexjbarnes/ledger-upload/internal/metrics"
	"github.com/alexjbarnes/ledger-upload/internal/models"
)

// Decision is the preflight classification of one file.
type Decision int

const (
	// Proceed uploads the file.
	Proceed Decision = iota
	// Skip leaves the file out of the upload; its content is already
	// attested under the same name.
	Skip
	// Conflict suspends the batch until the operator renames or cancels.
	Conflict
)

func (d Decision) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case Skip:
		return "skip"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of checking one file.
type Verdict struct {
	Decision      Decision
	Reason        string
	SuggestedName string
}

// PreflightChecker classifies files against the remote name index before
// upload.
type PreflightChecker struct {
	index    NameIndex
	verifier *VerificationClient
	logger   *slog.Logger
	now      func() time.Time
}

// NewPreflightChecker returns a checker. A nil now defaults to time.Now.
func NewPreflightChecker(index NameIndex, verifier *VerificationClient, logger *slog.Logger, now func() time.Time) *PreflightChecker {
	if now == nil {
		now = time.Now
	}

	return &PreflightChecker{
		index:    index,
		verifier: verifier,
		logger:   logger,
		now:      now,
	}
}

// Check classifies f. A failed name lookup is treated as "does not
// exist" so an unavailable index does not block uploads. The only error
// returned is context cancellation.
func (p *PreflightChecker) Check(ctx context.Context, f *models.FileEntry) (Verdict, error) {
	rec, err := p.index.CheckFileName(ctx, f.Name)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Verdict{}, fmt.Errorf("checking %s: %w", f.Name, ctxErr)
		}

		p.logger.Warn("name lookup failed, proceeding without dedup check",
			slog.String("file", f.Name),
			slog.String("error", err.Error()),
		)
		metrics.RecordPreflightDegraded()

		return p.verdict(Verdict{Decision: Proceed}), nil
	}

	if !rec.Exists {
		return p.verdict(Verdict{Decision: Proceed}), nil
	}

	for i, hash := range rec.KnownHashes {
		if p.verifier.HashMatches(ctx, f, hash) {
			p.logger.Debug("content already attested",
				slog.String("file", f.Name),
				slog.Int("hash_index", i),
			)

			return p.verdict(Verdict{Decision: Skip, Reason: models.SkipReasonDuplicate}), nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return Verdict{}, fmt.Errorf("checking %s: %w", f.Name, ctxErr)
		}
	}

	return p.verdict(Verdict{
		Decision:      Conflict,
		SuggestedName: SuggestName(f.Name, p.now()),
	}), nil
}

func (p *PreflightChecker) verdict(v Verdict) Verdict {
	metrics.RecordPreflightVerdict(v.Decision.String())
	return v
}

// SuggestName inserts a millisecond timestamp between the base name and
// the extension: "report.pdf" becomes "report_1700000000000.pdf".
func SuggestName(name string, t time.Time) string {
	base, ext := models.SplitExt(name)
	return base + "_" + strconv.FormatInt(t.UnixMilli(), 10) + ext
}
