package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/alexjbarnes/ledger-upload/internal/errors"
	"github.com/alexjbarnes/ledger-upload/internal/metrics"
	"github.com/alexjbarnes/ledger-upload/internal/models"
	"github.com/google/uuid"
)

// DefaultMaxRestarts bounds rename-and-restart cycles when
// WorkflowConfig.MaxRestarts is unset.
const DefaultMaxRestarts = 3

type operation int

const (
	opIdle operation = iota
	opSubmitting
	opVerifying
)

// HistoryRecorder persists completed batch results.
type HistoryRecorder interface {
	AppendResults(sessionID string, results []models.UploadResult) error
}

// WorkflowConfig wires a Workflow. Backend is required; every other
// field has a usable zero value.
type WorkflowConfig struct {
	Backend     Backend
	Files       *FileSet
	Progress    *ProgressTracker
	History     HistoryRecorder
	MaxRestarts int
	Logger      *slog.Logger
	Now         func() time.Time
}

// Submission is the context of one submit call. It survives conflict
// suspensions and restarts until the batch completes, fails, or is
// cancelled.
type Submission struct {
	ID           string
	Destinations models.Destinations
	StartedAt    time.Time
	Restarts     int
}

// Outcome is returned by Submit and Resolve. Exactly one of Results or
// Conflict is meaningful: a non-nil Conflict means the submission is
// suspended until Resolve or Cancel is called.
type Outcome struct {
	SubmissionID string
	Results      []models.UploadResult
	Conflict     *models.ConflictState
}

// Suspended reports whether the submission is waiting on a conflict.
func (o *Outcome) Suspended() bool {
	return o.Conflict != nil
}

// Workflow owns the FileSet and runs the preflight, conflict and upload
// pipeline. Only one submission or verification runs at a time.
type Workflow struct {
	files        *FileSet
	progress     *ProgressTracker
	preflight    *PreflightChecker
	resolver     *ConflictResolver
	orchestrator *Orchestrator
	verification *VerificationClient
	history      HistoryRecorder
	maxRestarts  int
	logger       *slog.Logger
	now          func() time.Time

	mu          sync.Mutex
	op          operation
	submission  *Submission
	lastResults []models.UploadResult
}

// NewWorkflow builds a workflow from cfg.
func NewWorkflow(cfg WorkflowConfig) *Workflow {
	if cfg.Files == nil {
		cfg.Files = NewFileSet()
	}

	if cfg.Progress == nil {
		cfg.Progress = NewProgressTracker()
	}

	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = DefaultMaxRestarts
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	verification := NewVerificationClient(cfg.Backend, cfg.Logger)

	return &Workflow{
		files:        cfg.Files,
		progress:     cfg.Progress,
		preflight:    NewPreflightChecker(cfg.Backend, verification, cfg.Logger, cfg.Now),
		resolver:     NewConflictResolver(),
		orchestrator: NewOrchestrator(cfg.Backend, cfg.Logger),
		verification: verification,
		history:      cfg.History,
		maxRestarts:  cfg.MaxRestarts,
		logger:       cfg.Logger,
		now:          cfg.Now,
	}
}

// Files returns the workflow's file set.
func (w *Workflow) Files() *FileSet { return w.files }

// Progress returns the workflow's progress tracker.
func (w *Workflow) Progress() *ProgressTracker { return w.progress }

// PendingConflict returns the conflict the current submission is
// suspended on, if any.
func (w *Workflow) PendingConflict() (models.ConflictState, bool) {
	return w.resolver.Pending()
}

// LastResults returns the results of the most recent completed batch.
func (w *Workflow) LastResults() []models.UploadResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]models.UploadResult, len(w.lastResults))
	copy(out, w.lastResults)

	return out
}

// Busy reports whether a submission or verification is active. A
// submission suspended on a conflict counts as active.
func (w *Workflow) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.busyLocked()
}

func (w *Workflow) busyLocked() bool {
	return w.op != opIdle || w.submission != nil
}

// Submit starts a new submission of every file currently in the set.
// Progress is reset before any network call.
func (w *Workflow) Submit(ctx context.Context, dests models.Destinations) (*Outcome, error) {
	w.mu.Lock()

	if w.busyLocked() {
		w.mu.Unlock()
		return nil, apperrors.ErrBusy
	}

	if w.files.Len() == 0 {
		w.mu.Unlock()
		return nil, apperrors.ErrNoFiles
	}

	if dests.Empty() {
		w.mu.Unlock()
		return nil, apperrors.ErrNoDestination
	}

	sub := &Submission{
		ID:           uuid.NewString(),
		Destinations: models.NewDestinations(dests.Sorted()...),
		StartedAt:    w.now(),
	}

	w.op = opSubmitting
	w.submission = sub
	w.mu.Unlock()

	w.progress.Reset()

	w.logger.Info("submission started",
		slog.String("submission", sub.ID),
		slog.Int("files", w.files.Len()),
	)

	return w.run(ctx, sub)
}

// Resolve confirms the pending conflict with name (empty accepts the
// suggestion), replaces the conflicting entry in the set, and restarts
// the submission from the first file. An invalid name leaves the
// conflict open. If the conflicting entry was removed from the set in
// the meantime, the submission ends with ErrSubmissionCancelled.
func (w *Workflow) Resolve(ctx context.Context, name string) (*Outcome, error) {
	w.mu.Lock()

	sub := w.submission
	if sub == nil {
		w.mu.Unlock()
		return nil, apperrors.ErrNoPendingConflict
	}

	if w.op != opIdle {
		w.mu.Unlock()
		return nil, apperrors.ErrBusy
	}

	old, renamed, err := w.resolver.Confirm(name)
	if err != nil {
		w.mu.Unlock()
		return nil, err
	}

	if !w.files.Replace(old, renamed) {
		// The operator removed the conflicting file while the submission
		// was suspended.
		w.submission = nil
		w.mu.Unlock()

		metrics.RecordConflict("cancelled")
		w.logger.Info("conflicting file removed, submission cancelled",
			slog.String("submission", sub.ID),
			slog.String("file", old.Name),
		)
		w.progress.Reset()

		return nil, fmt.Errorf("%s is no longer pending: %w", old.Name, apperrors.ErrSubmissionCancelled)
	}

	sub.Restarts++
	w.op = opSubmitting
	w.mu.Unlock()

	metrics.RecordConflict("renamed")
	w.logger.Info("conflict resolved, restarting submission",
		slog.String("submission", sub.ID),
		slog.String("from", old.Name),
		slog.String("to", renamed.Name),
		slog.Int("restarts", sub.Restarts),
	)

	w.progress.Reset()

	return w.run(ctx, sub)
}

// Cancel abandons the suspended submission. The file set is left as it
// was and no results are produced.
func (w *Workflow) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.submission == nil {
		return apperrors.ErrNoPendingConflict
	}

	if w.op != opIdle {
		return apperrors.ErrBusy
	}

	closed, err := w.resolver.Cancel()
	if err != nil {
		return err
	}

	w.logger.Info("submission cancelled",
		slog.String("submission", w.submission.ID),
		slog.String("file", closed.FileName),
	)
	metrics.RecordConflict("cancelled")

	w.submission = nil
	w.progress.Reset()

	return nil
}

// Verify checks exactly one file against the ledger record. It is
// mutually exclusive with submissions.
func (w *Workflow) Verify(ctx context.Context, selected []*models.FileEntry) (*models.VerificationResult, error) {
	w.mu.Lock()

	if w.busyLocked() {
		w.mu.Unlock()
		return nil, apperrors.ErrBusy
	}

	w.op = opVerifying
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.op = opIdle
		w.mu.Unlock()
	}()

	return w.verification.Verify(ctx, selected)
}

// Run submits and drives conflicts to completion through p. Invalid
// names are re-prompted. A prompter that declines cancels the
// submission and Run returns ErrSubmissionCancelled.
func (w *Workflow) Run(ctx context.Context, dests models.Destinations, p Prompter) ([]models.UploadResult, error) {
	out, err := w.Submit(ctx, dests)

	var id string

	for {
		if err != nil {
			return nil, err
		}

		if !out.Suspended() {
			return out.Results, nil
		}

		id = out.SubmissionID

		name, ok, perr := p.PromptRename(ctx, *out.Conflict)
		if perr != nil || !ok {
			if cerr := w.Cancel(); cerr != nil {
				w.logger.Warn("cancelling submission", slog.String("error", cerr.Error()))
			}

			if perr != nil {
				return nil, fmt.Errorf("prompting for new name: %w", perr)
			}

			return nil, apperrors.ErrSubmissionCancelled
		}

		out, err = w.Resolve(ctx, name)
		if errors.Is(err, apperrors.ErrValidation) {
			if pending, open := w.resolver.Pending(); open {
				w.logger.Warn("rejected name", slog.String("name", name), slog.String("error", err.Error()))
				out, err = &Outcome{SubmissionID: id, Conflict: &pending}, nil
			}
		}
	}
}

type classified struct {
	file    *models.FileEntry
	verdict Verdict
}

// run executes one pass of preflight and upload for sub. The caller has
// set op to opSubmitting.
func (w *Workflow) run(ctx context.Context, sub *Submission) (*Outcome, error) {
	snapshot := w.files.Snapshot()
	if len(snapshot) == 0 {
		w.finish()
		return nil, apperrors.ErrNoFiles
	}

	decisions := make([]classified, 0, len(snapshot))

	var toUpload []*models.FileEntry

	for _, f := range snapshot {
		v, err := w.preflight.Check(ctx, f)
		if err != nil {
			w.finish()
			return nil, err
		}

		switch v.Decision {
		case Conflict:
			return w.suspend(sub, f, v.SuggestedName)
		case Proceed:
			toUpload = append(toUpload, f)
		}

		decisions = append(decisions, classified{file: f, verdict: v})
	}

	var uploaded []models.UploadResult

	if len(toUpload) > 0 {
		var err error

		uploaded, err = w.orchestrator.Submit(ctx, toUpload, sub.Destinations, w.progress)
		if err != nil {
			w.finish()
			return nil, err
		}
	}

	results := mergeResults(decisions, uploaded)

	w.files.RemoveAll(snapshot)

	if w.history != nil {
		if err := w.history.AppendResults(sub.ID, results); err != nil {
			w.logger.Warn("recording upload history",
				slog.String("submission", sub.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	w.mu.Lock()
	w.lastResults = results
	w.op = opIdle
	w.submission = nil
	w.mu.Unlock()

	w.logger.Info("submission complete",
		slog.String("submission", sub.ID),
		slog.Int("results", len(results)),
		slog.Int("uploaded", len(toUpload)),
		slog.Int("restarts", sub.Restarts),
	)

	return &Outcome{SubmissionID: sub.ID, Results: results}, nil
}

// suspend opens a conflict for f, or ends the submission when the
// restart budget is spent.
func (w *Workflow) suspend(sub *Submission, f *models.FileEntry, suggested string) (*Outcome, error) {
	if sub.Restarts >= w.maxRestarts {
		metrics.RecordConflict("exhausted")
		w.logger.Warn("conflict retry budget exhausted",
			slog.String("submission", sub.ID),
			slog.String("file", f.Name),
			slog.Int("restarts", sub.Restarts),
		)
		w.finish()

		return nil, fmt.Errorf("%s: %w", f.Name, apperrors.ErrTooManyConflicts)
	}

	cs, err := w.resolver.Open(f, suggested)
	if err != nil {
		w.finish()
		return nil, err
	}

	metrics.RecordConflict("opened")
	w.logger.Info("name conflict, awaiting new name",
		slog.String("submission", sub.ID),
		slog.String("file", f.Name),
		slog.String("suggested", suggested),
	)

	w.mu.Lock()
	w.op = opIdle
	w.mu.Unlock()

	return &Outcome{SubmissionID: sub.ID, Conflict: &cs}, nil
}

// finish ends the current submission without results.
func (w *Workflow) finish() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.op = opIdle
	w.submission = nil
}

// mergeResults orders results by file-set position. Skipped files get a
// local result; uploaded files take the backend's results in the order
// they were sent.
func mergeResults(decisions []classified, uploaded []models.UploadResult) []models.UploadResult {
	results := make([]models.UploadResult, 0, len(decisions))
	next := 0

	for _, d := range decisions {
		if d.verdict.Decision == Skip {
			results = append(results, models.UploadResult{
				FileName:      d.file.Name,
				SkippedReason: d.verdict.Reason,
				Message:       d.verdict.Reason,
			})

			continue
		}

		if next < len(uploaded) {
			results = append(results, uploaded[next])
			next++
		}
	}

	return append(results, uploaded[next:]...)
}
