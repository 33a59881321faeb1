// Package watch turns a drop folder into upload batches. Files that
// settle in the folder are submitted together and moved into a hidden
// done directory once their batch completes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alexjbarnes/ledger-upload/internal/config"
	apperrors "github.com/alexjbarnes/ledger-upload/internal/errors"
	"github.com/alexjbarnes/ledger-upload/internal/manifest"
	"github.com/alexjbarnes/ledger-upload/internal/models"
	"github.com/alexjbarnes/ledger-upload/internal/upload"
	"github.com/fsnotify/fsnotify"
)

const (
	// watchDirPerm is the permission mode for the drop folder and its
	// done directory.
	watchDirPerm = fs.FileMode(0o755)

	// DoneDirName is where submitted files are moved. Hidden so the
	// watcher ignores it.
	DoneDirName = ".uploaded"

	defaultTick   = 500 * time.Millisecond
	defaultSettle = 1 * time.Second

	// defaultRetryBaseDelay is the base delay for per-file exponential
	// backoff after a failed batch: base * 2^count.
	defaultRetryBaseDelay = 5 * time.Second

	// retryMaxDelay is the ceiling for per-file retry backoff.
	retryMaxDelay = 5 * time.Minute

	// maxRetryShift caps the bit-shift exponent in the retry backoff to
	// prevent integer overflow of time.Duration.
	maxRetryShift = 10
)

// retryEntry tracks consecutive failed batches for one dropped file.
type retryEntry struct {
	count       int
	lastFailure time.Time
}

// runner is the subset of upload.Workflow the watcher drives.
type runner interface {
	Files() *upload.FileSet
	Run(ctx context.Context, dests models.Destinations, p upload.Prompter) ([]models.UploadResult, error)
}

// Config configures a Watcher.
type Config struct {
	Dir          string
	Destinations models.Destinations
	Prompter     upload.Prompter

	// Settle is how long a file must go without events before it is
	// submitted. Zero uses the default.
	Settle time.Duration
	Tick   time.Duration

	// RetryBaseDelay is the first backoff after a failed batch. Zero
	// uses the default.
	RetryBaseDelay time.Duration
}

// Watcher batches settled files from a drop folder into workflow runs.
type Watcher struct {
	dir      string
	doneDir  string
	dests    models.Destinations
	prompter upload.Prompter
	settle   time.Duration
	tick     time.Duration
	runner   runner
	logger   *slog.Logger

	retryBase time.Duration
	// retries is only touched from the Watch loop.
	retries map[string]retryEntry
}

// New creates a watcher. The workflow should be dedicated to the
// watcher so interactive submissions do not pick up dropped files.
func New(cfg Config, wf runner, logger *slog.Logger) *Watcher {
	if cfg.Settle <= 0 {
		cfg.Settle = defaultSettle
	}

	if cfg.Tick <= 0 {
		cfg.Tick = defaultTick
	}

	if cfg.Prompter == nil {
		cfg.Prompter = upload.AcceptSuggestion
	}

	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}

	return &Watcher{
		dir:      cfg.Dir,
		doneDir:  filepath.Join(cfg.Dir, DoneDirName),
		dests:    cfg.Destinations,
		prompter: cfg.Prompter,
		settle:   cfg.Settle,
		tick:     cfg.Tick,
		runner:   wf,
		logger:   logger,

		retryBase: cfg.RetryBaseDelay,
		retries:   make(map[string]retryEntry),
	}
}

// PrompterForPolicy maps a configured conflict policy to a prompter.
func PrompterForPolicy(policy string) upload.Prompter {
	if policy == config.ConflictPolicyCancel {
		return upload.CancelOnConflict
	}

	return upload.AcceptSuggestion
}

// Watch blocks until ctx is cancelled. Files already present when it
// starts are treated as new.
func (w *Watcher) Watch(ctx context.Context) error {
	if w.dests.Empty() {
		return apperrors.ErrNoDestination
	}

	if err := os.MkdirAll(w.doneDir, watchDirPerm); err != nil {
		return fmt.Errorf("creating done dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	w.logger.Info("drop folder watcher started",
		slog.String("dir", w.dir),
		slog.Any("destinations", w.dests.Sorted()),
	)

	pending := make(map[string]time.Time)

	for _, p := range w.existing() {
		pending[p] = time.Now()
	}

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed unexpectedly")
			}

			if shouldIgnore(event.Name) {
				continue
			}

			// New content gets a fresh start.
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				pending[event.Name] = time.Now()
				delete(w.retries, event.Name)
			}

			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				delete(pending, event.Name)
				delete(w.retries, event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed unexpectedly")
			}

			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			var ready []string

			now := time.Now()
			for path, t := range pending {
				if now.Sub(t) < w.settle {
					continue
				}

				if _, waiting := w.retryAt(path, now); waiting {
					continue
				}

				delete(pending, path)
				ready = append(ready, path)
			}

			if len(ready) == 0 {
				continue
			}

			sort.Strings(ready)

			for _, p := range w.submit(ctx, ready) {
				pending[p] = now
			}
		}
	}
}

// existing lists regular files already in the drop folder.
func (w *Watcher) existing() []string {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("listing drop folder", slog.String("error", err.Error()))
		return nil
	}

	var out []string

	for _, e := range entries {
		p := filepath.Join(w.dir, e.Name())
		if e.Type().IsRegular() && !shouldIgnore(p) {
			out = append(out, p)
		}
	}

	return out
}

// submit runs one batch and returns the paths to retry later.
func (w *Watcher) submit(ctx context.Context, paths []string) []string {
	var (
		entries []*models.FileEntry
		sources []string
	)

	for _, p := range paths {
		info, err := os.Lstat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		e, err := manifest.ReadFile(p, "")
		if err != nil {
			w.logger.Warn("reading dropped file", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}

		entries = append(entries, e)
		sources = append(sources, p)
	}

	if len(entries) == 0 {
		return nil
	}

	files := w.runner.Files()
	files.Add(entries...)

	results, err := w.runner.Run(ctx, w.dests, w.prompter)
	if err != nil {
		// The set belongs to the watcher; renamed entries go too.
		files.Clear()

		if errors.Is(err, apperrors.ErrSubmissionCancelled) {
			w.logger.Info("drop folder batch cancelled on conflict, files left in place",
				slog.Int("files", len(sources)),
			)
			w.clearRetries(sources)

			return nil
		}

		if errors.Is(err, apperrors.ErrBusy) {
			w.logger.Debug("workflow busy, retrying dropped files later", slog.Int("files", len(sources)))
			return sources
		}

		next := w.recordFailure(sources, time.Now())
		w.logger.Warn("drop folder batch failed, will retry",
			slog.Int("files", len(sources)),
			slog.Time("next_attempt", next),
			slog.String("error", err.Error()),
		)

		return sources
	}

	w.clearRetries(sources)

	for _, r := range results {
		w.logger.Info("dropped file processed",
			slog.String("file", r.FileName),
			slog.Bool("skipped", r.Skipped()),
			slog.Int("failed_destinations", len(r.Failed())),
		)
	}

	for i, p := range sources {
		name := filepath.Base(p)

		// Results follow file set order, so result i belongs to source i.
		// A conflict rename is archived under the uploaded name.
		if len(results) == len(sources) && results[i].FileName != "" {
			name = filepath.Base(results[i].FileName)
		}

		dst, err := uniquePath(w.doneDir, name)
		if err == nil {
			err = os.Rename(p, dst)
		}

		if err != nil {
			w.logger.Warn("moving submitted file", slog.String("path", p), slog.String("error", err.Error()))
		}
	}

	return nil
}

// retryAt reports when path may be submitted again after a failure and
// whether that time is still ahead of now.
func (w *Watcher) retryAt(path string, now time.Time) (time.Time, bool) {
	entry, ok := w.retries[path]
	if !ok {
		return time.Time{}, false
	}

	shift := min(entry.count, maxRetryShift)

	delay := min(w.retryBase*time.Duration(1<<shift), retryMaxDelay)

	waitUntil := entry.lastFailure.Add(delay)

	return waitUntil, now.Before(waitUntil)
}

// recordFailure bumps the backoff for paths and returns the earliest
// next attempt.
func (w *Watcher) recordFailure(paths []string, now time.Time) time.Time {
	var next time.Time

	for _, p := range paths {
		entry := w.retries[p]
		entry.count++
		entry.lastFailure = now
		w.retries[p] = entry

		if at, _ := w.retryAt(p, now); next.IsZero() || at.Before(next) {
			next = at
		}
	}

	return next
}

func (w *Watcher) clearRetries(paths []string) {
	for _, p := range paths {
		delete(w.retries, p)
	}
}

// uniquePath returns dir/name, or dir/base_N.ext for the first N that
// does not exist yet.
func uniquePath(dir, name string) (string, error) {
	base, ext := models.SplitExt(name)

	candidate := filepath.Join(dir, name)

	for n := 1; ; n++ {
		_, err := os.Lstat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}

		if err != nil {
			return "", fmt.Errorf("checking %s: %w", candidate, err)
		}

		candidate = filepath.Join(dir, base+"_"+strconv.Itoa(n)+ext)
	}
}

// shouldIgnore skips hidden files and editor temp files.
func shouldIgnore(path string) bool {
	name := filepath.Base(path)

	if strings.HasPrefix(name, ".") {
		return true
	}

	return strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".swp") ||
		strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".crdownload")
}
