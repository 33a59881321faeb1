package upload

import (
	"strings"
	"sync"

	apperrors "github.com/alexjbarnes/ledger-upload/internal/errors"
	"github.com/alexjbarnes/ledger-upload/internal/models"
)

// ResolverState is the conflict resolver's state.
type ResolverState int

const (
	StateIdle ResolverState = iota
	StateAwaitingRename
)

func (s ResolverState) String() string {
	if s == StateAwaitingRename {
		return "awaiting_rename"
	}

	return "idle"
}

// ConflictResolver holds at most one open conflict. While a conflict is
// open the submission that raised it is suspended.
type ConflictResolver struct {
	mu      sync.Mutex
	state   ResolverState
	pending models.ConflictState
}

// NewConflictResolver returns an idle resolver.
func NewConflictResolver() *ConflictResolver {
	return &ConflictResolver{}
}

// Open moves the resolver to AwaitingRename for f.
func (r *ConflictResolver) Open(f *models.FileEntry, suggested string) (models.ConflictState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateAwaitingRename {
		return models.ConflictState{}, apperrors.ErrConflictOpen
	}

	r.state = StateAwaitingRename
	r.pending = models.ConflictState{
		PendingFile:   f,
		FileName:      f.Name,
		SuggestedName: suggested,
		Open:          true,
	}

	return r.pending, nil
}

// State returns the current state.
func (r *ConflictResolver) State() ResolverState {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state
}

// Pending returns the open conflict, if any.
func (r *ConflictResolver) Pending() (models.ConflictState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateAwaitingRename {
		return models.ConflictState{}, false
	}

	return r.pending, true
}

// Confirm closes the open conflict with the operator's chosen name and
// returns the original entry and its renamed replacement. An empty name
// accepts the suggestion. Invalid names leave the conflict open.
func (r *ConflictResolver) Confirm(name string) (old, renamed *models.FileEntry, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateAwaitingRename {
		return nil, nil, apperrors.ErrNoPendingConflict
	}

	if strings.TrimSpace(name) == "" {
		name = r.pending.SuggestedName
	}

	final, err := FinalizeName(name, r.pending.FileName)
	if err != nil {
		return nil, nil, err
	}

	old = r.pending.PendingFile
	renamed = old.Rename(final)

	r.state = StateIdle
	r.pending = models.ConflictState{}

	return old, renamed, nil
}

// Cancel closes the open conflict without a rename.
func (r *ConflictResolver) Cancel() (models.ConflictState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateAwaitingRename {
		return models.ConflictState{}, apperrors.ErrNoPendingConflict
	}

	closed := r.pending
	closed.Open = false

	r.state = StateIdle
	r.pending = models.ConflictState{}

	return closed, nil
}

// FinalizeName validates an operator-supplied name and guarantees it
// ends with the original file's extension, appending it when missing.
func FinalizeName(input, original string) (string, error) {
	name := models.NormalizeName(input)
	if strings.ContainsAny(name, `/\`) {
		return "", apperrors.ErrInvalidName
	}

	_, ext := models.SplitExt(models.NormalizeName(original))
	if ext != "" && !strings.HasSuffix(name, ext) {
		name += ext
	}

	if name == "" || name == ext {
		return "", apperrors.ErrEmptyName
	}

	return name, nil
}
