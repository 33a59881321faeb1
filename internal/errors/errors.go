package errors

import (
	"errors"
	"fmt"
)

// ErrValidation is wrapped by every local validation failure. Callers can
// test errors.Is(err, ErrValidation) to decide whether a network call
// was ever attempted.
var ErrValidation = errors.New("validation failed")

// Local validation errors. Surfaced before any network call.
var (
	ErrNoFiles         = fmt.Errorf("%w: please select one or more files to upload", ErrValidation)
	ErrNoDestination   = fmt.Errorf("%w: select at least one storage option", ErrValidation)
	ErrVerifyFileCount = fmt.Errorf("%w: please select exactly one file for verification", ErrValidation)
	ErrEmptyName       = fmt.Errorf("%w: file name must not be empty", ErrValidation)
	ErrInvalidName     = fmt.Errorf("%w: file name must not contain path separators", ErrValidation)
)

// Workflow errors.
var (
	ErrBusy                = errors.New("another operation is in progress")
	ErrNoPendingConflict   = errors.New("no conflict awaiting a new name")
	ErrConflictOpen        = errors.New("a conflict is already awaiting a new name")
	ErrSubmissionCancelled = errors.New("submission cancelled")
	ErrTooManyConflicts    = errors.New("renamed file still conflicts after maximum retries")
)

// Server/transport errors.
var (
	ErrAPIRequest  = errors.New("API request failed")
	ErrAPIResponse = errors.New("unexpected API response")
)
