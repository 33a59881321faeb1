package backend

import (
	"errors"
	"fmt"

	apperrors "github.com/alexjbarnes/ledger-upload/internal/errors"
)

// TransportError is a failure to get a usable answer from the backend:
// the request never completed, timed out, or came back non-2xx without
// a structured body.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Endpoint, e.Err.Error())
}

func (e *TransportError) Unwrap() []error { return []error{apperrors.ErrAPIRequest, e.Err} }

// IsTransport reports whether err (or any error in its chain) is a
// TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// APIError is a backend response carrying a structured "detail" message.
type APIError struct {
	Endpoint string
	Status   int
	Detail   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API %s (%d): %s", e.Endpoint, e.Status, e.Detail)
}

func (e *APIError) Unwrap() error { return apperrors.ErrAPIResponse }

// AsAPIError returns the APIError in err's chain, if any.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}

	return nil, false
}
