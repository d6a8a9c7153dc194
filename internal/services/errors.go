package services

import (
	"errors"
	"fmt"

	"github.com/ajramos/mailsync/internal/mailapi"
)

var (
	// ErrInvalidState reports an operation that the current state does not allow
	ErrInvalidState = errors.New("invalid state")
	// ErrNoOpenMessage reports reply/forward without an open message
	ErrNoOpenMessage = fmt.Errorf("%w: no message is open", ErrInvalidState)
	// ErrEmptyMessageID reports a zero message id
	ErrEmptyMessageID = errors.New("message id cannot be empty")
	// ErrNoCredential reports that the push channel has no valid session credential
	ErrNoCredential = errors.New("no valid session credential")
	// ErrSyncInFlight reports a sync skipped because another one is running
	ErrSyncInFlight = errors.New("sync already in flight")
	// ErrPartialFailure reports a bulk action the server applied to only some ids
	ErrPartialFailure = errors.New("bulk action partially failed")
)

// MutationError is returned when the server rejected an optimistic change.
// The local change has already been rolled back for IDs.
type MutationError struct {
	Action string
	IDs    []int64
	Err    error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s failed for %v: %v", e.Action, e.IDs, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the action may succeed
func (e *MutationError) Retryable() bool {
	return IsRetryableError(e.Err)
}

// IsRetryableError determines if an error should be retried
func IsRetryableError(err error) bool {
	return errors.Is(err, mailapi.ErrNetwork) ||
		errors.Is(err, mailapi.ErrServer) ||
		errors.Is(err, ErrPartialFailure)
}

// IsPermanentError determines if an error is permanent and should not be retried
func IsPermanentError(err error) bool {
	return errors.Is(err, mailapi.ErrUnauthorized) ||
		errors.Is(err, mailapi.ErrNotFound) ||
		errors.Is(err, mailapi.ErrMalformedPayload) ||
		errors.Is(err, mailapi.ErrRejected) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrEmptyMessageID)
}
