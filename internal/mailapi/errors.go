package mailapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetwork reports a transport failure or timeout
	ErrNetwork = errors.New("network unavailable")
	// ErrUnauthorized reports an expired or invalid session credential
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound reports a message or folder that no longer exists
	ErrNotFound = errors.New("resource not found")
	// ErrMalformedPayload reports an unexpected response or event shape
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrServer reports a 5xx answer from the mail service
	ErrServer = errors.New("server error")
	// ErrRejected reports any other 4xx answer
	ErrRejected = errors.New("request rejected")
)

// APIError carries the HTTP status of a failed call
type APIError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("mail api: %d %s: %v", e.StatusCode, e.Detail, e.Err)
	}
	return fmt.Sprintf("mail api: %d: %v", e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// errorForStatus maps an HTTP status onto the error taxonomy
func errorForStatus(status int, detail string) error {
	var kind error
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		kind = ErrUnauthorized
	case status == http.StatusNotFound:
		kind = ErrNotFound
	case status >= 500:
		kind = ErrServer
	default:
		kind = ErrRejected
	}
	return &APIError{StatusCode: status, Detail: detail, Err: kind}
}
