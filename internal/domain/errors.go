package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinel errors - use with errors.Is()
var (
	// ErrValidation indicates a malformed or missing required request field.
	// Always a local 400, never forwarded upstream.
	ErrValidation = errors.New("validation failed")

	// ErrAccessDenied indicates the request origin is not allow-listed.
	ErrAccessDenied = errors.New("access denied")

	// ErrRateLimited indicates the caller exhausted its request quota for
	// the current window. No upstream call is made.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrNoCredential indicates no upstream API key is configured.
	ErrNoCredential = errors.New("api key not configured")

	// ErrUpstream indicates the LLM provider returned a non-success status.
	ErrUpstream = errors.New("upstream request failed")

	// ErrResponseShape indicates a successful upstream response that is
	// missing the expected candidate text.
	ErrResponseShape = errors.New("no response content received")

	// ErrParse indicates model output that was not valid JSON by any of the
	// extraction strategies.
	ErrParse = errors.New("response is not valid JSON")

	// ErrBusy indicates a conversation operation was dispatched while
	// another one was still in flight.
	ErrBusy = errors.New("another operation is in flight")

	// ErrAnchorNotFound indicates a follow-up chain whose parent answer
	// could not be resolved from the answer history.
	ErrAnchorNotFound = errors.New("follow-up anchor not found")
)

// UpstreamError carries the status code and message relayed from the LLM
// provider so gateway handlers can pass them through unmodified.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream request failed: %s (status %d)", e.Message, e.Status)
}

// StatusCode implements the HTTPError interface.
func (e *UpstreamError) StatusCode() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// Is allows errors.Is() to match against ErrUpstream.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}
