package client

import (
	"errors"
	"fmt"
	"net"
)

// HTTPError is a non-2xx response the client could not interpret as a rejection.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("coindle: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for rate limits (429) and server errors (5xx).
func (e *HTTPError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// RejectedError means the server refused a submission, typically because the token did not
// authenticate the score. Resubmitting the same payload will fail again.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("coindle: submission rejected (HTTP %d): %s", e.StatusCode, e.Message)
}

// Rejected marks the error as a refusal rather than a transport failure.
func (e *RejectedError) Rejected() bool { return true }

// MalformedResponseError means the server answered with a body that does not decode.
type MalformedResponseError struct {
	Body string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("coindle: malformed response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IsRejected reports whether err is a server-side rejection.
func IsRejected(err error) bool {
	var rej *RejectedError
	return errors.As(err, &rej)
}

// IsNetworkFailure reports whether err belongs to the "stats unavailable" category:
// transport errors, timeouts, unexpected status codes and undecodable bodies.
func IsNetworkFailure(err error) bool {
	if err == nil || IsRejected(err) {
		return false
	}
	var (
		httpErr  *HTTPError
		badBody  *MalformedResponseError
		netErr   net.Error
		transErr *transportError
	)
	return errors.As(err, &httpErr) ||
		errors.As(err, &badBody) ||
		errors.As(err, &netErr) ||
		errors.As(err, &transErr)
}

// transportError wraps failures of the round trip itself.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return fmt.Sprintf("coindle: http request: %v", e.err) }

func (e *transportError) Unwrap() error { return e.err }
