package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized means there is no usable credential: none is cached,
	// or the refresh-and-retry cycle could not produce an accepted token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidRequest marks a malformed URL or body. This is a programmer
	// error and fatal to the call.
	ErrInvalidRequest = errors.New("invalid request")
)

// HTTPError is a non-2xx server response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("bad status: %s", e.Status)
}

// DecodingError means the response shape did not match the backend contract.
type DecodingError struct {
	Err error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("decoding response: %v", e.Err)
}

func (e *DecodingError) Unwrap() error { return e.Err }

// NetworkError is a transport failure: timeout, DNS, no connectivity.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is an HTTP 404 response.
func IsNotFound(err error) bool {
	var httpErr *HTTPError

	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

// IsRetryable reports whether the failure is worth a manual "try again":
// transport failures and server-side errors. Contract mismatches and
// programmer errors are not.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}

	var httpErr *HTTPError

	return errors.As(err, &httpErr) && httpErr.StatusCode >= http.StatusInternalServerError
}
