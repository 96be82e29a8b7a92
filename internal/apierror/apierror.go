// Package apierror provides the error types raised by upstream calls and callback verification,
// and their mapping onto HTTP status codes.
package apierror

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// HTTPError is returned when an upstream service answers with a non-2xx status.
type HTTPError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.StatusCode, e.Body)
}

// APIError is returned when an upstream service answers 2xx but reports a failure in its body.
type APIError struct {
	Service string
	Code    int
	Msg     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: api error %d: %s", e.Service, e.Code, e.Msg)
}

// VerificationError is returned when a callback fails token or signature verification.
type VerificationError struct {
	Cause error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed: %v", e.Cause)
}

func (e *VerificationError) Unwrap() error {
	return e.Cause
}

// NewVerificationError formats a VerificationError.
func NewVerificationError(format string, args ...any) error {
	return &VerificationError{Cause: errors.Errorf(format, args...)}
}

// StatusCode maps err onto the status code to report to the caller: the upstream status code
// when err wraps an HTTPError, 500 otherwise.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode >= 400 {
		return httpErr.StatusCode
	}
	return http.StatusInternalServerError
}
