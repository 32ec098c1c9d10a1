package jira

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// APIError represents a structured error response from the Jira API.
// Callers should prefer the predicate functions (IsNotFound,
// IsUnauthorized, IsRateLimited, ...) over asserting on this type.
type APIError struct {
	operation  string
	statusCode int
	message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.operation, e.statusCode, e.message)
}

func newAPIError(operation string, statusCode int, message string) *APIError {
	return &APIError{
		operation:  operation,
		statusCode: statusCode,
		message:    message,
	}
}

// StatusCode returns the HTTP status code from the response.
func (e *APIError) StatusCode() int { return e.statusCode }

// Message returns the human-readable error message.
func (e *APIError) Message() string { return e.message }

// Operation returns a short description of the API call that failed.
func (e *APIError) Operation() string { return e.operation }

// IsNotFound reports whether err is an API error with HTTP 404 status.
func IsNotFound(err error) bool { return HasStatusCode(err, http.StatusNotFound) }

// IsUnauthorized reports whether err is an API error with HTTP 401 status.
func IsUnauthorized(err error) bool { return HasStatusCode(err, http.StatusUnauthorized) }

// IsForbidden reports whether err is an API error with HTTP 403 status.
func IsForbidden(err error) bool { return HasStatusCode(err, http.StatusForbidden) }

// IsRateLimited reports whether err is an API error with HTTP 429 status.
func IsRateLimited(err error) bool { return HasStatusCode(err, http.StatusTooManyRequests) }

// IsTransient reports whether err looks retryable: rate limiting, a
// server-side 5xx, or a transport-level failure that never produced a
// response (connection refused, timeout). Client errors (4xx other
// than 429) are not.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.statusCode == http.StatusTooManyRequests || apiErr.statusCode >= 500
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// HasStatusCode reports whether err is an API error whose HTTP status
// code matches.
func HasStatusCode(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.statusCode == code
}
