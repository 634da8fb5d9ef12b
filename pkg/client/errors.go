package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is matched by every RetryExhaustedError.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrInvalidPayload is returned when a 2xx body is not a JSON object.
	// It classifies as ErrorClassServer.
	ErrInvalidPayload = errors.New("invalid payload")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 408 and 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors and malformed payloads.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// classifyStatus maps a non-success HTTP status to an ErrorClass.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status == http.StatusRequestTimeout:
		return ErrorClassNetwork
	case status >= 400 && status < 500:
		return ErrorClassClient
	default:
		return ErrorClassServer
	}
}

// RemoteAPIError is a non-success HTTP status from the remote API.
type RemoteAPIError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Class      ErrorClass
}

// Error implements the error interface.
func (e *RemoteAPIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("tmdb %s error (status %d) on %s", e.Class, e.StatusCode, e.Endpoint)
	}
	return fmt.Sprintf("tmdb %s error (status %d) on %s: %s", e.Class, e.StatusCode, e.Endpoint, e.Body)
}

// TransportError is a network or timeout failure before a status was received.
type TransportError struct {
	Endpoint string
	Err      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("tmdb transport error on %s: %v", e.Endpoint, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a timeout.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// RetryExhaustedError reports an operation that failed on every attempt.
// It matches ErrRetryExhausted and unwraps to the last failure.
type RetryExhaustedError struct {
	Label    string
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: %v after %d attempts: %v", e.Label, ErrRetryExhausted, e.Attempts, e.Last)
}

// Is matches ErrRetryExhausted.
func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// Classify returns the ErrorClass of err, or "" when err is nil or a
// context cancellation.
func Classify(err error) ErrorClass {
	if err == nil || errors.Is(err, context.Canceled) {
		return ""
	}

	var apiErr *RemoteAPIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassNetwork
	}

	return ErrorClassServer
}

// IsRetryable reports whether another attempt could succeed.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return shouldRetry(Classify(err))
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// RetryPolicy retries these unless StopOnClientError is set.
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
