package domain

import (
	"errors"
	"fmt"
	"time"
)

// Common domain errors
var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrTimeout                = errors.New("timeout")
	ErrTooManyRedirects       = errors.New("too many redirects")
	ErrAborted                = errors.New("request aborted")
	ErrRangeIgnored           = errors.New("server ignored the range request, restarting from zero")
	ErrInsufficientSpace      = errors.New("insufficient disk space")
)

// ValidationError is returned for bad constructor arguments.
type ValidationError struct {
	Field string
	Err   error
}

// Error returns the error message
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.errText()
	}
	return e.errText()
}

func (e *ValidationError) errText() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "validation failed"
}

// Unwrap returns the underlying error
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new validation error
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Err: fmt.Errorf("%w: %s", ErrInvalidInput, msg)}
}

// IsValidation returns true if the error is a validation error
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ConfigurationError is returned for a malformed option set, such as a retry
// policy without a usable attempt count or delay.
type ConfigurationError struct {
	Option string
	Err    error
}

// Error returns the error message
func (e *ConfigurationError) Error() string {
	msg := "wrong " + e.Option + " options"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// IsConfiguration returns true if the error is a configuration error
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// ResponseStatusError is returned when the server answers with a status that
// is neither a success nor a followable redirect.
type ResponseStatusError struct {
	StatusCode int
	Body       string
}

// Error returns the error message
func (e *ResponseStatusError) Error() string {
	return fmt.Sprintf("response status was %d", e.StatusCode)
}

// TransportError wraps a connection or socket failure.
type TransportError struct {
	Err error
}

// Error returns the error message
func (e *TransportError) Error() string {
	if e.Err != nil {
		return "transport: " + e.Err.Error()
	}
	return "transport error"
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned when the transfer was inactive for too long.
type TimeoutError struct {
	After time.Duration
}

// Error returns the error message
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: no data for %s", e.After)
}

// Unwrap returns ErrTimeout
func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// SinkError wraps a local file write, flush or close failure.
type SinkError struct {
	Op   string
	Path string
	Err  error
}

// Error returns the error message
func (e *SinkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *SinkError) Unwrap() error {
	return e.Err
}

// IncompleteTransferWarning reports a stream that ended before the expected
// total was received. It is non-fatal.
type IncompleteTransferWarning struct {
	Downloaded int64
	Total      int64
	Attempt    int
}

// Error returns the warning message
func (e *IncompleteTransferWarning) Error() string {
	return fmt.Sprintf("download incomplete: received %d of %d bytes, resuming (attempt %d)",
		e.Downloaded, e.Total, e.Attempt)
}

// IsRetryable returns true for errors the retry policy may recover from
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var (
		rse *ResponseStatusError
		te  *TransportError
		toe *TimeoutError
		se  *SinkError
	)
	return errors.As(err, &rse) || errors.As(err, &te) || errors.As(err, &toe) || errors.As(err, &se)
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var rse *ResponseStatusError
	if errors.As(err, &rse) {
		return rse.StatusCode
	}
	return 0
}
