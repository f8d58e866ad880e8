// Package apierr defines the error taxonomy shared by every Picsart API call
// and the pure functions that classify transport failures and upstream
// responses into it.
package apierr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a failed call.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindTransport      Kind = "transport"
	KindAuthentication Kind = "authentication"
	KindRateLimit      Kind = "rate_limit"
	KindServer         Kind = "server"
	KindDecoding       Kind = "decoding"
	KindCancelled      Kind = "cancelled"
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrValidation     = errors.New("validation failed")
	ErrTransport      = errors.New("transport failure")
	ErrAuthentication = errors.New("authentication failed")
	ErrRateLimit      = errors.New("rate limited")
	ErrServer         = errors.New("server error")
	ErrDecoding       = errors.New("response decoding failed")
	ErrCancelled      = errors.New("call cancelled")

	// ErrPollExhausted is wrapped by the error returned when an asynchronous
	// job did not finish within the configured number of polls.
	ErrPollExhausted = errors.New("exceeded maximum number of polls")
)

var sentinels = map[Kind]error{
	KindValidation:     ErrValidation,
	KindTransport:      ErrTransport,
	KindAuthentication: ErrAuthentication,
	KindRateLimit:      ErrRateLimit,
	KindServer:         ErrServer,
	KindDecoding:       ErrDecoding,
	KindCancelled:      ErrCancelled,
}

// Error is the single error type returned from the public API.
type Error struct {
	// Kind is the failure class.
	Kind Kind

	// Op is the operation that failed, e.g. "removeBackground".
	Op string

	// StatusCode is the upstream HTTP status, 0 when no response was received.
	StatusCode int

	// Message is the human readable message, taken from the response body
	// when the upstream supplied one.
	Message string

	// Code is the upstream error code, if any.
	Code string

	// CorrelationID is the upstream correlation header, if any.
	CorrelationID string

	// RetryAfter is the server's back-off hint for rate limited calls.
	RetryAfter time.Duration

	// Timeout is set for transport failures caused by a deadline.
	Timeout bool

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("picsart")
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && (e.Message == "" || e.Message != e.Err.Error()) {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// Retryable reports whether the failure may succeed when repeated. Only
// transport failures and server errors qualify; whether a retry actually
// happens is decided by the caller's retry policy.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransport || e.Kind == KindServer
}

// New creates an Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates an Error of the given kind around err.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation returns a validation failure. No request was sent.
func Validation(op, message string) *Error {
	return New(KindValidation, op, message)
}

// Decoding returns a failure for a 2xx body that did not match its schema.
func Decoding(op string, status int, err error) *Error {
	return &Error{Kind: KindDecoding, Op: op, StatusCode: status, Err: err}
}

// Cancelled returns a failure for a call aborted by its caller.
func Cancelled(op string, cause error) *Error {
	if cause == nil {
		cause = ErrCancelled
	}
	return &Error{Kind: KindCancelled, Op: op, Err: cause}
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusOf returns the upstream status code carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// IsRetryable reports whether err is an *Error whose kind is retry eligible.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// IsNotFound reports whether err is an upstream 404.
func IsNotFound(err error) bool {
	return StatusOf(err) == 404
}
