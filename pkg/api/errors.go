package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the category of a client failure. Callers branch on the kind
// (back off on RateLimit, re-authenticate on Auth, and so on).
type ErrorKind string

const (
	KindAuth       ErrorKind = "auth"
	KindRateLimit  ErrorKind = "rate_limit"
	KindServer     ErrorKind = "server"
	KindHTTP       ErrorKind = "http"
	KindTimeout    ErrorKind = "timeout"
	KindConnection ErrorKind = "connection"
	KindValidation ErrorKind = "validation"
	KindStream     ErrorKind = "stream"
)

// Kind sentinels for use with errors.Is. Only the kind is compared.
var (
	ErrAuth       = &Error{Kind: KindAuth}
	ErrRateLimit  = &Error{Kind: KindRateLimit}
	ErrServer     = &Error{Kind: KindServer}
	ErrHTTP       = &Error{Kind: KindHTTP}
	ErrTimeout    = &Error{Kind: KindTimeout}
	ErrConnection = &Error{Kind: KindConnection}
	ErrValidation = &Error{Kind: KindValidation}
	ErrStream     = &Error{Kind: KindStream}
)

// Error is the single error type returned by the client. It is constructed
// once at the failure site and never retried internally.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`

	// StatusCode is the HTTP status, 0 when no response was received.
	StatusCode int `json:"status_code,omitempty"`

	// Type, Param and Code are copied from the server error envelope when present.
	Type  string `json:"type,omitempty"`
	Param string `json:"param,omitempty"`
	Code  string `json:"code,omitempty"`

	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("[%d] %s", e.StatusCode, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind. It lets the
// package sentinels (ErrRateLimit, ...) be used with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether the failure is transient from the server's
// point of view.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindServer, KindTimeout, KindConnection:
		return true
	default:
		return false
	}
}

// KindOf returns the kind of err, or the empty kind if err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err (or anything it wraps) is an *Error of kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// KindForStatus maps an HTTP status code to an error kind. Every non-2xx
// status maps to a kind; 2xx statuses return the empty kind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status >= 200 && status < 300:
		return ""
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500 && status < 600:
		return KindServer
	default:
		return KindHTTP
	}
}

// NewStatusError builds the error for a non-2xx response.
func NewStatusError(status int, message string) *Error {
	kind := KindForStatus(status)
	if kind == "" {
		kind = KindHTTP
	}
	return &Error{
		Kind:       kind,
		Message:    message,
		StatusCode: status,
	}
}

// StatusMessage is the fallback description used when a response body
// carries no usable error envelope.
func StatusMessage(status int) string {
	if text := http.StatusText(status); text != "" {
		return fmt.Sprintf("%d %s", status, text)
	}
	return fmt.Sprintf("HTTP status %d", status)
}

// NewAuthError creates an Auth error for a missing or rejected credential.
func NewAuthError(message string) *Error {
	return &Error{
		Kind:    KindAuth,
		Message: message,
	}
}

// NewRateLimitError creates a RateLimit error (HTTP 429).
func NewRateLimitError(message string) *Error {
	return &Error{
		Kind:       KindRateLimit,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
	}
}

// NewServerError creates a Server error for a 5xx status.
func NewServerError(message string, status int) *Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return &Error{
		Kind:       KindServer,
		Message:    message,
		StatusCode: status,
	}
}

// NewHTTPError creates a generic HTTP error for any other non-2xx status.
func NewHTTPError(message string, status int) *Error {
	return &Error{
		Kind:       KindHTTP,
		Message:    message,
		StatusCode: status,
	}
}

// NewTimeoutError creates a Timeout error. An empty message uses the default.
func NewTimeoutError(message string, cause error) *Error {
	if message == "" {
		message = "Request timed out"
	}
	return &Error{
		Kind:    KindTimeout,
		Message: message,
		Cause:   cause,
	}
}

// NewConnectionError creates a Connection error. An empty message uses the default.
func NewConnectionError(message string, cause error) *Error {
	if message == "" {
		message = "Connection failed"
	}
	return &Error{
		Kind:    KindConnection,
		Message: message,
		Cause:   cause,
	}
}

// NewValidationError creates a Validation error for malformed caller input.
func NewValidationError(param, message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: message,
		Param:   param,
	}
}

// NewStreamError creates a Stream error.
func NewStreamError(message string, cause error) *Error {
	return &Error{
		Kind:    KindStream,
		Message: message,
		Cause:   cause,
	}
}
