// Package errors provides a structured error type with wrapping and metadata
package errors

// Always import the project errors package as perr (platform/errors)

import (
	stderrs "errors"
	"fmt"
	"net/http"
)

// ErrorCode defines the stable error taxonomy used across the bridge
// Values are stable for wire compatibility; add sparingly
type ErrorCode uint16

const (
	// ErrorCodeInternal is for unclassified internal failures
	ErrorCodeInternal ErrorCode = iota

	// ErrorCodePanic is for panics recovered by middleware
	ErrorCodePanic

	// ErrorCodeNetworkTimeout is for outbound calls that exceeded their deadline
	ErrorCodeNetworkTimeout

	// ErrorCodeConnectionRefused is for outbound calls that could not connect
	ErrorCodeConnectionRefused

	// ErrorCodeRateLimited is for 429s and upstream throttling
	ErrorCodeRateLimited

	// ErrorCodeUnavailable is for transient upstream 5xx responses
	ErrorCodeUnavailable

	// ErrorCodeAuth is for authentication and authorization failures
	ErrorCodeAuth

	// ErrorCodeValidation is for rejected input data
	ErrorCodeValidation

	// ErrorCodeJSON is for JSON parsing failures
	ErrorCodeJSON

	// ErrorCodeNotFound is for missing resources
	ErrorCodeNotFound

	// ErrorCodeSignatureInvalid is for webhook HMAC mismatches, never retried
	ErrorCodeSignatureInvalid

	// ErrorCodePolicyDenied is for interactions rejected by the policy layer
	ErrorCodePolicyDenied

	// ErrorCodeAnomaly tags anomaly events routed to the audit sink
	ErrorCodeAnomaly

	// ErrorCodeDB is for database errors
	ErrorCodeDB
)

// HTTPStatusCode turns an ErrorCode into an http status code
func HTTPStatusCode(c ErrorCode) int {
	switch c {
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeValidation, ErrorCodeJSON:
		return http.StatusBadRequest
	case ErrorCodeAuth, ErrorCodeSignatureInvalid:
		return http.StatusUnauthorized
	case ErrorCodePolicyDenied:
		return http.StatusForbidden
	case ErrorCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrorCodeUnavailable, ErrorCodeNetworkTimeout, ErrorCodeConnectionRefused:
		return http.StatusServiceUnavailable
	case ErrorCodeDB, ErrorCodePanic, ErrorCodeInternal, ErrorCodeAnomaly:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ErrNotFound is a sentinel not found error for convenience
var ErrNotFound = New(ErrorCodeNotFound, "not found")

// Error is the structured error type with wrapping and metadata
// msg is human/developer facing; code is machine facing
// op is an optional operation tag; orig is the wrapped cause
type Error struct {
	orig error
	msg  string
	code ErrorCode
	op   string
}

// Wire is the JSON-serializable form returned by HTTP surfaces
type Wire struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.orig)
	}
	return e.msg
}

// Unwrap returns the wrapped error, if any
func (e *Error) Unwrap() error { return e.orig }

// Code returns the error code
func (e *Error) Code() ErrorCode { return e.code }

// Op returns the operation label, if set
func (e *Error) Op() string { return e.op }

// ToWire converts an *Error to a Wire payload
func (e *Error) ToWire() Wire { return Wire{Code: e.code, Message: e.msg} }

// WireFrom converts any error into a Wire payload with best-effort mapping
// If err is nil, returns the zero-value Wire (no error)
func WireFrom(err error) Wire {
	if err == nil {
		return Wire{}
	}
	if e, ok := As(err); ok {
		return e.ToWire()
	}
	return Wire{Code: ErrorCodeInternal, Message: err.Error()}
}

// Root returns the deepest wrapped cause
func Root(err error) error {
	for err != nil {
		u := stderrs.Unwrap(err)
		if u == nil {
			return err
		}
		err = u
	}
	return nil
}

// CodeOf extracts an ErrorCode from any error, defaulting to Internal
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ErrorCodeInternal
}

// IsCode reports whether err has the given code
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// HTTPStatus returns the mapped HTTP status for any error
func HTTPStatus(err error) int { return HTTPStatusCode(CodeOf(err)) }

// As unwraps and returns (*Error, true) if err is one of ours
func As(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// WithOp attaches an operation label to an *Error (copy-on-write). If err isn't *Error, returns err unchanged
func WithOp(err error, op string) error {
	if e, ok := As(err); ok {
		c := *e
		c.op = op
		return &c
	}
	return err
}

// Constructors

// New returns a new *Error with the given code and message
func New(code ErrorCode, msg string) error { return &Error{code: code, msg: msg} }

// Newf returns a new *Error with code and formatted message
func Newf(code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...)}
}

// Wrap returns a new *Error that wraps orig with code and message
func Wrap(orig error, code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg, orig: orig}
}

// Wrapf returns a new *Error that wraps orig with code and formatted message
func Wrapf(orig error, code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...), orig: orig}
}

// WrapIf wraps only when err != nil (helper for 1-liners)
func WrapIf(err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}
	return Wrap(err, code, msg)
}

// Sugar

// Timeoutf returns a network timeout error
func Timeoutf(format string, a ...any) error { return Newf(ErrorCodeNetworkTimeout, format, a...) }

// Refusedf returns a connection refused error
func Refusedf(format string, a ...any) error { return Newf(ErrorCodeConnectionRefused, format, a...) }

// RateLimitedf returns a rate limited error
func RateLimitedf(format string, a ...any) error { return Newf(ErrorCodeRateLimited, format, a...) }

// Unavailablef returns a transient upstream error
func Unavailablef(format string, a ...any) error { return Newf(ErrorCodeUnavailable, format, a...) }

// Authf returns an auth error
func Authf(format string, a ...any) error { return Newf(ErrorCodeAuth, format, a...) }

// Validationf returns a validation error
func Validationf(format string, a ...any) error { return Newf(ErrorCodeValidation, format, a...) }

// JSONErrf returns a JSON error
func JSONErrf(format string, a ...any) error { return Newf(ErrorCodeJSON, format, a...) }

// NotFoundf returns a not found error
func NotFoundf(format string, a ...any) error { return Newf(ErrorCodeNotFound, format, a...) }

// SignatureInvalidf returns a signature mismatch error
func SignatureInvalidf(format string, a ...any) error {
	return Newf(ErrorCodeSignatureInvalid, format, a...)
}

// PolicyDeniedf returns a policy denial error
func PolicyDeniedf(format string, a ...any) error { return Newf(ErrorCodePolicyDenied, format, a...) }

// PanicErrf returns a panic error
func PanicErrf(format string, a ...any) error { return Newf(ErrorCodePanic, format, a...) }

// Internalf returns a generic internal error
func Internalf(format string, a ...any) error { return Newf(ErrorCodeInternal, format, a...) }

// DBf returns a database error
func DBf(format string, a ...any) error { return Newf(ErrorCodeDB, format, a...) }

// HTTP bundles status + wire in one shot (nice for handlers)
func HTTP(err error) (int, Wire) {
	if err == nil {
		return http.StatusOK, Wire{}
	}
	return HTTPStatus(err), WireFrom(err)
}

// Retry semantics

// Retryable reports whether the sync engine may retry the operation that
// produced err. Timeouts, refused connections, rate limits, and transient
// upstream failures retry; everything else is terminal for the operation
func Retryable(err error) bool {
	switch CodeOf(err) {
	case ErrorCodeNetworkTimeout, ErrorCodeConnectionRefused, ErrorCodeRateLimited, ErrorCodeUnavailable:
		return true
	default:
		return false
	}
}
