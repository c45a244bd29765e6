// Package apperr defines the typed error taxonomy shared by every service.
// Errors carry a wire code; translation to an HTTP status happens once, at
// the handler boundary.
package apperr

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Code identifies an error class on the wire.
type Code string

const (
	CodeAuthMissingHeaders               Code = "AUTH_MISSING_HEADERS"
	CodeAuthTimestampInvalid             Code = "AUTH_TIMESTAMP_INVALID"
	CodeAuthInvalidNonce                 Code = "AUTH_INVALID_NONCE"
	CodeAuthReplayDetected               Code = "AUTH_REPLAY_DETECTED"
	CodeAuthInvalidDID                   Code = "AUTH_INVALID_DID"
	CodeAuthAgentNotFound                Code = "AUTH_AGENT_NOT_FOUND"
	CodeAuthSignatureInvalid             Code = "AUTH_SIGNATURE_INVALID"
	CodeAuthVerificationError            Code = "AUTH_VERIFICATION_ERROR"
	CodeAuthInvalidRegistrationSignature Code = "AUTH_INVALID_REGISTRATION_SIGNATURE"

	CodeValidation  Code = "VALIDATION_ERROR"
	CodeNotFound    Code = "NOT_FOUND"
	CodeConflict    Code = "CONFLICT"
	CodeForbidden   Code = "FORBIDDEN"
	CodeRateLimited Code = "RATE_LIMIT_EXCEEDED"
	CodeSpam        Code = "SPAM_DETECTED"
	CodeInternal    Code = "INTERNAL_ERROR"
)

// Error is the one error type services return across package boundaries.
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause chain to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// New builds an error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. The cause keeps
// its stack context so boundary logs can point at the origin.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: pkgerrors.WithStack(err)}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: pkgerrors.WithStack(err)}
}

// WithDetail annotates the error with a key/value surfaced in the response
// envelope's details object. Returns the receiver for chaining.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Internal wraps an unexpected failure. The message is what the caller sees;
// the cause stays server-side.
func Internal(err error, message string) *Error {
	return Wrap(err, CodeInternal, message)
}

// From returns err as an *Error, wrapping foreign errors as INTERNAL_ERROR.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if pkgerrors.As(err, &e) {
		return e
	}
	return Internal(err, "internal error")
}

// CodeOf extracts the code from an error chain. Foreign errors report
// INTERNAL_ERROR; nil reports an empty code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	return From(err).Code
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
