// Package domainerrors carries the error taxonomy shared by every service.
//
// Services return *Error values tagged with a Code. Stores never create these
// directly; they return pkg/platform/sentinel facts which services translate.
// The HTTP boundary maps codes to status codes in pkg/platform/httputil.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies the kind of failure an operation surfaced.
type Code string

const (
	// Caller errors.
	CodeInvalidInput Code = "invalid_input"
	CodeBadRequest   Code = "bad_request"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"

	// Circulation rule violations.
	CodeOutOfStock        Code = "out_of_stock"
	CodeDuplicateLoan     Code = "duplicate_loan"
	CodeAlreadyReturned   Code = "already_returned"
	CodeDebtLimitExceeded Code = "debt_limit_exceeded"

	// Access.
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeRateLimited  Code = "rate_limited"

	// CodeInvariantViolation is raised by model constructors. Services translate
	// it to CodeInvalidInput before it leaves the service layer.
	CodeInvariantViolation Code = "invariant_violation"

	CodeTimeout  Code = "timeout"
	CodeInternal Code = "internal_error"
)

// Error is a coded domain error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// New creates a coded error without a cause.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to err. The cause remains reachable through
// errors.Is / errors.As.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports equality on code and message so tests can use errors.Is with a
// freshly constructed value.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// CodeOf returns the code of the outermost *Error in the chain, or
// CodeInternal when err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost *Error in err's chain has the code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == code
}

// Is is shorthand for HasCode, kept for call sites that read better as a predicate.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}
