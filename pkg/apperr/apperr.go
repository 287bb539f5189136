// Package apperr is the typed failure taxonomy shared by services and the
// HTTP edge.
package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeForbidden        Code = "FORBIDDEN"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeInvalidState     Code = "INVALID_STATE"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeConflict         Code = "CONFLICT"
	CodeInternal         Code = "INTERNAL"
)

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error with the same code and message, so sentinel
// values survive wrapping with fmt.Errorf("...: %w").
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == e.Message
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Unauthenticated(msg string) *Error  { return New(CodeUnauthenticated, msg) }
func NotFound(msg string) *Error         { return New(CodeNotFound, msg) }
func Forbidden(msg string) *Error        { return New(CodeForbidden, msg) }
func PermissionDenied(msg string) *Error { return New(CodePermissionDenied, msg) }
func InvalidState(msg string) *Error     { return New(CodeInvalidState, msg) }
func InvalidArgument(msg string) *Error  { return New(CodeInvalidArgument, msg) }
func Conflict(msg string) *Error         { return New(CodeConflict, msg) }

// CodeOf returns the code of the first *Error in err's chain, or
// CodeInternal for anything untyped.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the user-facing message for err. Untyped errors never
// leak their text.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Something went wrong"
}
