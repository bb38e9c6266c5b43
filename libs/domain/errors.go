package domain

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for callers that map failures to an API
// surface. The set is closed: every error crossing a use-case boundary
// carries exactly one of these.
type Code string

const (
	CodeValidation          Code = "VALIDATION"
	CodeNotFound            Code = "NOT_FOUND"
	CodeAlreadyExists       Code = "ALREADY_EXISTS"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
	CodeTooManyConflicts    Code = "TOO_MANY_CONFLICTS"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeInfrastructure      Code = "INFRASTRUCTURE"
	CodeInternal            Code = "INTERNAL"
)

// Error is the domain error type shared by every service.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(field, reason string) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf("validation failed for field %q: %s", field, reason)}
}

func NotFound(entity, id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

func AlreadyExists(entity, field, value string) *Error {
	return &Error{Code: CodeAlreadyExists, Message: fmt.Sprintf("%s already exists with %s = %q", entity, field, value)}
}

func ConcurrencyConflict(reason string) *Error {
	return &Error{Code: CodeConcurrencyConflict, Message: reason}
}

func TooManyConflicts(reason string) *Error {
	return &Error{Code: CodeTooManyConflicts, Message: reason}
}

func Unauthorized(reason string) *Error {
	return &Error{Code: CodeUnauthorized, Message: reason}
}

func Forbidden(reason string) *Error {
	return &Error{Code: CodeForbidden, Message: reason}
}

func Infrastructure(msg string, cause error) *Error {
	return &Error{Code: CodeInfrastructure, Message: msg, Err: cause}
}

func Internal(msg string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: msg, Err: cause}
}

// CodeOf returns the domain code of err, or CodeInternal for errors
// that did not originate in a domain boundary.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsConcurrencyConflict reports whether err is a version-check failure.
// This is the only error kind the retry helper re-executes on.
func IsConcurrencyConflict(err error) bool {
	return CodeOf(err) == CodeConcurrencyConflict
}

func IsNotFound(err error) bool {
	return CodeOf(err) == CodeNotFound
}

func IsAlreadyExists(err error) bool {
	return CodeOf(err) == CodeAlreadyExists
}
