package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation    Code = "validation"
	CodeNotFound      Code = "not_found"
	CodeStateConflict Code = "state_conflict"
	CodeDependency    Code = "dependency"
	CodeInternal      Code = "internal"
)

// ErrDuplicate marks a unique-constraint hit. Callers that treat replays as
// no-ops check for it with errors.Is.
var ErrDuplicate = errors.New("duplicate")

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

func Validation(format string, args ...any) error {
	return Newf(CodeValidation, format, args...)
}

func NotFound(what string) error {
	return Newf(CodeNotFound, "%s not found", what)
}

func Conflict(format string, args ...any) error {
	return Newf(CodeStateConflict, format, args...)
}

func Duplicate(what string) error {
	return &Error{Code: CodeStateConflict, Message: what + " already exists", Err: ErrDuplicate}
}

// CodeOf returns the code of the outermost *Error in the chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

func IsConflict(err error) bool { return CodeOf(err) == CodeStateConflict }

func IsValidation(err error) bool { return CodeOf(err) == CodeValidation }

func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicate) }
