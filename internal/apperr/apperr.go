package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation  Code = "validation"
	CodeNotFound    Code = "not_found"
	CodePersistence Code = "persistence"
	CodeExternal    Code = "external"
	CodeInternal    Code = "internal"
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

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Validation(msg string) error { return New(CodeValidation, msg) }

func NotFound(msg string) error { return New(CodeNotFound, msg) }

func Persistence(msg string, cause error) error { return Wrap(CodePersistence, msg, cause) }

func External(msg string, cause error) error { return Wrap(CodeExternal, msg, cause) }

func Internal(msg string, cause error) error { return Wrap(CodeInternal, msg, cause) }

// CodeOf extracts the code from an error chain, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

func IsCode(err error, code Code) bool { return CodeOf(err) == code }
