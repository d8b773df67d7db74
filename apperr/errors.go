package apperr

import (
	"errors"
	"fmt"
)

// Kind вид ошибки, видимый клиенту
type Kind string

const (
	KindUnauthorized    Kind = "unauthorized"
	KindNotFound        Kind = "not_found"
	KindForbidden       Kind = "forbidden"
	KindValidation      Kind = "validation"
	KindConflict        Kind = "conflict"
	KindInvalidArgument Kind = "invalid_argument"
	KindRateLimited     Kind = "rate_limited"
	KindInternal        Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по виду, чтобы работал errors.Is(err, apperr.NotFound(""))
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Unauthorized(message string) *Error    { return New(KindUnauthorized, message) }
func NotFound(message string) *Error        { return New(KindNotFound, message) }
func Forbidden(message string) *Error       { return New(KindForbidden, message) }
func Validation(message string) *Error      { return New(KindValidation, message) }
func Conflict(message string) *Error        { return New(KindConflict, message) }
func InvalidArgument(message string) *Error { return New(KindInvalidArgument, message) }
func RateLimited(message string) *Error     { return New(KindRateLimited, message) }

func Internal(message string, err error) *Error {
	return Wrap(KindInternal, message, err)
}

// KindOf возвращает вид ошибки; всё, что не *Error, считается internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind проверяет вид ошибки по всей цепочке
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
