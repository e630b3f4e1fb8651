// Package apperr defines the tagged errors the core hands back to its
// callers. Every failure a request can hit maps onto exactly one Kind, and
// the web layer turns the Kind into a status code and a user-facing message.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation         Kind = "validation"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindNotification       Kind = "notification"
	KindStorage            Kind = "storage"
)

// Error carries a Kind, a stable machine code (e.g. "incidents.titleRequired")
// and a message safe to show to users. Err holds the underlying cause and is
// never rendered.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels below, so callers can write
// errors.Is(err, apperr.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return t.Kind == e.Kind
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrNotification       = &Error{Kind: KindNotification}
	ErrStorage            = &Error{Kind: KindStorage}
)

func Validation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func NotFound(code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

func Conflict(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg}
}

func InvalidCredentials(code, msg string) *Error {
	return &Error{Kind: KindInvalidCredentials, Code: code, Message: msg}
}

func Notification(code string, err error) *Error {
	return &Error{Kind: KindNotification, Code: code, Message: "notification could not be delivered", Err: err}
}

// Storage wraps an unexpected store failure. The message deliberately says
// nothing about the cause.
func Storage(err error) *Error {
	return &Error{Kind: KindStorage, Code: "common.storage", Message: "internal storage error", Err: err}
}

// As returns err as *Error, wrapping untagged errors as storage failures.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Storage(err)
}
