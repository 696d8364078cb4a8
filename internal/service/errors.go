package service

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies service failures for the transport layer.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindConflict    Kind = "conflict"
	KindAuth        Kind = "auth"
	KindForbidden   Kind = "forbidden"
	KindExpired     Kind = "expired"
	KindNotFound    Kind = "not_found"
	KindRateLimit   Kind = "rate_limited"
	KindUnavailable Kind = "unavailable"
	KindInternal    Kind = "internal"
)

type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindNotFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func validationError(msg string) *Error { return newError(KindValidation, msg) }

func internalError(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

func rateLimitError(msg string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimit, Message: msg, RetryAfter: retryAfter}
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

var (
	ErrInvalidEmail       = validationError("invalid email")
	ErrInvalidName        = validationError("name is required")
	ErrWeakPassword       = validationError("password must be at least 8 characters and contain a letter and a digit")
	ErrInvalidCode        = validationError("invalid code")
	ErrFileTooLarge       = validationError("file too large")
	ErrUnsupportedType    = validationError("unsupported type")
	ErrMissingFile        = validationError("avatar file is required")
	ErrAccountExists      = newError(KindConflict, "account already exists")
	ErrInvalidCredentials = newError(KindAuth, "invalid email or password")
	ErrEmailNotVerified   = newError(KindForbidden, "email is not verified")
	ErrTelegramAuth       = newError(KindAuth, "telegram authentication failed")
	ErrBotSecret          = newError(KindForbidden, "forbidden")
	ErrUnauthenticated    = newError(KindAuth, "authentication required")
	ErrCodeNotFound       = newError(KindNotFound, "no pending code")
	ErrCodeExpired        = newError(KindExpired, "code expired")
	ErrPendingNotFound    = newError(KindNotFound, "unknown login request")
	ErrPendingExpired     = newError(KindExpired, "login request expired")
	ErrBotLoginDisabled   = newError(KindUnavailable, "telegram bot login is not configured")
)
