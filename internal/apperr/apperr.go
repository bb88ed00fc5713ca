// Package apperr holds the error kinds shared by the stores and the HTTP
// layer. Domain errors wrap one of the kinds so callers can branch with
// errors.Is without knowing which package produced them.
package apperr

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrConflict        = errors.New("conflict")
)

// Error is a domain error of a given kind whose message is safe to show
// to end users.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func New(kind error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Invalid returns an ErrInvalidInput error carrying msg.
func Invalid(msg string) error {
	return New(ErrInvalidInput, msg)
}

// Message returns the user-facing text for err.
func Message(err error) string {
	var e *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &e):
		return capitalize(e.Msg)
	case errors.Is(err, ErrConflict):
		return "The record conflicts with an existing one"
	case errors.Is(err, ErrNotFound):
		return "Not found"
	case errors.Is(err, ErrForbidden):
		return "You are not allowed to do that"
	case errors.Is(err, ErrUnauthenticated):
		return "Please sign in"
	default:
		return "Something went wrong"
	}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	var b strings.Builder
	b.WriteRune(unicode.ToUpper(r))
	b.WriteString(s[size:])
	return b.String()
}
