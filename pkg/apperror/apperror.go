// Package apperror defines the error kinds shared by services and handlers.
// Callers match kinds with errors.Is; handlers translate them to status codes.
package apperror

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation   = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrDuplicate    = errors.New("already exists")
	ErrInternal     = errors.New("internal error")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// Validation returns an error of kind ErrValidation carrying a user-facing message.
func Validation(msg string) error {
	return &kindError{kind: ErrValidation, msg: msg}
}

// Forbidden returns an error of kind ErrForbidden carrying a user-facing message.
func Forbidden(msg string) error {
	return &kindError{kind: ErrForbidden, msg: msg}
}

// Unauthorized returns an error of kind ErrUnauthorized carrying a user-facing message.
func Unauthorized(msg string) error {
	return &kindError{kind: ErrUnauthorized, msg: msg}
}

// Duplicate returns an error of kind ErrDuplicate carrying a user-facing message.
func Duplicate(msg string) error {
	return &kindError{kind: ErrDuplicate, msg: msg}
}

// NotFound returns an error of kind ErrNotFound carrying a user-facing message.
func NotFound(msg string) error {
	return &kindError{kind: ErrNotFound, msg: msg}
}

// LockConflictError reports a live lock held by another principal.
type LockConflictError struct {
	HolderID string
	Since    time.Time
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("document is being edited by another user (%s since %s)", e.HolderID, e.Since.Format(time.RFC3339))
}

func (e *LockConflictError) Unwrap() error { return ErrConflict }

// Message returns the user-facing text for err: the message of a kind error,
// or the kind's own text. Unknown errors collapse to ErrInternal so internals
// never reach a response body.
func Message(err error) string {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.msg
	}
	var lc *LockConflictError
	if errors.As(err, &lc) {
		return "Document is being edited by another user"
	}
	for _, kind := range []error{ErrValidation, ErrUnauthorized, ErrForbidden, ErrNotFound, ErrConflict, ErrDuplicate} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return ErrInternal.Error()
}
