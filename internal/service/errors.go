package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/venue-booking/internal/repository"
)

// Kind classifies a service failure.  Handlers map kinds to HTTP statuses.
type Kind uint8

const (
	KindInternal Kind = iota
	KindNotFound
	KindNotAuthorized
	KindConflict
	KindValidation
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindNotAuthorized:
		return "not authorized"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindUpstream:
		return "upstream unavailable"
	}
	return "internal"
}

// Error is returned by every service operation.  Message is safe to show
// to the caller; Err carries the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind when target has no message, so
// errors.Is(err, ErrConflict) works for every conflict.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrNotAuthorized = &Error{Kind: KindNotAuthorized}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrUpstream      = &Error{Kind: KindUpstream}
	ErrInternal      = &Error{Kind: KindInternal}
)

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

func notFound(what string) error { return &Error{Kind: KindNotFound, Message: what + " not found"} }
func forbidden() error { return &Error{Kind: KindNotAuthorized, Message: "not authorized"} }
func conflict(msg string) error { return &Error{Kind: KindConflict, Message: msg} }
func invalid(msg string) error { return &Error{Kind: KindValidation, Message: msg} }
func upstream(what string, err error) error {
	return &Error{Kind: KindUpstream, Message: what + " unavailable", Err: err}
}

// storeErr translates a repository error.  Lookups that miss become
// NotFound; anything else is an internal failure with a generic message.
func storeErr(what string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(what)
	}
	return &Error{Kind: KindInternal, Message: "storage failure", Err: fmt.Errorf("%s: %w", what, err)}
}
