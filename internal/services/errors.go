package services

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes every failure the engine surfaces so the bot
// and admin API can map them to user-facing responses without parsing
// message strings.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"       // bad address, network mismatch
	KindCapacity        ErrorKind = "capacity"         // no groups free, retry later
	KindState           ErrorKind = "state"            // operation invalid for current status
	KindFrozen          ErrorKind = "frozen"           // blocked by moderation freeze
	KindExternalService ErrorKind = "external_service" // chain explorer / persistence failure
	KindNotFound        ErrorKind = "not_found"
)

// Error is the typed error returned by every engine and pool operation
// that fails a precondition. Reason is safe to show to users.
type Error struct {
	Kind   ErrorKind
	Reason string
	err    error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.err }

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...), err: err}
}

// KindOf extracts the category of an error, or "" for untyped errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given category.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
