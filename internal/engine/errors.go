package engine

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error so callers can map it to a response.
type Kind string

// Error kinds.
const (
	KindValidation Kind = "validation"
	KindState      Kind = "state"
	KindConflict   Kind = "conflict"
	KindCapacity   Kind = "capacity"
	KindNotFound   Kind = "not_found"
)

// Error is a domain error raised by an engine operation. Infrastructure
// failures are never of this type; they are returned wrapped as-is.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err if it is, or wraps, an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err is an engine error of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
