// Package fault defines the engine's error taxonomy. Every failure that
// crosses a component boundary carries a Kind so callers can branch on the
// class of failure without inspecting implementation internals.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// Detection covers malformed input frames handed to the face detector.
	Detection Kind = iota + 1
	// Recognition covers degenerate face regions and embedding failures.
	Recognition
	// Database covers connection, transaction and serialization failures.
	Database
	// Camera covers capture device acquisition and read failures.
	Camera
)

func (k Kind) String() string {
	switch k {
	case Detection:
		return "detection"
	case Recognition:
		return "recognition"
	case Database:
		return "database"
	case Camera:
		return "camera"
	default:
		return "unknown"
	}
}

// Error is the single error family used across the engine.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a fault without a cause.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a fault with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
// A nil cause yields a nil error.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the Kind carried by err, or 0 if err is not a fault.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
