package session

import (
	"errors"
	"fmt"
)

// Kind tags the class of failure a session operation hit, mirroring the
// sentinel/wrapped-error pattern internal/storage establishes for
// ErrNotFound.
type Kind string

const (
	KindCorrupted     Kind = "session_corrupted"
	KindPersistFailed Kind = "session_persist_failed"
	KindNotFound      Kind = "session_not_found"
)

// Error wraps an underlying failure with the Kind a caller can switch on
// without parsing message text.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("session: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("session: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrapErr(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// ErrSessionCorrupted is returned (wrapped) when a session record exists
// on disk but fails to decode, distinguishing a damaged record from one
// that was never written.
var ErrSessionCorrupted = errors.New("session record corrupted")

// ErrPersistenceFailed is returned (wrapped) when a session or its index
// entry cannot be written to storage.
var ErrPersistenceFailed = errors.New("session persistence failed")

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
