package engine

import "errors"

// Kind tags an engine-level failure with the taxonomy a caller can branch
// on, independent of the wrapped error's identity.
type Kind string

const (
	KindCapacityExceeded Kind = "capacity_exceeded"
	KindGatewayUnavailable Kind = "gateway_unavailable"
	KindToolFailure        Kind = "tool_failure"
	KindCancelled           Kind = "cancelled"
	KindInvariantViolation  Kind = "invariant_violation"
)

// Error is a Kind-tagged, wrapped engine error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + string(e.Kind)
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func wrapErr(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
