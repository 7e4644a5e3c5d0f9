// Package errors defines the typed error kinds shared across the queue's
// components (spec §7), following the same package-level-variable-plus-wrap
// idiom the teacher uses in pkg/mesh and pkg/reactor.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a queue error into one of the fixed set of contracts
// callers are expected to switch on.
type Kind int

const (
	Other Kind = iota
	NotFound
	Empty
	PermissionDenied
	AlreadyOpen
	InvalidArgument
	MmapFailed
	IoFailed
	MalformedFrame
	QueueGone
	Exhausted
	Timeout
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Empty:
		return "empty"
	case PermissionDenied:
		return "permission_denied"
	case AlreadyOpen:
		return "already_open"
	case InvalidArgument:
		return "invalid_argument"
	case MmapFailed:
		return "mmap_failed"
	case IoFailed:
		return "io_failed"
	case MalformedFrame:
		return "malformed_frame"
	case QueueGone:
		return "queue_gone"
	case Exhausted:
		return "exhausted"
	case Timeout:
		return "timeout"
	default:
		return "other"
	}
}

// Error wraps an underlying cause with the Kind and operation that produced
// it, e.g. &Error{Kind: Exhausted, Op: "mmap.Advance"}.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target's Kind matches e's, so errors.Is(err,
// Sentinel(Exhausted, "")) matches any *Error of kind Exhausted; KindOf
// below extracts the Kind directly.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind
	}
	return false
}

// New constructs an *Error with no wrapped cause.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap constructs an *Error wrapping cause.
func Wrap(kind Kind, op, msg string, cause error) error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: cause}
}

// KindOf extracts the Kind from err, returning Other if err is not (or does
// not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}

// Sentinel returns a lightweight *Error value usable with errors.Is for a
// given kind, e.g. `var ErrTimeout = Sentinel(Timeout, "timed out")`.
func Sentinel(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Op: "", Msg: msg}
}
