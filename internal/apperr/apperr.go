// Package apperr defines the error taxonomy shared by the identity and search
// services. Errors carry a Kind, the operation that failed and the ids involved;
// they never carry raw store state.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for callers and transports.
type Kind int

const (
	Internal Kind = iota
	NotFound
	InvalidArgument
	Conflict
	Unavailable
	PermissionDenied
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case InvalidArgument:
		return "invalid_argument"
	case Conflict:
		return "conflict"
	case Unavailable:
		return "unavailable"
	case PermissionDenied:
		return "permission_denied"
	default:
		return "internal"
	}
}

// Retryable reports whether an operation failing with this kind may succeed on retry.
func (k Kind) Retryable() bool {
	return k == Conflict || k == Unavailable
}

// Error is the structured error returned across service boundaries.
type Error struct {
	// Kind is the taxonomy bucket.
	Kind Kind

	// Op names the operation, e.g. "identity.Merge".
	Op string

	// Keys are the identifiers the error refers to.
	Keys []string

	// Msg is a short human readable description.
	Msg string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if len(e.Keys) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Keys, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by Kind so errors.Is(err, apperr.ErrNotFound) works
// regardless of operation or keys.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound         = &Error{Kind: NotFound}
	ErrInvalidArgument  = &Error{Kind: InvalidArgument}
	ErrConflict         = &Error{Kind: Conflict}
	ErrUnavailable      = &Error{Kind: Unavailable}
	ErrPermissionDenied = &Error{Kind: PermissionDenied}
)

// New creates an error of the given kind.
func New(kind Kind, op, msg string, keys ...string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Keys: keys}
}

// Wrap attaches a kind and operation to an existing error.
func Wrap(kind Kind, op string, err error, keys ...string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Keys: keys, Err: err}
}

// NotFoundf is shorthand for a NotFound error naming the missing ids.
func NotFoundf(op, what string, keys ...string) *Error {
	return New(NotFound, op, what+" not found", keys...)
}

// Invalid is shorthand for an InvalidArgument error.
func Invalid(op, msg string, keys ...string) *Error {
	return New(InvalidArgument, op, msg, keys...)
}

// KindOf returns the Kind of err. Context expiry maps to Unavailable;
// anything unclassified is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return Internal
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Unavailable
	}
	return Internal
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	return err != nil && KindOf(err).Retryable()
}

// Classify returns err as an *Error, preserving an existing classification
// and mapping context expiry to Unavailable.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(Unavailable, op, err)
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(Unavailable, op, err)
	}
	return Wrap(Internal, op, err)
}
