// Package apperr defines the error kinds shared by the timeline and
// reservation engines. Callers match kinds with errors.Is against the
// exported sentinels or inspect them with KindOf.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind categorizes an engine error.
type Kind string

const (
	NotFound              Kind = "NOT_FOUND"
	InvalidTransition     Kind = "INVALID_TRANSITION"
	InvalidDueDate        Kind = "INVALID_DUE_DATE"
	AlreadyClosed         Kind = "ALREADY_CLOSED"
	InvalidTime           Kind = "INVALID_TIME"
	Overlap               Kind = "OVERLAP"
	Forbidden             Kind = "FORBIDDEN"
	Conflict              Kind = "CONFLICT"
	DependencyUnavailable Kind = "DEPENDENCY_UNAVAILABLE"
	InvalidInput          Kind = "INVALID_INPUT"
)

// Sentinels for errors.Is matching. Only the Kind is compared.
var (
	ErrNotFound              = &Error{Kind: NotFound}
	ErrInvalidTransition     = &Error{Kind: InvalidTransition}
	ErrInvalidDueDate        = &Error{Kind: InvalidDueDate}
	ErrAlreadyClosed         = &Error{Kind: AlreadyClosed}
	ErrInvalidTime           = &Error{Kind: InvalidTime}
	ErrOverlap               = &Error{Kind: Overlap}
	ErrForbidden             = &Error{Kind: Forbidden}
	ErrConflict              = &Error{Kind: Conflict}
	ErrDependencyUnavailable = &Error{Kind: DependencyUnavailable}
	ErrInvalidInput          = &Error{Kind: InvalidInput}
)

// Error is a typed engine error.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an error of the given kind with a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// err carries no kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// EntityFailure records one entity that could not be processed during a batch.
type EntityFailure struct {
	EntityID int64
	Err      error
}

// BatchError summarizes per-entity failures of a sweep pass. The pass itself
// keeps going after each failure.
type BatchError struct {
	Op       string
	Failures []EntityFailure
}

// Add records a failure for an entity.
func (b *BatchError) Add(id int64, err error) {
	b.Failures = append(b.Failures, EntityFailure{EntityID: id, Err: err})
}

// ErrOrNil returns b when it holds failures and nil otherwise.
func (b *BatchError) ErrOrNil() error {
	if b == nil || len(b.Failures) == 0 {
		return nil
	}
	return b
}

// Error implements the error interface.
func (b *BatchError) Error() string {
	ids := make([]string, 0, len(b.Failures))
	for _, f := range b.Failures {
		ids = append(ids, fmt.Sprintf("%d", f.EntityID))
	}
	sort.Strings(ids)
	return fmt.Sprintf("%s: %d entities failed [%s]", b.Op, len(b.Failures), strings.Join(ids, ","))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (b *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(b.Failures))
	for _, f := range b.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
