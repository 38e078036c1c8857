// Package apperror defines the error kinds shared by services and handlers.
// Every failure that crosses a layer boundary is either an *Error carrying a
// Kind or a plain error, which callers treat as KindInternal. Handlers branch
// on the kind instead of matching message strings.
package apperror

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for the caller.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindContention
	KindConflict
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindContention:
		return "contention"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// FieldError describes one problem with one input field.
type FieldError struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
}

// Error is the tagged error returned across package boundaries.
type Error struct {
	Kind    Kind
	Op      string       // operation that failed, e.g. "booking.create"
	Message string       // safe to show to clients
	Fields  []FieldError // only set for KindValidation
	Err     error        // underlying cause, never shown to clients
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.Field+" "+f.Problem)
		}
		b.WriteString(" [")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a validation error listing the offending fields.
func Validation(op string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: "validation failed", Fields: fields}
}

// NotFound returns a not-found error for the named resource.
func NotFound(op, what string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: what + " not found"}
}

// Contention wraps a transient lock error that outlived the retry budget.
func Contention(op string, err error) *Error {
	return &Error{Kind: KindContention, Op: op, Message: "resource busy, try again", Err: err}
}

// Conflict reports a state conflict such as a duplicate key.
func Conflict(op, msg string, err error) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: msg, Err: err}
}

// Forbidden reports an operation the caller may not perform.
func Forbidden(op string) *Error {
	return &Error{Kind: KindForbidden, Op: op, Message: "forbidden"}
}

// Internal wraps an unexpected failure.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: "internal error", Err: err}
}

// Internalf is Internal with a formatted cause.
func Internalf(op, format string, args ...any) *Error {
	return Internal(op, fmt.Errorf(format, args...))
}

// KindOf reports the kind of err. Errors that are not *Error are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// FieldsOf returns the field problems carried by a validation error.
func FieldsOf(err error) []FieldError {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
