// Package memerr defines the tagged error kinds used across the cognitive
// memory engine (§7). Call sites use errors.Is against the sentinel Kind
// values, or errors.As to recover the *Error and its diagnostic payload.
package memerr

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds enumerated in §7. It implements error so
// that errors.Is(err, memerr.NotFound) works directly against a wrapped
// *Error without unwrapping the Kind itself first.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	InvalidInput      Kind = "invalid_input"
	NotFound          Kind = "not_found"
	DuplicateID       Kind = "duplicate_id"
	InvalidParent     Kind = "invalid_parent"
	LevelOutOfRange   Kind = "level_out_of_range"
	DimensionMismatch Kind = "dimension_mismatch"
	NamespaceViolation Kind = "namespace_violation"
	StoreUnavailable  Kind = "store_unavailable"
	EncodingError     Kind = "encoding_error"
	InvalidSource     Kind = "invalid_source"
	Timeout           Kind = "timeout"
	Internal          Kind = "internal"
)

// Error pairs a Kind with a human-readable message and optional wrapped
// cause and diagnostic payload. Diagnostic payloads must never carry
// secrets or raw filesystem paths from outside the project namespace.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Payload map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, memerr.NotFound) match without the caller needing
// errors.As first.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && e.Kind == k
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithPayload attaches a diagnostic payload and returns the receiver for
// chaining at the construction site.
func (e *Error) WithPayload(kv ...any) *Error {
	if e.Payload == nil {
		e.Payload = make(map[string]any, len(kv)/2)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e.Payload[key] = kv[i+1]
	}
	return e
}

// Is reports whether err (or anything it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return errors.Is(err, kind)
}

// KindOf extracts the Kind from err, defaulting to Internal when err does
// not wrap a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
