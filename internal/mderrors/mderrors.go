// Package mderrors defines the internal error taxonomy shared by the
// conversion engine and the filter orchestrator. Errors never carry
// response bodies or other payload content; they are classified by Kind
// and routed by the orchestrator's on_error strategy.
package mderrors

import "fmt"

// Kind classifies a core failure. Kinds are never exposed to clients.
type Kind string

const (
	Timeout         Kind = "timeout"
	EncodingError   Kind = "encoding_error"
	StructureError  Kind = "structure_error"
	DecompressError Kind = "decompress_error"
	ResourceLimit   Kind = "resource_limit"
	InternalError   Kind = "internal_error"
)

// Error wraps a Kind with a private, loggable detail message. Detail is
// for structured logs only and must never be written to a client response.
type Error struct {
	Kind   Kind
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind with a detail message.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds an Error of the given kind, attaching an underlying cause
// for log records (never surfaced to clients).
func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, cause: cause}
}

// As extracts a *Error from err, returning nil, false if err isn't one.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
