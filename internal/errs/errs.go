// Package errs defines the error-kind taxonomy from the turn engine's error
// handling design: every error raised inside the engine is tagged with one
// of a small, closed set of kinds so the phase framework, pipeline
// orchestrator and HTTP layer can map it to the right behavior (retry,
// compensate, 400 vs 500) without parsing message strings.
package errs

import "errors"

// Kind is one of the error categories the engine distinguishes.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindPrecondition       Kind = "precondition"
	KindTimeout            Kind = "timeout"
	KindCollaborator       Kind = "collaborator"
	KindAIBudget           Kind = "ai_budget"
	KindConsistency        Kind = "consistency"
	KindCompensationFailed Kind = "compensation_failed"
	KindInternal           Kind = "internal"
)

// Error wraps an underlying cause with a Kind so callers can branch on it
// via KindOf instead of type-asserting concrete error types.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-tagged error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags an existing error with a Kind, preserving it via errors.Unwrap.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err, defaulting to KindInternal for errors
// that never passed through this package.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
