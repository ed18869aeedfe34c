// Package failure classifies errors raised while staging and running analyses so callers
// can tell validation problems, recoverable empty results, and runtime failures apart.
package failure

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the machine-classifiable category of a failure.
type Kind string

const (
	// KindValidation marks bad input rejected before any side effect.
	KindValidation Kind = "validation"
	// KindEmptyResult marks a known benign pipeline outcome (e.g. no reads binned).
	KindEmptyResult Kind = "empty_result"
	// KindRuntime marks any other external-process failure.
	KindRuntime Kind = "runtime"
	// KindStorage marks directory, file, or archive failures.
	KindStorage Kind = "storage"
	// KindTimeout marks a stage that exceeded its operator-configured ceiling.
	KindTimeout Kind = "timeout"
	// KindCanceled marks a run stopped by its caller.
	KindCanceled Kind = "canceled"
	// KindNotFound marks a missing session, file, or job.
	KindNotFound Kind = "not_found"
)

// Error is a classified failure
type Error struct {
	Kind    Kind
	Stage   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a classified error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a classified error around cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf creates a not-found error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Storage wraps a filesystem error.
func Storage(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindStorage, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithStage returns a copy of err tagged with the stage it came from.
// Errors that are not *Error are classified first.
func WithStage(err error, stage string) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		cp := *fe
		cp.Stage = stage
		return &cp
	}
	return &Error{Kind: KindOf(err), Stage: stage, Message: err.Error()}
}

// KindOf reports the kind of err. Unclassified errors are runtime failures,
// except context errors which map to timeout and canceled.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return KindRuntime
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StageOf returns the stage recorded on err, if any.
func StageOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Stage
	}
	return ""
}
