package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to the user.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// ModelUnavailable means no weights artifact could be located.
	ModelUnavailable
	// ModelLoadFailure means the artifact exists but could not be turned into a model.
	ModelLoadFailure
	// ProcessingFailure means decoding or inference failed for a single image.
	ProcessingFailure
)

func (k ErrorKind) String() string {
	switch k {
	case ModelUnavailable:
		return "model_unavailable"
	case ModelLoadFailure:
		return "model_load_failure"
	case ProcessingFailure:
		return "processing_failure"
	default:
		return "unknown"
	}
}

var (
	ErrModelUnavailable  = &Error{Kind: ModelUnavailable}
	ErrModelLoadFailure  = &Error{Kind: ModelLoadFailure}
	ErrProcessingFailure = &Error{Kind: ProcessingFailure}
)

// Error carries a kind and the underlying cause.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the exported sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NewError wraps err with the given kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Errorf formats a new error of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Cause returns the underlying error text without the kind prefix.
func Cause(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
