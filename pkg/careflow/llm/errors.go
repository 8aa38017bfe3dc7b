package llm

import (
	"errors"
	"fmt"
	"strings"

	cferrors "github.com/randalmurphal/careflow/pkg/careflow/errors"
)

// Kind classifies a text service failure.
type Kind int

const (
	// KindPermanent failures are not retried.
	KindPermanent Kind = iota
	// KindTransient failures may succeed on retry.
	KindTransient
	// KindContent means the call succeeded but the output is unusable.
	KindContent
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindContent:
		return "content"
	default:
		return "permanent"
	}
}

// Sentinels matched by errors.Is on an *Error of the same kind. They are
// categorized errors, so cferrors.Categorize sees the kind too.
var (
	ErrTransient = cferrors.Transient(errors.New("text service unavailable"), "llm")
	ErrContent   = cferrors.Content(errors.New("text service output unusable"), "llm")
)

var errEmptyOutput = errors.New("empty output")

// Error is a failed text service call.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

// NewError creates an Error.
func NewError(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("llm %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the kind sentinel first, then the cause.
func (e *Error) Unwrap() []error {
	switch e.Kind {
	case KindTransient:
		return []error{ErrTransient, e.Err}
	case KindContent:
		return []error{ErrContent, e.Err}
	default:
		return []error{e.Err}
	}
}

// Retryable reports whether the same request may succeed on retry.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient
}

// isRetryableMessage checks if an error message indicates a transient error.
func isRetryableMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range []string{"rate limit", "timeout", "overloaded", "unavailable", "connection refused", "429", "503", "529"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
