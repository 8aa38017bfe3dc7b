package errors

import "fmt"

// TimeoutError indicates an operation timed out.
type TimeoutError struct {
	Operation string
	Duration  string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Duration, e.Operation)
}

// ContentError indicates a text service answered with output that could not
// be used (malformed JSON, empty text, a value outside the allowed set).
type ContentError struct {
	Input   string
	Message string
}

// Error implements the error interface.
func (e *ContentError) Error() string {
	return fmt.Sprintf("unusable output: %s", e.Message)
}

// ValidationError indicates a parsed value failed a domain check.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Degradation kinds reported when a step substitutes a safe default.
const (
	KindClassificationDegraded = "classification_degraded"
	KindNodeDegraded           = "node_degraded"
)

// DegradedError records that a component fell back to a default after its
// dependency failed. It is logged and surfaced, never returned to abort a
// turn.
type DegradedError struct {
	// Kind is KindClassificationDegraded or KindNodeDegraded.
	Kind string
	// Component is the classifier or node that degraded.
	Component string
	// Fallback describes the value used instead.
	Fallback string
	// Err is the failure that caused the degradation.
	Err error
}

// Error implements the error interface.
func (e *DegradedError) Error() string {
	return fmt.Sprintf("%s: %s fell back to %q: %v", e.Kind, e.Component, e.Fallback, e.Err)
}

// Unwrap returns the underlying failure.
func (e *DegradedError) Unwrap() error {
	return e.Err
}

// Degraded creates a DegradedError.
func Degraded(kind, component, fallback string, err error) *DegradedError {
	return &DegradedError{Kind: kind, Component: component, Fallback: fallback, Err: err}
}
