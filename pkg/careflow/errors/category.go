// Package errors classifies failures from text services, stores, and
// workflow steps, and provides retry with backoff for the transient ones.
//
// Callers decide what to do with an error by its Category:
//   - Transient: retrying the same call may succeed (timeouts, overload).
//   - Content: the call succeeded but its output was unusable; a simpler
//     fallback prompt may succeed.
//   - Conflict: another writer got there first; the whole turn can be
//     retried by the client.
//   - Permanent: nothing will help without a change.
package errors

import (
	"context"
	"errors"
	"fmt"

	"github.com/randalmurphal/careflow/pkg/careflow/checkpoint"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	CategoryPermanent

	// CategoryContent indicates unusable output (malformed JSON, missing
	// fields). A retry with a different prompt may help.
	CategoryContent

	// CategoryConflict indicates a lost optimistic-concurrency race.
	CategoryConflict
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryContent:
		return "content"
	case CategoryConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Retries is the number of attempts that have been made.
	Retries int

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Retries)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Retries)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// NewCategorized creates a new categorized error.
func NewCategorized(err error, category Category, context string) *CategorizedError {
	return &CategorizedError{
		Err:      err,
		Category: category,
		Context:  context,
	}
}

// Transient creates a transient error.
func Transient(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryTransient, context)
}

// Permanent creates a permanent error.
func Permanent(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryPermanent, context)
}

// Content creates a content error.
func Content(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryContent, context)
}

// Categorize determines how an error should be handled.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	if errors.Is(err, checkpoint.ErrVersionConflict) {
		return CategoryConflict
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return CategoryTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	var contentErr *ContentError
	if errors.As(err, &contentErr) {
		return CategoryContent
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return CategoryContent
	}

	// Everything else, including context.Canceled, fails safe.
	return CategoryPermanent
}

// IsRetryable reports whether the same call should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}

// IsContent reports whether the output, not the call, was the problem.
func IsContent(err error) bool {
	return Categorize(err) == CategoryContent
}

// IsConflict reports whether a concurrent writer won.
func IsConflict(err error) bool {
	return Categorize(err) == CategoryConflict
}
