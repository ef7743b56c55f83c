// Package errors provides the error taxonomy and retry arithmetic for the
// tracklet delivery pipeline.
//
// The pipeline never panics or throws across stage boundaries; every stage
// returns a typed outcome that its caller classifies with this package:
//   - Invalid: caller error, reported synchronously, never retried
//   - Transient: retried with exponential backoff up to a configured cap
//   - Permanent: the batch is dropped and the failure surfaced to the caller
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

// Category represents how a pipeline failure should be handled.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: timeouts, connection resets, 5xx, 429.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	// Examples: 4xx other than 429, application-level rejection.
	CategoryPermanent

	// CategoryInvalid indicates a caller error caught before queueing.
	// Examples: empty event name, oversized property set.
	CategoryInvalid
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category and attempt context.
type CategorizedError struct {
	// Err is the underlying error.
	Err error

	// Category indicates how this error should be handled.
	Category Category

	// Attempts is the number of delivery attempts that have been made.
	Attempts int

	// Context describes what operation was being attempted.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)",
			e.Context, e.Err, e.Category, e.Attempts)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)",
		e.Err, e.Category, e.Attempts)
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

// Invalid creates a caller-error.
func Invalid(err error, context string) *CategorizedError {
	return NewCategorized(err, CategoryInvalid, context)
}

// Categorize determines how an error should be handled.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent // shouldn't happen, fail safe
	}

	// Check for already-categorized errors
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	// HTTP status classification
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 429:
			return CategoryTransient
		case httpErr.StatusCode >= 500:
			return CategoryTransient
		case httpErr.StatusCode >= 400:
			return CategoryPermanent
		default:
			return CategoryPermanent
		}
	}

	// Validation failures never entered the queue; retry cannot help.
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return CategoryInvalid
	}

	// Per-attempt timeouts
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return CategoryTransient
	}

	// Network-level failures are transient: the collector may come back.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CategoryTransient
	}
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	// Unknown errors are permanent (fail safe)
	return CategoryPermanent
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}
