package event

import (
	"fmt"

	terrors "github.com/randalmurphal/tracklet/pkg/tracklet/errors"
)

// Structural limits enforced before an event may enter the queue.
const (
	// MaxNameLength is the maximum event name length in bytes.
	MaxNameLength = 100

	// MaxProperties is the maximum number of property entries.
	MaxProperties = 1000

	// MaxKeyLength is the maximum property key length in bytes.
	MaxKeyLength = 100
)

// Validate checks the structural constraints on a candidate event.
// It is a pure function: no I/O, no side effects, same result for the
// same event. It runs on the caller's goroutine so invalid events fail
// fast without contending for the pipeline.
func Validate(e Event) error {
	if e.Name == "" {
		return &terrors.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if len(e.Name) > MaxNameLength {
		return &terrors.ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("length %d exceeds maximum %d", len(e.Name), MaxNameLength),
		}
	}
	if n := e.Properties.Len(); n > MaxProperties {
		return &terrors.ValidationError{
			Field:   "properties",
			Message: fmt.Sprintf("count %d exceeds maximum %d", n, MaxProperties),
		}
	}
	for _, key := range e.Properties.Keys() {
		if len(key) > MaxKeyLength {
			return &terrors.ValidationError{
				Field:   "properties",
				Message: fmt.Sprintf("key %q length %d exceeds maximum %d", key, len(key), MaxKeyLength),
			}
		}
	}
	return nil
}
