// Package extraction turns receipt images into structured line items.
//
// The Extractor interface is the boundary to the external parsing capability.
// Implementations perform exactly one call per Extract and never retry;
// retry policy belongs to the caller.
package extraction

import (
	"context"
	"fmt"

	"github.com/mmynk/splitit/internal/models"
)

// Extractor parses a receipt image into a normalised receipt.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (*models.Receipt, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, image []byte) (*models.Receipt, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, image []byte) (*models.Receipt, error) {
	return f(ctx, image)
}

// Kind classifies an extraction failure.
type Kind int

const (
	// KindUnavailable covers network and service failures.
	KindUnavailable Kind = iota + 1
	// KindMalformed means the response could not be parsed.
	KindMalformed
	// KindMissingField means a required field (items, total, item price) was absent.
	KindMissingField
	// KindInvalidValue means a field was present but unusable, e.g. a negative price.
	KindInvalidValue
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindMalformed:
		return "malformed"
	case KindMissingField:
		return "missing field"
	case KindInvalidValue:
		return "invalid value"
	default:
		return "unknown"
	}
}

// Error is returned for every failed extraction.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("receipt extraction failed (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}
