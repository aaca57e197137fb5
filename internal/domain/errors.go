package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbedding signals that a chunk or query could not be vectorized.
	// During an index build this aborts the whole build.
	ErrEmbedding = errors.New("embedding failed")
	// ErrIndexNotFound signals a missing persisted index.
	ErrIndexNotFound = errors.New("index not found")
	// ErrIndexCorrupt signals an unreadable or incompatible persisted index.
	ErrIndexCorrupt = errors.New("index corrupt")
	// ErrInvalidArgument signals bad caller-supplied parameters.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrGeneration signals a failed or timed-out language model call.
	ErrGeneration = errors.New("generation failed")
	// ErrClassifier signals a failed call to the external leaf classifier.
	ErrClassifier = errors.New("classifier request failed")
	// ErrSessionNotFound signals an unknown chat session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrCorpus signals an invalid corpus document.
	ErrCorpus = errors.New("invalid corpus document")
)

// DimensionMismatchError wraps ErrIndexCorrupt with the persisted and
// configured embedding dimensionalities. A mismatch means the index was
// built with a different embedding model and must never be coerced.
type DimensionMismatchError struct {
	Persisted  int
	Configured int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: persisted dimensionality %d, configured %d",
		ErrIndexCorrupt.Error(), e.Persisted, e.Configured)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrIndexCorrupt }

// NewDimensionMismatch creates a dimensionality mismatch error.
func NewDimensionMismatch(persisted, configured int) error {
	return &DimensionMismatchError{Persisted: persisted, Configured: configured}
}
