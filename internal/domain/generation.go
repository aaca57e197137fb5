package domain

import "context"

// Generator is the answer generation contract: a single-shot text-in,
// text-out call to a language model. Implementations must fail with
// ErrGeneration rather than return an empty answer, and must respect
// the caller's context deadline.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
