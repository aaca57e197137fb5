package chat

import (
	"context"

	"github.com/leafwise/tomatodoc/internal/index"
)

// Retriever returns ranked chunk hits for a question. k == 0 selects
// the retriever's default.
type Retriever interface {
	Retrieve(ctx context.Context, question string, k int) ([]index.Hit, error)
}

// Generator produces an answer from an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
