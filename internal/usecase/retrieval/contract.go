package retrieval

import (
	"context"

	"github.com/leafwise/tomatodoc/internal/domain"
	"github.com/leafwise/tomatodoc/internal/index"
)

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Index answers nearest-neighbor queries over the chunk corpus.
type Index interface {
	Query(vector []float32, k int) ([]index.Hit, error)
	Size() int
}
