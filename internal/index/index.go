// Package index owns the full set of chunk vectors and answers
// nearest-neighbor queries over them. The index is built once from the
// whole chunk set, persisted atomically, and read-only after load, so
// concurrent readers need no locking.
package index

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/leafwise/tomatodoc/internal/domain"
)

const (
	defaultBatchSize = 32
	// embedConcurrency bounds parallel embedding batches during a build.
	embedConcurrency = 4
)

// Index holds chunks and their unit-length embedding vectors in
// insertion order.
type Index struct {
	chunks  []domain.Chunk
	vectors [][]float32
	dims    int
	model   string
}

// Hit is a single retrieval result.
type Hit struct {
	Chunk domain.Chunk
	Score float64
}

// BuildParams configures an index build.
type BuildParams struct {
	Embedder   domain.Embedder
	Model      string // embedding model identity, persisted with the index
	Dimensions int    // expected dimensionality; 0 accepts whatever the model returns
	BatchSize  int
}

// Build embeds every chunk and assembles the index. Any embedding
// failure, empty chunk, or dimensionality disagreement aborts the whole
// build: a corpus with silently missing entries must never exist.
func Build(ctx context.Context, chunks []domain.Chunk, p BuildParams) (*Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to index: %w", domain.ErrInvalidArgument)
	}
	if p.Embedder == nil {
		return nil, fmt.Errorf("embedder is required: %w", domain.ErrInvalidArgument)
	}
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		if c.Text() == "" {
			return nil, fmt.Errorf("chunk %s#%d has empty text: %w", c.SourceID(), c.Seq(), domain.ErrEmbedding)
		}
		texts[i] = c.Text()
	}

	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for offset := 0; offset < len(texts); offset += batchSize {
		start := offset
		end := min(start+batchSize, len(texts))
		g.Go(func() error {
			res, err := embedBatch(gctx, p.Embedder, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed chunks [%d:%d]: %w", start, end, err)
			}
			copy(vectors[start:end], res.Embeddings)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dims := p.Dimensions
	for i, vec := range vectors {
		if len(vec) == 0 {
			return nil, fmt.Errorf("chunk %s#%d produced an empty vector: %w",
				chunks[i].SourceID(), chunks[i].Seq(), domain.ErrEmbedding)
		}
		if dims == 0 {
			dims = len(vec)
		}
		if len(vec) != dims {
			return nil, fmt.Errorf("chunk %s#%d has dimensionality %d, expected %d: %w",
				chunks[i].SourceID(), chunks[i].Seq(), len(vec), dims, domain.ErrEmbedding)
		}
		domain.Normalize(vec)
	}

	return &Index{
		chunks:  append([]domain.Chunk(nil), chunks...),
		vectors: vectors,
		dims:    dims,
		model:   p.Model,
	}, nil
}

func embedBatch(ctx context.Context, e domain.Embedder, texts []string) (domain.BatchEmbeddingResult, error) {
	if be, ok := e.(domain.BatchEmbedder); ok {
		return be.BatchEmbed(ctx, texts)
	}
	return domain.BatchFallback(ctx, e, texts)
}

// Query returns the k chunks most similar to vec, ordered by descending
// inner-product similarity with ties broken by insertion order. k below
// one is an error; k beyond the index size is clamped to it.
func (ix *Index) Query(vec []float32, k int) ([]Hit, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be at least 1, got %d: %w", k, domain.ErrInvalidArgument)
	}
	if len(vec) != ix.dims {
		return nil, fmt.Errorf("query vector has dimensionality %d, index has %d: %w",
			len(vec), ix.dims, domain.ErrInvalidArgument)
	}
	if k > len(ix.chunks) {
		k = len(ix.chunks)
	}

	scores := make([]float64, len(ix.vectors))
	for i, v := range ix.vectors {
		scores[i] = dot(vec, v)
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		idx := order[i]
		hits[i] = Hit{Chunk: ix.chunks[idx], Score: scores[idx]}
	}
	return hits, nil
}

// Size returns the number of indexed chunks.
func (ix *Index) Size() int { return len(ix.chunks) }

// Dimensions returns the embedding dimensionality.
func (ix *Index) Dimensions() int { return ix.dims }

// Model returns the embedding model identity recorded at build time.
func (ix *Index) Model() string { return ix.model }

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
