// Package retrieval embeds user questions and retrieves the most
// relevant knowledge-base chunks from the vector index.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leafwise/tomatodoc/internal/domain"
	"github.com/leafwise/tomatodoc/internal/index"
	"github.com/leafwise/tomatodoc/internal/logger"
	"github.com/leafwise/tomatodoc/internal/metrics"
)

const (
	defaultTopK = 4
	minTopK     = 2
	maxTopK     = 8
)

// Service turns a question into ranked chunk hits.
type Service struct {
	embed Embedder
	index Index

	defaultK int
	minK     int
	maxK     int

	// loadErr is set when the index could not be loaded at startup;
	// every retrieval then fails with it until the index is rebuilt.
	loadErr error
}

// New creates a retrieval service over a loaded index.
func New(embed Embedder, idx Index) *Service {
	return &Service{
		embed:    embed,
		index:    idx,
		defaultK: defaultTopK,
		minK:     minTopK,
		maxK:     maxTopK,
	}
}

// NewUnavailable creates a service whose retrievals all fail with the
// given load error. Used when the server starts without a readable
// index so chat can report a rebuild instruction instead of crashing.
func NewUnavailable(loadErr error) *Service {
	if loadErr == nil {
		loadErr = domain.ErrIndexNotFound
	}
	return &Service{
		defaultK: defaultTopK,
		minK:     minTopK,
		maxK:     maxTopK,
		loadErr:  loadErr,
	}
}

// WithKRange overrides the top-k policy bounds. Zero values keep the
// defaults.
func (s *Service) WithKRange(def, min, max int) *Service {
	if def > 0 {
		s.defaultK = def
	}
	if min > 0 {
		s.minK = min
	}
	if max > 0 {
		s.maxK = max
	}
	return s
}

// Available reports whether the index is loaded.
func (s *Service) Available() bool {
	return s.loadErr == nil
}

// IndexSize returns the number of indexed chunks, zero when unavailable.
func (s *Service) IndexSize() int {
	if s.loadErr != nil {
		return 0
	}
	return s.index.Size()
}

// Retrieve embeds the question verbatim and returns the top-k hits.
// k == 0 selects the default; out-of-range values are rejected.
func (s *Service) Retrieve(ctx context.Context, question string, k int) ([]index.Hit, error) {
	if s.loadErr != nil {
		return nil, fmt.Errorf("index unavailable: %w", s.loadErr)
	}
	if question == "" {
		return nil, fmt.Errorf("question must not be empty: %w", domain.ErrInvalidArgument)
	}

	if k == 0 {
		k = s.defaultK
	}
	if k < s.minK || k > s.maxK {
		return nil, fmt.Errorf("top_k must be between %d and %d, got %d: %w",
			s.minK, s.maxK, k, domain.ErrInvalidArgument)
	}

	start := time.Now()

	embResult, err := s.embed.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("vectorize question: %w", err)
	}

	vector := embResult.Embedding
	domain.Normalize(vector)

	hits, err := s.index.Query(vector, k)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	metrics.RetrievalDuration.Observe(time.Since(start).Seconds())

	logger.FromContext(ctx).Debug("context retrieved",
		zap.Int("k", k),
		zap.Int("hits", len(hits)),
		zap.Duration("duration", time.Since(start)))

	return hits, nil
}
