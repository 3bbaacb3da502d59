package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Retriever finds the chunks of the current snapshot nearest to a query.
// Queries are embedded with the same service that embedded the chunks.
type Retriever struct {
	cache    *DocumentCache
	embedder driven.EmbeddingService
}

// NewRetriever creates a retriever over cache.
func NewRetriever(cache *DocumentCache, embedder driven.EmbeddingService) *Retriever {
	return &Retriever{cache: cache, embedder: embedder}
}

// Retrieve returns up to k chunks of the current snapshot ordered by
// ascending Euclidean distance, ties broken by chunk position.
// It returns domain.ErrNotReady before the first publish.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievalResult, error) {
	snap := r.cache.Current()
	if snap == nil {
		return nil, domain.ErrNotReady
	}
	return r.RetrieveFrom(ctx, snap, query, k)
}

// RetrieveFrom searches a specific snapshot. Callers that also need the
// snapshot's identity use this to avoid racing a concurrent publish.
func (r *Retriever) RetrieveFrom(
	ctx context.Context, snap *Snapshot, query string, k int,
) ([]domain.RetrievalResult, error) {
	if k < 0 {
		return nil, fmt.Errorf("%w: k must not be negative", domain.ErrInvalidInput)
	}
	if k == 0 {
		return []domain.RetrievalResult{}, nil
	}
	if r.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	if model := r.embedder.ModelName(); snap.EmbeddingModel != "" && model != snap.EmbeddingModel {
		logger.Warn("query model %s differs from index model %s", model, snap.EmbeddingModel)
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, domain.NewModelInvocationError(ctx, r.embedder.ModelName(), "embed", err)
	}
	if dims := snap.Vectors.Dimensions(); len(vector) != dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrInvalidInput, len(vector), dims)
	}

	hits, err := snap.Vectors.Search(vector, k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]domain.RetrievalResult, 0, len(hits))
	for _, hit := range hits {
		chunk, ok := snap.Chunk(hit.Position)
		if !ok {
			continue
		}
		results = append(results, domain.RetrievalResult{Chunk: chunk, Distance: hit.Distance})
	}

	logger.Debug("Retrieved %d of %d chunks", len(results), len(snap.Chunks))
	return results, nil
}
