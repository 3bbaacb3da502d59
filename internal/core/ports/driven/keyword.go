package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// KeywordIndexBuilder builds a lexical index over one snapshot's chunks.
type KeywordIndexBuilder interface {
	Build(ctx context.Context, chunks []domain.Chunk) (KeywordIndex, error)
}

// KeywordIndex provides full-text search over one snapshot's chunks.
// Implementations are immutable after Build and safe for concurrent use.
type KeywordIndex interface {
	// Search returns up to limit hits ordered by descending score.
	Search(ctx context.Context, query string, limit int) ([]KeywordHit, error)

	// Close releases resources.
	Close() error
}

// KeywordHit represents a lexical match.
type KeywordHit struct {
	// Position is the matched chunk's position.
	Position int

	// Score is the relevance score (higher is better).
	Score float64
}
