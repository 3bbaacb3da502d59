package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// IngestionRunStore records the history of ingestion runs.
// It holds run metadata only; chunks and indexes are never persisted.
type IngestionRunStore interface {
	// Save creates or updates a run based on ID.
	Save(ctx context.Context, run *domain.IngestionRun) error

	// Get retrieves a run by ID. Returns domain.ErrNotFound if it does not exist.
	Get(ctx context.Context, id string) (*domain.IngestionRun, error)

	// List returns up to limit runs, most recent first.
	List(ctx context.Context, limit int) ([]domain.IngestionRun, error)

	// Prune keeps only the most recent keep runs.
	Prune(ctx context.Context, keep int) error

	// Close releases resources.
	Close() error
}
