package driving

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// IngestionService drives ingestion of delivered documents.
type IngestionService interface {
	// Start begins polling the notification source. It blocks until Stop is
	// called or ctx is cancelled.
	Start(ctx context.Context) error

	// Stop halts polling and waits for the in-flight run to finish.
	Stop() error

	// IngestNow synchronously ingests path. It never runs concurrently with
	// another ingestion.
	IngestNow(ctx context.Context, path string) (*domain.IngestionRun, error)

	// Status returns the coordinator's current state.
	Status() domain.IngestionStatus

	// History returns recent runs, most recent first.
	History(ctx context.Context, limit int) ([]domain.IngestionRun, error)
}
