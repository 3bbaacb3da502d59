package driving

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// QueryService answers questions against the currently published document.
//
// Every method returns domain.ErrNotReady while no document has been
// published. Queries never wait for an ingestion in progress; they are
// served from the last published snapshot.
type QueryService interface {
	// Ask retrieves the most relevant chunks and asks the generative model
	// to answer from them. Model failures are *domain.ModelInvocationError.
	Ask(ctx context.Context, question string) (*domain.Answer, error)

	// Retrieve returns the k chunks closest to question, by ascending distance.
	Retrieve(ctx context.Context, question string, k int) ([]domain.RetrievalResult, error)

	// Search runs a keyword search over the current document's chunks.
	Search(ctx context.Context, query string, limit int) ([]domain.KeywordResult, error)
}
