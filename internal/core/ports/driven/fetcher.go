package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// LinkFetcher downloads resources referenced by a document.
type LinkFetcher interface {
	// Fetch downloads each URL into destDir with a bounded timeout.
	// Per-link failures are reported in the FetchReport and never abort the
	// batch; the error is reserved for failures that affect every link, such
	// as an unwritable destination or a cancelled context.
	Fetch(ctx context.Context, urls []string, destDir string) (*domain.FetchReport, error)
}
