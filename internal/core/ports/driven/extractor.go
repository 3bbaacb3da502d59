package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// ContentExtractor extracts text and outbound links from a document on disk.
// Each extractor handles specific MIME types (e.g., PDF, HTML).
//
// Per-page failures must not be returned as errors: they are recorded in
// Document.Pages and extraction continues. A document without any text is
// returned with empty Text and a nil error. Only a document that cannot be
// read at all yields an error, which should be a *domain.ExtractionError.
type ContentExtractor interface {
	// SupportedMIMETypes returns the MIME types this extractor handles.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Format-specific extractors should return 50-89.
	// Fallback extractors should return 1-9.
	Priority() int

	// Extract reads the document at path.
	Extract(ctx context.Context, path string) (*domain.Document, error)
}
