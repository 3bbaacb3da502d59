// Package domain defines the core business entities for sercha-rag.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: An extracted document with its pages, links and children
//   - Chunk: A retrievable slice of a document's aggregated text
//   - IngestionRun: One pass of the ingestion pipeline over a delivered document
//   - Answer: A generated answer together with the chunks it was grounded on
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
