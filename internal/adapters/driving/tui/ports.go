// Package tui provides an interactive terminal user interface for asking
// questions about the current document. It is a driving adapter following
// hexagonal architecture principles.
package tui

import (
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the TUI.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Query answers questions.
	Query driving.QueryService

	// Ingestion reports which document is current. Optional.
	Ingestion driving.IngestionService
}

// NewPorts creates a new Ports aggregate with the given services.
func NewPorts(query driving.QueryService, ingestion driving.IngestionService) *Ports {
	return &Ports{
		Query:     query,
		Ingestion: ingestion,
	}
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p == nil {
		return ErrInvalidPorts
	}
	if p.Query == nil {
		return ErrMissingQueryService
	}
	return nil
}
