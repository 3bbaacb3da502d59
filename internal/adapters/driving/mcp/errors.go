// Package mcp provides an MCP (Model Context Protocol) server adapter.
// It lets AI assistants ask questions about the most recently ingested
// document and inspect the ingestion coordinator.
package mcp

import "errors"

// ErrMissingQueryService is returned when the query service is not provided.
var ErrMissingQueryService = errors.New("mcp: query service is required")
