package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// uriScheme is the custom URI scheme for server resources.
	uriScheme = "sercha-rag://"

	// defaultHistoryLimit is the number of runs listed by the history resource.
	defaultHistoryLimit = 20

	// maxHistoryLimit caps the history template.
	maxHistoryLimit = 100
)

// registerResources registers all resource handlers with the MCP server.
// Without an ingestion port there is nothing to expose.
func (s *Server) registerResources() {
	if s.ports.Ingestion == nil {
		return
	}

	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "status",
		Name:        "status",
		Description: "Ingestion state and the currently published document",
		MIMEType:    "application/json",
	}, s.handleStatusResource)

	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "history",
		Name:        "history",
		Description: "Recent ingestion runs, most recent first",
		MIMEType:    "application/json",
	}, s.handleHistoryResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "history/{limit}",
		Name:        "history-limited",
		Description: "Up to limit recent ingestion runs",
		MIMEType:    "application/json",
	}, s.handleHistoryResource)
}

// handleStatusResource returns the coordinator status as JSON.
func (s *Server) handleStatusResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Ingestion == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	return jsonResource(req.Params.URI, statusOutput(s.ports.Ingestion.Status()))
}

// handleHistoryResource returns recent ingestion runs as JSON.
func (s *Server) handleHistoryResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Ingestion == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	limit, ok := extractHistoryLimit(req.Params.URI)
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	runs, err := s.ports.Ingestion.History(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	out := make([]RunOutput, len(runs))
	for i := range runs {
		out[i] = runOutput(&runs[i])
	}
	return jsonResource(req.Params.URI, out)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractHistoryLimit parses sercha-rag://history or sercha-rag://history/{limit}.
// Limits above maxHistoryLimit are clamped.
func extractHistoryLimit(uri string) (int, bool) {
	const base = uriScheme + "history"

	if uri == base {
		return defaultHistoryLimit, true
	}
	if !strings.HasPrefix(uri, base+"/") {
		return 0, false
	}

	limit, err := strconv.Atoi(strings.TrimPrefix(uri, base+"/"))
	if err != nil || limit <= 0 {
		return 0, false
	}
	return min(limit, maxHistoryLimit), true
}
