package mcp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

const (
	defaultRetrieveK   = 5
	defaultSearchLimit = 10
)

// errEmptyQuestion is returned when a tool is called without text.
var errEmptyQuestion = errors.New("question must not be empty")

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"the question to answer from the current document"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer          string        `json:"answer"`
	Model           string        `json:"model,omitempty"`
	DocumentID      string        `json:"document_id"`
	SnapshotVersion uint64        `json:"snapshot_version"`
	Sources         []ChunkOutput `json:"sources"`
}

// RetrieveInput is the input schema for the retrieve tool.
type RetrieveInput struct {
	Question string `json:"question" jsonschema:"the text to find similar passages for"`
	K        int    `json:"k,omitempty" jsonschema:"number of passages to return (default 5)"`
}

// RetrieveOutput is the output schema for the retrieve tool.
type RetrieveOutput struct {
	Results []ChunkOutput `json:"results"`
	Count   int           `json:"count"`
}

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"keywords or a quoted phrase to find in the current document"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []ChunkOutput `json:"results"`
	Count   int           `json:"count"`
}

// ChunkOutput is a passage of the current document. Distance is set for
// semantic results and Score for keyword results.
type ChunkOutput struct {
	Position int     `json:"position"`
	Content  string  `json:"content"`
	Distance float64 `json:"distance,omitempty"`
	Score    float64 `json:"score,omitempty"`
}

// StatusInput is the (empty) input schema for the status tool.
type StatusInput struct{}

// StatusOutput is the output schema for the status tool.
type StatusOutput struct {
	State           string     `json:"state"`
	Policy          string     `json:"policy"`
	Ready           bool       `json:"ready"`
	DocumentID      string     `json:"document_id,omitempty"`
	SnapshotVersion uint64     `json:"snapshot_version,omitempty"`
	CurrentPath     string     `json:"current_path,omitempty"`
	PendingPath     string     `json:"pending_path,omitempty"`
	LastRun         *RunOutput `json:"last_run,omitempty"`
}

// RunOutput summarises one ingestion run.
type RunOutput struct {
	ID            string    `json:"id"`
	DocumentPath  string    `json:"document_path"`
	Outcome       string    `json:"outcome"`
	StartedAt     time.Time `json:"started_at"`
	DurationMS    int64     `json:"duration_ms"`
	Pages         int       `json:"pages"`
	PageFailures  int       `json:"page_failures"`
	Links         int       `json:"links"`
	Fetched       int       `json:"fetched"`
	FetchFailures int       `json:"fetch_failures"`
	Chunks        int       `json:"chunks"`
	Error         string    `json:"error,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question using only the most recently ingested document",
	}, s.handleAsk)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve",
		Description: "Return the passages of the current document closest in meaning to a question",
	}, s.handleRetrieve)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Keyword search over the passages of the current document",
	}, s.handleSearch)

	if s.ports.Ingestion != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "status",
			Description: "Report the ingestion state and the currently published document",
		}, s.handleStatus)
	}
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, AskOutput{}, errEmptyQuestion
	}

	answer, err := s.ports.Query.Ask(ctx, question)
	if err != nil {
		return nil, AskOutput{}, err
	}

	return nil, AskOutput{
		Answer:          answer.Text,
		Model:           answer.Model,
		DocumentID:      answer.DocumentID,
		SnapshotVersion: answer.SnapshotVersion,
		Sources:         retrievalOutputs(answer.Sources),
	}, nil
}

// handleRetrieve handles the retrieve tool invocation.
func (s *Server) handleRetrieve(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetrieveInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, RetrieveOutput{}, errEmptyQuestion
	}
	k := input.K
	if k <= 0 {
		k = defaultRetrieveK
	}

	results, err := s.ports.Query.Retrieve(ctx, question, k)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	out := retrievalOutputs(results)
	return nil, RetrieveOutput{Results: out, Count: len(out)}, nil
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	results, err := s.ports.Query.Search(ctx, input.Query, limit)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]ChunkOutput, len(results)),
		Count:   len(results),
	}
	for i := range results {
		output.Results[i] = ChunkOutput{
			Position: results[i].Chunk.Position,
			Content:  results[i].Chunk.Content,
			Score:    results[i].Score,
		}
	}

	return nil, output, nil
}

// handleStatus handles the status tool invocation.
func (s *Server) handleStatus(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return nil, statusOutput(s.ports.Ingestion.Status()), nil
}

func retrievalOutputs(results []domain.RetrievalResult) []ChunkOutput {
	out := make([]ChunkOutput, len(results))
	for i := range results {
		out[i] = ChunkOutput{
			Position: results[i].Chunk.Position,
			Content:  results[i].Chunk.Content,
			Distance: results[i].Distance,
		}
	}
	return out
}

func statusOutput(status domain.IngestionStatus) StatusOutput {
	out := StatusOutput{
		State:           status.State.String(),
		Policy:          status.Policy.String(),
		Ready:           status.Ready(),
		DocumentID:      status.DocumentID,
		SnapshotVersion: status.SnapshotVersion,
		CurrentPath:     status.CurrentPath,
		PendingPath:     status.PendingPath,
	}
	if status.LastRun != nil {
		run := runOutput(status.LastRun)
		out.LastRun = &run
	}
	return out
}

func runOutput(run *domain.IngestionRun) RunOutput {
	return RunOutput{
		ID:            run.ID,
		DocumentPath:  run.DocumentPath,
		Outcome:       string(run.Outcome),
		StartedAt:     run.StartedAt,
		DurationMS:    run.Duration().Milliseconds(),
		Pages:         run.Pages,
		PageFailures:  run.PageFailures,
		Links:         run.Links,
		Fetched:       run.Fetched,
		FetchFailures: run.FetchFailures,
		Chunks:        run.Chunks,
		Error:         run.Error,
	}
}
