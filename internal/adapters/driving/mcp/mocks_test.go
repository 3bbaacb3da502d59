package mcp

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	answer    *domain.Answer
	retrieved []domain.RetrievalResult
	keyword   []domain.KeywordResult
	err       error

	lastQuestion string
	lastK        int
	lastLimit    int
}

func (m *mockQueryService) Ask(_ context.Context, question string) (*domain.Answer, error) {
	m.lastQuestion = question
	return m.answer, m.err
}

func (m *mockQueryService) Retrieve(_ context.Context, question string, k int) ([]domain.RetrievalResult, error) {
	m.lastQuestion = question
	m.lastK = k
	return m.retrieved, m.err
}

func (m *mockQueryService) Search(_ context.Context, query string, limit int) ([]domain.KeywordResult, error) {
	m.lastQuestion = query
	m.lastLimit = limit
	return m.keyword, m.err
}

// mockIngestionService is a mock implementation of driving.IngestionService.
type mockIngestionService struct {
	status    domain.IngestionStatus
	runs      []domain.IngestionRun
	err       error
	lastLimit int
}

func (m *mockIngestionService) Start(_ context.Context) error { return m.err }

func (m *mockIngestionService) Stop() error { return m.err }

func (m *mockIngestionService) IngestNow(_ context.Context, _ string) (*domain.IngestionRun, error) {
	return nil, m.err
}

func (m *mockIngestionService) Status() domain.IngestionStatus { return m.status }

func (m *mockIngestionService) History(_ context.Context, limit int) ([]domain.IngestionRun, error) {
	m.lastLimit = limit
	return m.runs, m.err
}
