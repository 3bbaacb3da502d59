package tui

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// MockQueryService implements driving.QueryService for testing.
type MockQueryService struct {
	AskFunc func(ctx context.Context, question string) (*domain.Answer, error)
}

func (m *MockQueryService) Ask(ctx context.Context, question string) (*domain.Answer, error) {
	if m.AskFunc != nil {
		return m.AskFunc(ctx, question)
	}
	return &domain.Answer{Question: question, Text: "answer"}, nil
}

func (m *MockQueryService) Retrieve(_ context.Context, _ string, _ int) ([]domain.RetrievalResult, error) {
	return nil, nil
}

func (m *MockQueryService) Search(_ context.Context, _ string, _ int) ([]domain.KeywordResult, error) {
	return nil, nil
}

// MockIngestionService implements driving.IngestionService for testing.
type MockIngestionService struct {
	StatusValue domain.IngestionStatus
}

func (m *MockIngestionService) Start(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (m *MockIngestionService) Stop() error { return nil }

func (m *MockIngestionService) IngestNow(_ context.Context, path string) (*domain.IngestionRun, error) {
	return &domain.IngestionRun{ID: "run", DocumentPath: path, Outcome: domain.OutcomePublished}, nil
}

func (m *MockIngestionService) Status() domain.IngestionStatus {
	return m.StatusValue
}

func (m *MockIngestionService) History(_ context.Context, _ int) ([]domain.IngestionRun, error) {
	return nil, nil
}

var (
	_ driving.QueryService     = (*MockQueryService)(nil)
	_ driving.IngestionService = (*MockIngestionService)(nil)
)

func TestNewPorts(t *testing.T) {
	query := &MockQueryService{}
	ingestion := &MockIngestionService{}

	ports := NewPorts(query, ingestion)

	assert.Equal(t, query, ports.Query)
	assert.Equal(t, ingestion, ports.Ingestion)
}

func TestPorts_Validate(t *testing.T) {
	tests := []struct {
		name  string
		ports *Ports
		want  error
	}{
		{name: "nil", ports: nil, want: ErrInvalidPorts},
		{name: "missing query", ports: &Ports{Ingestion: &MockIngestionService{}}, want: ErrMissingQueryService},
		{name: "query only", ports: &Ports{Query: &MockQueryService{}}},
		{name: "all set", ports: NewPorts(&MockQueryService{}, &MockIngestionService{})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ports.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
