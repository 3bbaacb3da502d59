package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure QueryService implements the interfaces.
var (
	_ driving.QueryService    = (*QueryService)(nil)
	_ driven.PromptStoreAware = (*QueryService)(nil)
)

// DefaultTopK is the number of chunks placed in the answer prompt.
const DefaultTopK = 5

// DefaultQueryTimeout bounds a single answer, including retrieval.
const DefaultQueryTimeout = 120 * time.Second

// DefaultAnswerPrompt is the fallback prompt when no PromptStore is configured.
// The first %s receives the context passages, the second the question.
const DefaultAnswerPrompt = `You answer questions about a single document using only the context below.
If the context does not contain the answer, reply that the document does not contain this information.
Do not use prior knowledge and do not guess.

Context:
%s

Question: %s

Answer:`

// QueryConfig configures the query service.
type QueryConfig struct {
	TopK    int
	Timeout time.Duration

	// Rewrite expands the retrieval query through the LLM first.
	Rewrite bool
}

// QueryService answers questions from the current snapshot. Queries never
// wait for an in-flight ingestion: they read whichever snapshot is
// published when they start and report its identity in the answer.
type QueryService struct {
	cache       *DocumentCache
	retriever   *Retriever
	llm         driven.LLMService
	promptStore driven.PromptStore
	config      QueryConfig
}

// NewQueryService creates a query service. llm may be nil, in which case
// Ask returns domain.ErrLLMUnavailable while Retrieve and Search still work.
func NewQueryService(
	cache *DocumentCache, retriever *Retriever, llm driven.LLMService, config QueryConfig,
) *QueryService {
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultQueryTimeout
	}
	return &QueryService{
		cache:     cache,
		retriever: retriever,
		llm:       llm,
		config:    config,
	}
}

// SetPromptStore sets the prompt store for loading customisable prompts.
func (s *QueryService) SetPromptStore(store driven.PromptStore) {
	s.promptStore = store
}

// Ask retrieves the most relevant chunks and asks the LLM to answer from
// them alone. The model's response is returned unchanged.
func (s *QueryService) Ask(ctx context.Context, question string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}

	snap := s.cache.Current()
	if snap == nil {
		return nil, domain.ErrNotReady
	}
	if s.llm == nil {
		return nil, domain.ErrLLMUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	logger.Section("Ask")
	logger.Debug("Question: %q (snapshot %d, %s)", question, snap.Version, snap.DocumentID)

	results, err := s.retriever.RetrieveFrom(ctx, snap, s.retrievalQuery(ctx, question), s.config.TopK)
	if err != nil {
		return nil, err
	}

	prompt := BuildAnswerPrompt(s.loadPrompt(driven.PromptAnswer, DefaultAnswerPrompt), results, question)

	text, err := s.llm.Generate(ctx, prompt, driven.GenerateOptions{})
	if err != nil {
		return nil, domain.NewModelInvocationError(ctx, s.llm.ModelName(), "generate", err)
	}

	return &domain.Answer{
		Question:        question,
		Text:            text,
		Sources:         results,
		DocumentID:      snap.DocumentID,
		SnapshotVersion: snap.Version,
		Model:           s.llm.ModelName(),
	}, nil
}

// Retrieve returns the k nearest chunks to question without calling the LLM.
func (s *QueryService) Retrieve(ctx context.Context, question string, k int) ([]domain.RetrievalResult, error) {
	snap := s.cache.Current()
	if snap == nil {
		return nil, domain.ErrNotReady
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	return s.retriever.RetrieveFrom(ctx, snap, question, k)
}

// Search runs a lexical query against the current snapshot's keyword index.
func (s *QueryService) Search(ctx context.Context, query string, limit int) ([]domain.KeywordResult, error) {
	snap := s.cache.Current()
	if snap == nil {
		return nil, domain.ErrNotReady
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	if snap.Keywords == nil {
		return nil, fmt.Errorf("keyword index unavailable for %s: %w", snap.DocumentID, domain.ErrNotFound)
	}
	if limit <= 0 {
		limit = s.config.TopK
	}

	hits, err := snap.Keywords.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	results := make([]domain.KeywordResult, 0, len(hits))
	for _, hit := range hits {
		if chunk, ok := snap.Chunk(hit.Position); ok {
			results = append(results, domain.KeywordResult{Chunk: chunk, Score: hit.Score})
		}
	}
	return results, nil
}

// retrievalQuery returns the query to embed. With rewriting enabled the
// LLM expands the question; on failure the question is used as is.
func (s *QueryService) retrievalQuery(ctx context.Context, question string) string {
	if !s.config.Rewrite {
		return question
	}

	rewritten, err := s.llm.RewriteQuery(ctx, question)
	if err != nil || strings.TrimSpace(rewritten) == "" {
		logger.Warn("query rewrite failed, using original question: %v", err)
		return question
	}

	logger.Debug("Rewritten query: %q", rewritten)
	return rewritten
}

// loadPrompt loads a prompt from the store, falling back to the default if unavailable.
func (s *QueryService) loadPrompt(name, fallback string) string {
	if s.promptStore == nil {
		return fallback
	}
	prompt, err := s.promptStore.Load(name)
	if err != nil || prompt == "" {
		return fallback
	}
	return prompt
}

// BuildAnswerPrompt fills template with the retrieved passages, in
// ascending distance order, and the question.
func BuildAnswerPrompt(template string, results []domain.RetrievalResult, question string) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, r.Chunk.Content)
	}
	return fmt.Sprintf(template, b.String(), question)
}
