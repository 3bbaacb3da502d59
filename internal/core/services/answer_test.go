package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

func newTestQueryService(cache *DocumentCache, llm driven.LLMService, cfg QueryConfig) (*QueryService, *stubEmbedder) {
	emb := &stubEmbedder{}
	return NewQueryService(cache, NewRetriever(cache, emb), llm, cfg), emb
}

func TestQueryService_Ask_NotReady(t *testing.T) {
	svc, _ := newTestQueryService(NewDocumentCache(), &stubLLM{}, QueryConfig{})

	_, err := svc.Ask(context.Background(), "what?")

	assert.ErrorIs(t, err, domain.ErrNotReady)
}

func TestQueryService_Ask_BuildsGroundedPrompt(t *testing.T) {
	cache := NewDocumentCache()
	publishChunks(t, cache, "dddd", "aaaa", "aab")
	llm := &stubLLM{response: "  raw answer\n"}
	svc, _ := newTestQueryService(cache, llm, QueryConfig{TopK: 2})

	answer, err := svc.Ask(context.Background(), "  aaa  ")

	require.NoError(t, err)
	assert.Equal(t, "  raw answer\n", answer.Text, "response is returned unchanged")
	assert.Equal(t, "aaa", answer.Question)
	assert.Equal(t, "/doc.pdf", answer.DocumentID)
	assert.Equal(t, uint64(1), answer.SnapshotVersion)
	assert.Equal(t, "stub-llm", answer.Model)
	require.Len(t, answer.Sources, 2)

	prompt := llm.lastPrompt()
	assert.Contains(t, prompt, "[1] aaaa\n\n[2] aab")
	assert.Contains(t, prompt, "Question: aaa")
	assert.NotContains(t, prompt, "dddd")
	assert.Less(t, strings.Index(prompt, "[1]"), strings.Index(prompt, "Question:"))
}

func TestQueryService_Ask_CustomPrompt(t *testing.T) {
	cache := NewDocumentCache()
	publishChunks(t, cache, "aaaa")
	llm := &stubLLM{response: "ok"}
	svc, _ := newTestQueryService(cache, llm, QueryConfig{})
	svc.SetPromptStore(stubPromptStore{driven.PromptAnswer: "CTX=%s Q=%s"})

	_, err := svc.Ask(context.Background(), "a")

	require.NoError(t, err)
	assert.Equal(t, "CTX=[1] aaaa Q=a", llm.lastPrompt())
}

func TestQueryService_Ask_NoLLM(t *testing.T) {
	cache := NewDocumentCache()
	publishChunks(t, cache, "aaaa")
	svc, _ := newTestQueryService(cache, nil, QueryConfig{})

	_, err := svc.Ask(context.Background(), "a")
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)

	results, err := svc.Retrieve(context.Background(), "a", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestQueryService_Ask_EmptyQuestion(t *testing.T) {
	svc, _ := newTestQueryService(NewDocumentCache(), &stubLLM{}, QueryConfig{})

	_, err := svc.Ask(context.Background(), "   ")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestQueryService_Ask_ModelFailure(t *testing.T) {
	cache := NewDocumentCache()
	publishChunks(t, cache, "aaaa")
	svc, _ := newTestQueryService(cache, &stubLLM{err: errors.New("500")}, QueryConfig{})

	_, err := svc.Ask(context.Background(), "a")

	var modelErr *domain.ModelInvocationError
	require.ErrorAs(t, err, &modelErr)
	assert.Equal(t, "generate", modelErr.Op)
	assert.False(t, modelErr.Timeout)
}

func TestQueryService_Ask_Timeout(t *testing.T) {
	cache := NewDocumentCache()
	publishChunks(t, cache, "aaaa")
	svc, _ := newTestQueryService(cache, &stubLLM{block: true}, QueryConfig{Timeout: 20 * time.Millisecond})

	_, err := svc.Ask(context.Background(), "a")

	var modelErr *domain.ModelInvocationError
	require.ErrorAs(t, err, &modelErr)
	assert.True(t, modelErr.Timeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueryService_Ask_Rewrite(t *testing.T) {
	cache := NewDocumentCache()
	publishChunks(t, cache, "aaaa", "bbbb")

	t.Run("rewritten query is embedded", func(t *testing.T) {
		llm := &stubLLM{response: "ok", rewrite: "bbb expanded"}
		svc, emb := newTestQueryService(cache, llm, QueryConfig{TopK: 1, Rewrite: true})

		answer, err := svc.Ask(context.Background(), "a")

		require.NoError(t, err)
		assert.Equal(t, []string{"bbb expanded"}, emb.queries)
		assert.Equal(t, "bbbb", answer.Sources[0].Chunk.Content)
		assert.Contains(t, llm.lastPrompt(), "Question: a")
	})

	t.Run("rewrite failure falls back", func(t *testing.T) {
		llm := &stubLLM{response: "ok", rewriteErr: errors.New("nope")}
		svc, emb := newTestQueryService(cache, llm, QueryConfig{TopK: 1, Rewrite: true})

		_, err := svc.Ask(context.Background(), "aaa")

		require.NoError(t, err)
		assert.Equal(t, []string{"aaa"}, emb.queries)
	})
}

func TestQueryService_Search(t *testing.T) {
	cache := NewDocumentCache()
	svc, _ := newTestQueryService(cache, nil, QueryConfig{})

	_, err := svc.Search(context.Background(), "x", 5)
	assert.ErrorIs(t, err, domain.ErrNotReady)

	publishChunks(t, cache, "the invoice total", "shipping address", "invoice number")

	results, err := svc.Search(context.Background(), "invoice", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Chunk.Position)
	assert.Equal(t, 2, results[1].Chunk.Position)

	_, err = svc.Search(context.Background(), " ", 5)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	cache.Publish(&Snapshot{DocumentID: "/no-keywords"})
	_, err = svc.Search(context.Background(), "invoice", 5)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBuildAnswerPrompt_NoResults(t *testing.T) {
	prompt := BuildAnswerPrompt(DefaultAnswerPrompt, nil, "why?")

	assert.Contains(t, prompt, "Context:\n\n\nQuestion: why?")
}
