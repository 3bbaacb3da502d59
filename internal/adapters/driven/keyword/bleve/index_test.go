package bleve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func buildIndex(t *testing.T, contents ...string) *Index {
	t.Helper()
	chunks := make([]domain.Chunk, len(contents))
	for i, c := range contents {
		chunks[i] = domain.Chunk{Position: i, Content: c}
	}
	idx, err := NewBuilder("").Build(context.Background(), chunks)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx.(*Index)
}

func TestSearch_Match(t *testing.T) {
	idx := buildIndex(t,
		"The invoice is due on the first of March.",
		"Payment terms are thirty days.",
		"Invoices are sent by email. Each invoice lists the payment terms.",
	)

	hits, err := idx.Search(context.Background(), "invoice", 10)

	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.ElementsMatch(t, []int{0, 2}, []int{hits[0].Position, hits[1].Position})
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
}

func TestSearch_Stemming(t *testing.T) {
	idx := buildIndex(t, "shipping was delayed", "nothing relevant here")

	hits, err := idx.Search(context.Background(), "ships", 10)

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].Position)
}

func TestSearch_Phrase(t *testing.T) {
	idx := buildIndex(t, "payment terms apply", "terms of payment")

	hits, err := idx.Search(context.Background(), `"payment terms"`, 10)

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].Position)
}

func TestSearch_Limits(t *testing.T) {
	idx := buildIndex(t, "alpha one", "alpha two", "alpha three")

	hits, err := idx.Search(context.Background(), "alpha", 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = idx.Search(context.Background(), "  ", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Search(context.Background(), "alpha", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuilder("").Build(ctx, []domain.Chunk{{Content: "x"}})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuild_Empty(t *testing.T) {
	idx := buildIndex(t)

	hits, err := idx.Search(context.Background(), "anything", 5)

	require.NoError(t, err)
	assert.Empty(t, hits)
}
