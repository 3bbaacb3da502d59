package flat

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

func TestNew_Errors(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = New([][]float32{{}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = New([][]float32{{1, 2}, {1, 2, 3}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestBuilder_Build(t *testing.T) {
	idx, err := NewBuilder().Build([][]float32{{0, 0}, {1, 1}, {2, 2}})

	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 2, idx.Dimensions())
}

func TestIndex_Search(t *testing.T) {
	idx, err := New([][]float32{
		{0, 0},
		{3, 4},
		{1, 0},
		{0, 1},
		{10, 10},
	})
	require.NoError(t, err)

	hits, err := idx.Search([]float32{0, 0}, 4)

	require.NoError(t, err)
	require.Len(t, hits, 4)
	assert.Equal(t, []int{0, 2, 3, 1}, positions(hits))
	assert.InDelta(t, 0, hits[0].Distance, 1e-9)
	assert.InDelta(t, 5, hits[3].Distance, 1e-9)
}

func TestIndex_Search_TiesByPosition(t *testing.T) {
	idx, err := New([][]float32{{1, 0}, {0, 1}, {-1, 0}, {0, -1}})
	require.NoError(t, err)

	hits, err := idx.Search([]float32{0, 0}, 4)

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, positions(hits))
}

func TestIndex_Search_Bounds(t *testing.T) {
	idx, err := New([][]float32{{1}, {2}})
	require.NoError(t, err)

	hits, err := idx.Search([]float32{0}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = idx.Search([]float32{0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	_, err = idx.Search([]float32{0, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestIndex_CopiesInput(t *testing.T) {
	vectors := [][]float32{{1, 1}}
	idx, err := New(vectors)
	require.NoError(t, err)

	vectors[0][0] = 100

	hits, err := idx.Search([]float32{1, 1}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0, hits[0].Distance, 1e-9)
}

func TestIndex_ConcurrentSearch(t *testing.T) {
	vectors := make([][]float32, 200)
	for i := range vectors {
		vectors[i] = []float32{float32(i), float32(math.Sin(float64(i)))}
	}
	idx, err := New(vectors)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := idx.Search([]float32{50, 0}, 3)
			assert.NoError(t, err)
			assert.Equal(t, 50, hits[0].Position)
		}()
	}
	wg.Wait()
}

func positions(hits []driven.VectorHit) []int {
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.Position
	}
	return out
}
