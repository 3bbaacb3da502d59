// Package flat provides an exact, brute-force vector index under
// Euclidean distance. A single document yields at most a few thousand
// chunks, so a linear scan per query is fast enough and gives exact results.
package flat

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure the types implement the interfaces.
var (
	_ driven.VectorIndexBuilder = Builder{}
	_ driven.VectorIndex        = (*Index)(nil)
)

var (
	// ErrEmpty is returned when building an index without vectors.
	ErrEmpty = errors.New("no vectors to index")

	// ErrDimensionMismatch is returned for vectors of differing sizes.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Builder builds flat indexes.
type Builder struct{}

// NewBuilder returns a flat index builder.
func NewBuilder() Builder { return Builder{} }

// Build copies vectors into a contiguous index.
func (Builder) Build(vectors [][]float32) (driven.VectorIndex, error) {
	return New(vectors)
}

// Index stores vectors row-major in one slice. It is immutable after New.
type Index struct {
	data []float32
	dims int
	n    int
}

// New builds an index. Every vector must have the same non-zero length.
func New(vectors [][]float32) (*Index, error) {
	if len(vectors) == 0 {
		return nil, ErrEmpty
	}
	dims := len(vectors[0])
	if dims == 0 {
		return nil, fmt.Errorf("%w: vector 0 is empty", ErrDimensionMismatch)
	}

	data := make([]float32, 0, dims*len(vectors))
	for i, v := range vectors {
		if len(v) != dims {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d",
				ErrDimensionMismatch, i, len(v), dims)
		}
		data = append(data, v...)
	}
	return &Index{data: data, dims: dims, n: len(vectors)}, nil
}

// Search returns the k nearest vectors, nearest first. Equal distances are
// ordered by position.
func (x *Index) Search(query []float32, k int) ([]driven.VectorHit, error) {
	if len(query) != x.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			ErrDimensionMismatch, len(query), x.dims)
	}
	if k <= 0 {
		return []driven.VectorHit{}, nil
	}

	hits := make([]driven.VectorHit, x.n)
	for i := 0; i < x.n; i++ {
		hits[i] = driven.VectorHit{Position: i, Distance: distance(query, x.data[i*x.dims:(i+1)*x.dims])}
	}
	slices.SortFunc(hits, func(a, b driven.VectorHit) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Len returns the number of indexed vectors.
func (x *Index) Len() int { return x.n }

// Dimensions returns the vector size.
func (x *Index) Dimensions() int { return x.dims }

// distance is the Euclidean distance, accumulated in float64.
func distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
