package driven

// VectorIndexBuilder builds an immutable vector index from the embeddings
// of one snapshot. Vector i belongs to the chunk at position i.
type VectorIndexBuilder interface {
	// Build indexes vectors. All vectors must share one dimension.
	Build(vectors [][]float32) (VectorIndex, error)
}

// VectorIndex provides exact nearest-neighbour search over one snapshot's
// chunk embeddings. Implementations are immutable after Build and safe for
// concurrent use.
type VectorIndex interface {
	// Search returns up to k hits ordered by ascending distance, ties broken
	// by ascending position. k <= 0 returns no hits.
	Search(query []float32, k int) ([]VectorHit, error)

	// Len returns the number of indexed vectors.
	Len() int

	// Dimensions returns the vector size.
	Dimensions() int
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// Position is the index of the matched vector, which is also the chunk position.
	Position int

	// Distance is the Euclidean distance to the query.
	Distance float64
}
