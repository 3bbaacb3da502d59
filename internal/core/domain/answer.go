package domain

// RetrievalResult is a chunk ranked by its distance to a query.
type RetrievalResult struct {
	Chunk    Chunk
	Distance float64
}

// KeywordResult is a chunk matched by the lexical index.
type KeywordResult struct {
	Chunk Chunk
	Score float64
}

// Answer is the model's response to a question, together with the
// chunks that were placed in the prompt.
type Answer struct {
	Question string

	// Text is the raw model response. It is not post-processed or verified.
	Text string

	// Sources are the retrieved chunks, in the order they appeared in the prompt.
	Sources []RetrievalResult

	// DocumentID and SnapshotVersion identify the snapshot that answered.
	DocumentID      string
	SnapshotVersion uint64

	// Model is the generative model that produced Text.
	Model string
}
