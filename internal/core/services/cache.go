package services

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Snapshot is one published, immutable view of an ingested document.
// Everything a query needs is reachable from the snapshot, so a reader
// holding one never observes a partially built index.
type Snapshot struct {
	// Version increases by one with every publish.
	Version uint64

	// DocumentID is the path of the delivered document.
	DocumentID string

	// Text is the aggregated text the chunks were cut from.
	Text string

	// Chunks are ordered by position; Chunks[i].Position == i.
	Chunks []domain.Chunk

	// Vectors answers nearest-neighbour queries over the chunk embeddings.
	Vectors driven.VectorIndex

	// Keywords answers lexical queries. May be nil. It is closed once the
	// snapshot has been replaced and no reader holds it any more.
	Keywords driven.KeywordIndex

	// EmbeddingModel is the model that produced the vectors. Queries must
	// be embedded with the same model.
	EmbeddingModel string

	// Sources lists the files that contributed text: the document, then
	// each fetched linked resource.
	Sources []string

	PublishedAt time.Time
}

// Chunk returns the chunk at position, or false when out of range.
func (s *Snapshot) Chunk(position int) (domain.Chunk, bool) {
	if position < 0 || position >= len(s.Chunks) {
		return domain.Chunk{}, false
	}
	return s.Chunks[position], true
}

// DocumentCache holds the current snapshot. Publishing replaces it in a
// single atomic swap; readers never block writers and never see a mix of
// two snapshots.
type DocumentCache struct {
	current atomic.Pointer[Snapshot]

	// publishMu orders publishes so versions are stored in sequence.
	publishMu sync.Mutex
	version   uint64
}

// NewDocumentCache creates an empty cache.
func NewDocumentCache() *DocumentCache {
	return &DocumentCache{}
}

// Current returns the published snapshot, or nil before the first publish.
func (c *DocumentCache) Current() *Snapshot {
	return c.current.Load()
}

// Ready reports whether a snapshot has been published.
func (c *DocumentCache) Ready() bool {
	return c.current.Load() != nil
}

// Publish assigns the next version to snap and makes it current.
// The previous snapshot stays valid for readers already holding it; its
// keyword index is released when the last of them lets go.
func (c *DocumentCache) Publish(snap *Snapshot) uint64 {
	if snap.Keywords != nil {
		runtime.AddCleanup(snap, closeKeywords, snap.Keywords)
	}

	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	c.version++
	snap.Version = c.version
	if snap.PublishedAt.IsZero() {
		snap.PublishedAt = time.Now()
	}
	c.current.Store(snap)
	return snap.Version
}

func closeKeywords(index driven.KeywordIndex) {
	if err := index.Close(); err != nil {
		logger.Debug("close keyword index: %v", err)
	}
}
