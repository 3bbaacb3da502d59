package services

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func TestDocumentCache_EmptyUntilPublished(t *testing.T) {
	cache := NewDocumentCache()

	assert.Nil(t, cache.Current())
	assert.False(t, cache.Ready())

	version := cache.Publish(&Snapshot{DocumentID: "/a.pdf"})

	assert.Equal(t, uint64(1), version)
	assert.True(t, cache.Ready())
	require.NotNil(t, cache.Current())
	assert.Equal(t, "/a.pdf", cache.Current().DocumentID)
	assert.False(t, cache.Current().PublishedAt.IsZero())
}

func TestDocumentCache_PublishReplacesWholeSnapshot(t *testing.T) {
	cache := NewDocumentCache()
	first := &Snapshot{DocumentID: "/a.pdf", Chunks: []domain.Chunk{{Content: "a"}}}
	cache.Publish(first)

	held := cache.Current()
	cache.Publish(&Snapshot{DocumentID: "/b.pdf"})

	assert.Equal(t, "/b.pdf", cache.Current().DocumentID)
	assert.Equal(t, uint64(2), cache.Current().Version)
	// Readers holding the old snapshot keep a consistent view.
	assert.Equal(t, "/a.pdf", held.DocumentID)
	assert.Len(t, held.Chunks, 1)
	assert.Equal(t, uint64(1), held.Version)
}

// documentSnapshot builds a snapshot of n chunks whose text, chunks and
// index all belong to id.
func documentSnapshot(t *testing.T, id string, n int) *Snapshot {
	t.Helper()
	chunks := make([]domain.Chunk, n)
	vectors := make([][]float32, n)
	parts := make([]string, n)
	for i := range chunks {
		parts[i] = fmt.Sprintf("%s part %d", id, i)
		chunks[i] = domain.Chunk{DocumentID: id, Position: i, Content: parts[i]}
		vectors[i] = []float32{float32(i), 0, 0, 0}
	}
	idx, err := bruteBuilder{}.Build(vectors)
	require.NoError(t, err)
	return &Snapshot{
		DocumentID: id,
		Text:       strings.Join(parts, "\n\n"),
		Chunks:     chunks,
		Vectors:    idx,
	}
}

func TestDocumentCache_ConcurrentPublishAndRead(t *testing.T) {
	cache := NewDocumentCache()
	sizes := map[string]int{"/a.pdf": 3, "/b.pdf": 7}
	texts := map[string]string{
		"/a.pdf": documentSnapshot(t, "/a.pdf", 3).Text,
		"/b.pdf": documentSnapshot(t, "/b.pdf", 7).Text,
	}

	const publishes = 50
	stop := make(chan struct{})
	var readers sync.WaitGroup
	var mixed atomic.Int64

	for r := 0; r < 8; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := cache.Current()
				if snap == nil {
					continue
				}
				consistent := snap.Text == texts[snap.DocumentID] &&
					len(snap.Chunks) == sizes[snap.DocumentID] &&
					snap.Vectors.Len() == len(snap.Chunks)
				for _, c := range snap.Chunks {
					consistent = consistent && c.DocumentID == snap.DocumentID
				}
				if !consistent {
					mixed.Add(1)
				}
			}
		}()
	}

	snaps := make([]*Snapshot, publishes)
	for i := range snaps {
		id := "/a.pdf"
		if i%2 == 1 {
			id = "/b.pdf"
		}
		snaps[i] = documentSnapshot(t, id, sizes[id])
	}

	var writers sync.WaitGroup
	for _, snap := range snaps {
		writers.Add(1)
		go func() {
			defer writers.Done()
			cache.Publish(snap)
		}()
	}
	writers.Wait()
	close(stop)
	readers.Wait()

	assert.Zero(t, mixed.Load(), "readers saw a snapshot mixing two documents")
	assert.Equal(t, uint64(publishes), cache.Current().Version)
}

func TestDocumentCache_ReleasesReplacedKeywordIndex(t *testing.T) {
	cache := NewDocumentCache()
	first := &stubKeywords{}
	held := &stubKeywords{}

	cache.Publish(&Snapshot{DocumentID: "/a.pdf", Keywords: first})
	cache.Publish(&Snapshot{DocumentID: "/b.pdf", Keywords: held})
	reader := cache.Current()
	cache.Publish(&Snapshot{DocumentID: "/c.pdf", Keywords: &stubKeywords{}})

	// Nothing refers to /a.pdf any more.
	assert.Eventually(t, func() bool {
		runtime.GC()
		return first.closed.Load()
	}, waitFor, tick)

	// A reader still holding /b.pdf can keep searching it.
	runtime.GC()
	runtime.GC()
	assert.False(t, held.closed.Load())
	_, err := reader.Keywords.Search(context.Background(), "x", 1)
	assert.NoError(t, err)
	runtime.KeepAlive(reader)
}

func TestSnapshot_Chunk(t *testing.T) {
	snap := &Snapshot{Chunks: []domain.Chunk{{Position: 0, Content: "zero"}, {Position: 1, Content: "one"}}}

	c, ok := snap.Chunk(1)
	assert.True(t, ok)
	assert.Equal(t, "one", c.Content)

	_, ok = snap.Chunk(2)
	assert.False(t, ok)
	_, ok = snap.Chunk(-1)
	assert.False(t, ok)
}
