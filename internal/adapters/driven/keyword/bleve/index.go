// Package bleve provides an in-memory full-text index over a snapshot's
// chunks, used for keyword search alongside vector retrieval.
package bleve

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure the types implement the interfaces.
var (
	_ driven.KeywordIndexBuilder = (*Builder)(nil)
	_ driven.KeywordIndex        = (*Index)(nil)
)

// batchSize is how many chunks are indexed per bleve batch.
const batchSize = 256

// chunkDoc is the indexed form of a chunk.
type chunkDoc struct {
	Content string `json:"content"`
}

// Builder builds memory-only bleve indexes.
type Builder struct {
	analyzer string
}

// NewBuilder returns a builder using the given analyzer ("en" when empty).
func NewBuilder(analyzer string) *Builder {
	if analyzer == "" {
		analyzer = "en"
	}
	return &Builder{analyzer: analyzer}
}

// Build indexes chunks by position.
func (b *Builder) Build(ctx context.Context, chunks []domain.Chunk) (driven.KeywordIndex, error) {
	index, err := bleve.NewMemOnly(b.mapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}

	batch := index.NewBatch()
	for i := range chunks {
		if err := ctx.Err(); err != nil {
			index.Close()
			return nil, err
		}
		id := strconv.Itoa(chunks[i].Position)
		if err := batch.Index(id, chunkDoc{Content: chunks[i].Content}); err != nil {
			index.Close()
			return nil, fmt.Errorf("index chunk %s: %w", id, err)
		}
		if batch.Size() >= batchSize {
			if err := index.Batch(batch); err != nil {
				index.Close()
				return nil, fmt.Errorf("flush batch: %w", err)
			}
			batch.Reset()
		}
	}
	if batch.Size() > 0 {
		if err := index.Batch(batch); err != nil {
			index.Close()
			return nil, fmt.Errorf("flush batch: %w", err)
		}
	}

	return &Index{index: index}, nil
}

func (b *Builder) mapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = b.analyzer
	indexMapping.DefaultField = "content"

	docMapping := bleve.NewDocumentMapping()
	contentField := bleve.NewTextFieldMapping()
	contentField.Store = false
	contentField.Index = true
	docMapping.AddFieldMappingsAt("content", contentField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Index is a read-only bleve index over one snapshot.
type Index struct {
	index bleve.Index
}

// Search runs a match query over chunk content. Quoted input runs a phrase
// query instead. Hits are ordered by descending score, then position.
func (x *Index) Search(ctx context.Context, query string, limit int) ([]driven.KeywordHit, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return []driven.KeywordHit{}, nil
	}

	var q blevequery.Query
	if len(query) > 1 && strings.HasPrefix(query, `"`) && strings.HasSuffix(query, `"`) {
		phrase := bleve.NewMatchPhraseQuery(strings.Trim(query, `"`))
		phrase.SetField("content")
		q = phrase
	} else {
		match := bleve.NewMatchQuery(query)
		match.SetField("content")
		q = match
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := x.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	hits := make([]driven.KeywordHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		pos, err := strconv.Atoi(h.ID)
		if err != nil {
			continue
		}
		hits = append(hits, driven.KeywordHit{Position: pos, Score: h.Score})
	}
	slices.SortStableFunc(hits, func(a, b driven.KeywordHit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})
	return hits, nil
}

// Close releases the index.
func (x *Index) Close() error {
	return x.index.Close()
}
