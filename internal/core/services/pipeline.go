package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Pipeline stage names reported to ProgressFunc and IndexBuildError.
const (
	StageExtract = "extract"
	StageFetch   = "fetch"
	StageChunk   = "chunk"
	StageEmbed   = "embed"
	StageIndex   = "index"
)

// DefaultEmbedBatchSize is used when no batch size is configured.
const DefaultEmbedBatchSize = 32

// ProgressFunc observes pipeline progress. For the embed stage, done and
// total count chunks; other stages report 0/1 then 1/1.
type ProgressFunc func(stage string, done, total int)

// DocumentExtractor extracts a single file. ExtractorRegistry implements it.
type DocumentExtractor interface {
	Extract(ctx context.Context, path string) (*domain.Document, error)
}

// TextChunker splits aggregated text into chunks.
type TextChunker interface {
	Split(documentID, text string) []domain.Chunk
}

// PipelineConfig controls the ingestion pipeline.
type PipelineConfig struct {
	// DownloadDir is the parent directory for per-run download folders.
	DownloadDir string

	// KeepDownloads keeps fetched files after the run.
	KeepDownloads bool

	// BatchSize is the number of chunks embedded per request.
	BatchSize int
}

// Pipeline turns a delivered document into an unpublished Snapshot:
// extract, fetch linked resources, extract them, concatenate, chunk,
// embed and build the indexes. It never touches the DocumentCache.
type Pipeline struct {
	extractor DocumentExtractor
	fetcher   driven.LinkFetcher
	chunker   TextChunker
	embedder  driven.EmbeddingService
	vectors   driven.VectorIndexBuilder
	keywords  driven.KeywordIndexBuilder
	config    PipelineConfig
}

// NewPipeline creates a pipeline. fetcher and keywords may be nil; without
// a fetcher links are recorded but not followed.
func NewPipeline(
	extractor DocumentExtractor,
	fetcher driven.LinkFetcher,
	chunker TextChunker,
	embedder driven.EmbeddingService,
	vectors driven.VectorIndexBuilder,
	keywords driven.KeywordIndexBuilder,
	config PipelineConfig,
) *Pipeline {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultEmbedBatchSize
	}
	return &Pipeline{
		extractor: extractor,
		fetcher:   fetcher,
		chunker:   chunker,
		embedder:  embedder,
		vectors:   vectors,
		keywords:  keywords,
		config:    config,
	}
}

// Run ingests the document at path, filling run's counters as it goes.
// The returned snapshot has no version until it is published.
//
// A document with no usable text returns *domain.EmptyContentError.
// Embedding or index failures return *domain.IndexBuildError. A cancelled
// ctx returns ctx.Err().
func (p *Pipeline) Run(
	ctx context.Context, path string, run *domain.IngestionRun, progress ProgressFunc,
) (*Snapshot, error) {
	if progress == nil {
		progress = func(string, int, int) {}
	}
	if p.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	logger.Section("Ingest")
	logger.Info("Document: %s", path)

	// 1. Extract the delivered document
	progress(StageExtract, 0, 1)
	doc, err := p.extractor.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	doc.ID = path
	p.recordPages(run, doc)
	progress(StageExtract, 1, 1)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 2-3. Fetch linked resources, one level deep, and extract them
	links := dedupeLinks(doc.Links)
	run.Links = len(links)
	if len(links) > 0 && p.fetcher != nil {
		progress(StageFetch, 0, 1)
		cleanup, err := p.fetchChildren(ctx, doc, links, run)
		if cleanup != nil {
			defer cleanup()
		}
		if err != nil {
			return nil, err
		}
		progress(StageFetch, 1, 1)
	}

	// 4. Concatenate
	text := doc.AggregatedText()
	if text == "" {
		return nil, &domain.EmptyContentError{DocumentID: path}
	}

	// 5. Chunk
	progress(StageChunk, 0, 1)
	chunks := p.chunker.Split(path, text)
	run.Chunks = len(chunks)
	if len(chunks) == 0 {
		return nil, &domain.EmptyContentError{DocumentID: path}
	}
	progress(StageChunk, 1, 1)
	logger.Debug("Chunks: %d", len(chunks))

	// 6. Embed
	vectors, err := p.embed(ctx, path, chunks, progress)
	if err != nil {
		return nil, err
	}

	// 7. Build indexes
	progress(StageIndex, 0, 1)
	vectorIndex, err := p.vectors.Build(vectors)
	if err != nil {
		return nil, &domain.IndexBuildError{DocumentID: path, Stage: StageIndex, Err: err}
	}

	var keywordIndex driven.KeywordIndex
	if p.keywords != nil {
		keywordIndex, err = p.keywords.Build(ctx, chunks)
		if err != nil {
			// The keyword index only backs lexical search; answers do not need it.
			logger.Warn("keyword index for %s: %v", path, err)
			keywordIndex = nil
		}
	}
	progress(StageIndex, 1, 1)

	return &Snapshot{
		DocumentID:     path,
		Text:           text,
		Chunks:         chunks,
		Vectors:        vectorIndex,
		Keywords:       keywordIndex,
		EmbeddingModel: p.embedder.ModelName(),
		Sources:        sources(doc),
	}, nil
}

// fetchChildren downloads the document's links into a per-run directory and
// extracts each saved file as a child. Links found in children are ignored.
func (p *Pipeline) fetchChildren(
	ctx context.Context, doc *domain.Document, links []string, run *domain.IngestionRun,
) (func(), error) {
	dir, err := p.runDir(run.ID)
	if err != nil {
		logger.Warn("download directory: %v", err)
		run.FetchFailures = len(links)
		return nil, nil
	}

	var cleanup func()
	if !p.config.KeepDownloads {
		cleanup = func() {
			if err := os.RemoveAll(dir); err != nil {
				logger.Warn("remove %s: %v", dir, err)
			}
		}
	}

	report, err := p.fetcher.Fetch(ctx, links, dir)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return cleanup, ctxErr
		}
		// A batch-level failure leaves the document without children.
		logger.Warn("fetch links of %s: %v", doc.ID, err)
		run.FetchFailures = len(links)
		return cleanup, nil
	}

	for _, f := range report.Failures {
		logger.Warn("%v", f)
	}
	run.FetchFailures = len(report.Failures)

	for _, saved := range report.Saved {
		if err := ctx.Err(); err != nil {
			return cleanup, err
		}

		child, err := p.extractor.Extract(ctx, saved)
		if err != nil {
			logger.Warn("extract linked resource %s: %v", saved, err)
			run.FetchFailures++
			continue
		}
		if url, ok := report.SavedURLs[saved]; ok {
			child.ID = url
		}
		child.Links = nil
		child.Children = nil
		p.recordPages(run, child)

		doc.Children = append(doc.Children, *child)
		run.Fetched++
	}

	return cleanup, nil
}

// embed computes one vector per chunk in batches.
func (p *Pipeline) embed(
	ctx context.Context, docID string, chunks []domain.Chunk, progress ProgressFunc,
) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	progress(StageEmbed, 0, len(chunks))

	for start := 0; start < len(chunks); start += p.config.BatchSize {
		end := min(start+p.config.BatchSize, len(chunks))

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		batch, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr == context.Canceled {
				return nil, ctxErr
			}
			return nil, &domain.IndexBuildError{
				DocumentID: docID,
				Stage:      StageEmbed,
				Err:        domain.NewModelInvocationError(ctx, p.embedder.ModelName(), "embed", err),
			}
		}
		if len(batch) != len(texts) {
			return nil, &domain.IndexBuildError{
				DocumentID: docID,
				Stage:      StageEmbed,
				Err:        fmt.Errorf("embedding returned %d vectors for %d chunks", len(batch), len(texts)),
			}
		}

		vectors = append(vectors, batch...)
		progress(StageEmbed, len(vectors), len(chunks))
	}

	return vectors, nil
}

func (p *Pipeline) recordPages(run *domain.IngestionRun, doc *domain.Document) {
	run.Pages += len(doc.Pages)
	for _, f := range doc.PageFailures() {
		logger.Warn("%v", f)
		run.PageFailures++
	}
}

func (p *Pipeline) runDir(runID string) (string, error) {
	base := p.config.DownloadDir
	if base == "" {
		base = os.TempDir()
	}
	if runID == "" {
		return os.MkdirTemp(base, "run-")
	}
	dir := filepath.Join(base, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}
	return dir, nil
}

// dedupeLinks removes repeated links, keeping first-seen order.
func dedupeLinks(links []string) []string {
	seen := make(map[string]struct{}, len(links))
	out := make([]string, 0, len(links))
	for _, l := range links {
		if _, ok := seen[l]; ok || l == "" {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

func sources(doc *domain.Document) []string {
	out := []string{doc.ID}
	for i := range doc.Children {
		out = append(out, doc.Children[i].ID)
	}
	return out
}
