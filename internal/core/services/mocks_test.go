package services

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// stubEmbedder embeds text as letter frequencies over a-d, so texts that
// share letters land near each other.
type stubEmbedder struct {
	mu      sync.Mutex
	model   string
	err     error
	calls   int
	batches []int
	queries []string
}

func (e *stubEmbedder) vector(text string) []float32 {
	v := make([]float32, 4)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'd' {
			v[r-'a']++
		}
	}
	return v
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.queries = append(e.queries, text)
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.batches = append(e.batches, len(texts))
	if e.err != nil {
		return nil, e.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *stubEmbedder) Dimensions() int { return 4 }

func (e *stubEmbedder) ModelName() string {
	if e.model == "" {
		return "stub-embed"
	}
	return e.model
}

func (e *stubEmbedder) Ping(context.Context) error { return nil }
func (e *stubEmbedder) Close() error               { return nil }

// bruteIndex is an exact L2 index used to exercise the services.
type bruteIndex struct {
	vectors [][]float32
}

type bruteBuilder struct {
	err error
}

func (b bruteBuilder) Build(vectors [][]float32) (driven.VectorIndex, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &bruteIndex{vectors: vectors}, nil
}

func (x *bruteIndex) Search(query []float32, k int) ([]driven.VectorHit, error) {
	hits := make([]driven.VectorHit, len(x.vectors))
	for i, v := range x.vectors {
		var sum float64
		for j := range v {
			d := float64(v[j] - query[j])
			sum += d * d
		}
		hits[i] = driven.VectorHit{Position: i, Distance: math.Sqrt(sum)}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Distance < hits[b].Distance })
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (x *bruteIndex) Len() int { return len(x.vectors) }

func (x *bruteIndex) Dimensions() int {
	if len(x.vectors) == 0 {
		return 0
	}
	return len(x.vectors[0])
}

// stubKeywords matches chunks containing the query as a substring.
type stubKeywords struct {
	chunks []domain.Chunk
	closed atomic.Bool
}

type stubKeywordBuilder struct {
	err error
}

func (b stubKeywordBuilder) Build(_ context.Context, chunks []domain.Chunk) (driven.KeywordIndex, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &stubKeywords{chunks: chunks}, nil
}

func (k *stubKeywords) Search(_ context.Context, query string, limit int) ([]driven.KeywordHit, error) {
	var hits []driven.KeywordHit
	for _, c := range k.chunks {
		if strings.Contains(c.Content, query) && len(hits) < limit {
			hits = append(hits, driven.KeywordHit{Position: c.Position, Score: 1})
		}
	}
	return hits, nil
}

func (k *stubKeywords) Close() error {
	k.closed.Store(true)
	return nil
}

// stubLLM records prompts and returns a canned response.
type stubLLM struct {
	mu         sync.Mutex
	response   string
	err        error
	rewrite    string
	rewriteErr error
	prompts    []string
	summaries  []string
	block      bool
}

func (l *stubLLM) Generate(ctx context.Context, prompt string, _ driven.GenerateOptions) (string, error) {
	l.mu.Lock()
	l.prompts = append(l.prompts, prompt)
	block := l.block
	l.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if l.err != nil {
		return "", l.err
	}
	return l.response, nil
}

func (l *stubLLM) Chat(ctx context.Context, messages []driven.ChatMessage, _ driven.ChatOptions) (string, error) {
	return l.Generate(ctx, messages[len(messages)-1].Content, driven.GenerateOptions{})
}

func (l *stubLLM) RewriteQuery(_ context.Context, _ string) (string, error) {
	return l.rewrite, l.rewriteErr
}

func (l *stubLLM) Summarise(_ context.Context, content string, _ int) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", l.err
	}
	l.summaries = append(l.summaries, content)
	return "summary of " + strings.Fields(content)[0], nil
}

func (l *stubLLM) ModelName() string          { return "stub-llm" }
func (l *stubLLM) Ping(context.Context) error { return nil }
func (l *stubLLM) Close() error               { return nil }

func (l *stubLLM) lastPrompt() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.prompts) == 0 {
		return ""
	}
	return l.prompts[len(l.prompts)-1]
}

// stubExtractor returns canned documents by path, falling back to the
// file's content as text.
type stubExtractor struct {
	mu    sync.Mutex
	docs  map[string]*domain.Document
	errs  map[string]error
	calls []string

	// gate, when set, blocks every extraction until it is closed or ctx ends.
	gate chan struct{}
}

func (x *stubExtractor) Extract(ctx context.Context, path string) (*domain.Document, error) {
	x.mu.Lock()
	x.calls = append(x.calls, path)
	gate := x.gate
	x.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := x.errs[path]; err != nil {
		return nil, err
	}
	if doc, ok := x.docs[path]; ok {
		cp := *doc
		cp.Links = append([]string(nil), doc.Links...)
		return &cp, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ExtractionError{Path: path, Err: domain.ErrDocumentMissing}
	}
	return &domain.Document{ID: path, Path: path, Text: string(data),
		Pages: []domain.PageResult{{Number: 1, Method: domain.ExtractionText}}}, nil
}

func (x *stubExtractor) extracted() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]string(nil), x.calls...)
}

// stubFetcher writes each URL's body into destDir.
type stubFetcher struct {
	bodies map[string]string
	err    error
	dirs   []string
}

func (f *stubFetcher) Fetch(_ context.Context, urls []string, destDir string) (*domain.FetchReport, error) {
	f.dirs = append(f.dirs, destDir)
	if f.err != nil {
		return nil, f.err
	}
	report := &domain.FetchReport{SavedURLs: map[string]string{}}
	for i, u := range urls {
		body, ok := f.bodies[u]
		if !ok {
			report.Failures = append(report.Failures, &domain.FetchError{URL: u, StatusCode: 404})
			continue
		}
		p := filepath.Join(destDir, string(rune('a'+i))+".txt")
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			return nil, err
		}
		report.Saved = append(report.Saved, p)
		report.SavedURLs[p] = u
	}
	return report, nil
}

// wordChunker splits text into one chunk per paragraph.
type wordChunker struct{}

func (wordChunker) Split(documentID, text string) []domain.Chunk {
	var chunks []domain.Chunk
	for _, part := range strings.Split(text, "\n\n") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			ID:         documentID + "#" + string(rune('0'+len(chunks))),
			DocumentID: documentID,
			Position:   len(chunks),
			Content:    part,
		})
	}
	return chunks
}

// stubSource is a NotificationSource whose value tests set directly.
type stubSource struct {
	mu      sync.Mutex
	value   string
	changes chan struct{}
}

func newStubSource() *stubSource {
	return &stubSource{changes: make(chan struct{}, 1)}
}

func (s *stubSource) Read(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value == "" {
		return "", domain.ErrNotFound
	}
	return s.value, nil
}

func (s *stubSource) Changes() <-chan struct{} { return s.changes }
func (s *stubSource) Close() error             { return nil }

func (s *stubSource) set(value string) {
	s.mu.Lock()
	s.value = value
	s.mu.Unlock()
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// memRuns is an in-memory IngestionRunStore.
type memRuns struct {
	mu   sync.Mutex
	runs []domain.IngestionRun
}

func (m *memRuns) Save(_ context.Context, run *domain.IngestionRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = *run
			return nil
		}
	}
	m.runs = append(m.runs, *run)
	return nil
}

func (m *memRuns) Get(_ context.Context, id string) (*domain.IngestionRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID == id {
			r := m.runs[i]
			return &r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memRuns) List(_ context.Context, limit int) ([]domain.IngestionRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.IngestionRun
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.runs[i])
	}
	return out, nil
}

func (m *memRuns) Prune(context.Context, int) error { return nil }
func (m *memRuns) Close() error                     { return nil }

func (m *memRuns) outcomes() []domain.IngestionOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.IngestionOutcome, len(m.runs))
	for i, r := range m.runs {
		out[i] = r.Outcome
	}
	return out
}

type stubPromptStore map[string]string

func (s stubPromptStore) Load(name string) (string, error) {
	if p, ok := s[name]; ok {
		return p, nil
	}
	return "", errors.New("no prompt " + name)
}

func (s stubPromptStore) Reload() {}

// writeFile creates a file under t.TempDir and returns its path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// publishChunks publishes a snapshot built from contents with the stub embedder.
func publishChunks(t *testing.T, cache *DocumentCache, contents ...string) *Snapshot {
	t.Helper()
	emb := &stubEmbedder{}
	chunks := make([]domain.Chunk, len(contents))
	vectors := make([][]float32, len(contents))
	for i, c := range contents {
		chunks[i] = domain.Chunk{ID: c, DocumentID: "/doc.pdf", Position: i, Content: c}
		vectors[i] = emb.vector(c)
	}
	idx, err := bruteBuilder{}.Build(vectors)
	require.NoError(t, err)
	kw, err := stubKeywordBuilder{}.Build(context.Background(), chunks)
	require.NoError(t, err)

	snap := &Snapshot{
		DocumentID:     "/doc.pdf",
		Chunks:         chunks,
		Vectors:        idx,
		Keywords:       kw,
		EmbeddingModel: emb.ModelName(),
	}
	cache.Publish(snap)
	return snap
}
