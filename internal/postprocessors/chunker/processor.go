// Package chunker splits aggregated document text into overlapping windows.
package chunker

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1300

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 140

// DefaultMinLength is the default minimum length of a kept chunk.
const DefaultMinLength = 50

// DefaultSeparators are tried in order when choosing where a window ends.
// The pipe keeps table rows emitted by the extractors intact.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", "|"}

// chunkNamespace scopes deterministic chunk IDs.
var chunkNamespace = uuid.MustParse("6f1c3f5e-2b7a-4f0e-9d43-0d5d7c1f8a21")

// Processor splits text into chunks of at most chunkSize characters whose
// start offsets advance by exactly chunkSize-overlap.
type Processor struct {
	chunkSize  int
	overlap    int
	minLength  int
	separators []string
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// WithMinLength drops chunks shorter than length after trimming.
func WithMinLength(length int) Option {
	return func(p *Processor) {
		if length >= 0 {
			p.minLength = length
		}
	}
}

// WithSeparators replaces the boundary separators. No separators means
// plain fixed-width windows.
func WithSeparators(separators ...string) Option {
	return func(p *Processor) {
		p.separators = nil
		for _, sep := range separators {
			if sep != "" {
				p.separators = append(p.separators, sep)
			}
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		minLength:  DefaultMinLength,
		separators: DefaultSeparators,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// ChunkSize returns the window size in characters.
func (p *Processor) ChunkSize() int { return p.chunkSize }

// Overlap returns the overlap in characters.
func (p *Processor) Overlap() int { return p.overlap }

// MinLength returns the minimum kept chunk length.
func (p *Processor) MinLength() int { return p.minLength }

// Split splits text into chunks belonging to documentID.
//
// Window i starts at i*(size-overlap). A window that does not reach the end
// of the text ends just after the highest-priority separator found in its
// trailing overlap region, or at start+size if there is none; this never
// leaves a gap before the next window. Chunk content is the trimmed window,
// and chunks shorter than the minimum length are dropped. Offsets and
// lengths are in runes. The result depends only on the inputs.
func (p *Processor) Split(documentID, text string) []domain.Chunk {
	if strings.TrimSpace(text) == "" {
		// Empty content produces no chunks
		return nil
	}

	runes := []rune(text)
	contentLen := len(runes)
	step := p.chunkSize - p.overlap

	// Estimate number of chunks
	chunks := make([]domain.Chunk, 0, contentLen/step+1)

	for start := 0; start < contentLen; start += step {
		end := start + p.chunkSize
		final := end >= contentLen
		if final {
			end = contentLen
		} else {
			end = p.boundary(runes, start+step, end)
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" && utf8.RuneCountInString(content) >= p.minLength {
			position := len(chunks)
			chunks = append(chunks, domain.Chunk{
				ID:         chunkID(documentID, position),
				DocumentID: documentID,
				Position:   position,
				Start:      start,
				End:        end,
				Content:    content,
			})
		}

		if final {
			break
		}
	}

	return chunks
}

// boundary returns the window end in [lo, hi], preferring the position just
// after the latest occurrence of the highest-priority separator.
func (p *Processor) boundary(runes []rune, lo, hi int) int {
	for _, sep := range p.separators {
		sepRunes := []rune(sep)
		for i := hi - len(sepRunes); i >= 0 && i+len(sepRunes) >= lo; i-- {
			if hasPrefixAt(runes, sepRunes, i) {
				return i + len(sepRunes)
			}
		}
	}
	return hi
}

func hasPrefixAt(runes, prefix []rune, at int) bool {
	if at+len(prefix) > len(runes) {
		return false
	}
	for j, r := range prefix {
		if runes[at+j] != r {
			return false
		}
	}
	return true
}

// chunkID derives a stable ID so re-ingesting a document yields the same chunks.
func chunkID(documentID string, position int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(documentID+"#"+strconv.Itoa(position))).String()
}
