package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNew(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		p := New()
		if p.chunkSize != DefaultChunkSize {
			t.Errorf("expected chunkSize %d, got %d", DefaultChunkSize, p.chunkSize)
		}
		if p.overlap != DefaultChunkOverlap {
			t.Errorf("expected overlap %d, got %d", DefaultChunkOverlap, p.overlap)
		}
		if p.minLength != DefaultMinLength {
			t.Errorf("expected minLength %d, got %d", DefaultMinLength, p.minLength)
		}
	})

	t.Run("custom values", func(t *testing.T) {
		p := New(WithChunkSize(500), WithOverlap(100), WithMinLength(10))
		if p.ChunkSize() != 500 || p.Overlap() != 100 || p.MinLength() != 10 {
			t.Errorf("unexpected settings %d/%d/%d", p.ChunkSize(), p.Overlap(), p.MinLength())
		}
	})

	t.Run("overlap exceeds chunk size", func(t *testing.T) {
		p := New(WithChunkSize(100), WithOverlap(150))
		if p.overlap >= p.chunkSize {
			t.Error("overlap should be reduced when it exceeds chunk size")
		}
	})

	t.Run("invalid values ignored", func(t *testing.T) {
		p := New(WithChunkSize(0), WithOverlap(-1), WithMinLength(-5))
		if p.chunkSize != DefaultChunkSize {
			t.Errorf("expected default chunkSize, got %d", p.chunkSize)
		}
		if p.overlap != DefaultChunkOverlap {
			t.Errorf("expected default overlap, got %d", p.overlap)
		}
		if p.minLength != DefaultMinLength {
			t.Errorf("expected default minLength, got %d", p.minLength)
		}
	})
}

func TestProcessor_Name(t *testing.T) {
	p := New()
	if p.Name() != "chunker" {
		t.Errorf("expected name 'chunker', got '%s'", p.Name())
	}
}

func TestSplit_Empty(t *testing.T) {
	p := New()
	for _, text := range []string{"", "   ", "\n\n\t"} {
		if chunks := p.Split("doc", text); len(chunks) != 0 {
			t.Errorf("expected no chunks for %q, got %d", text, len(chunks))
		}
	}
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	p := New(WithChunkSize(100), WithOverlap(10), WithMinLength(0))
	chunks := p.Split("doc", "  hello world  ")

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != "hello world" {
		t.Errorf("expected trimmed content, got %q", chunks[0].Content)
	}
	if chunks[0].DocumentID != "doc" || chunks[0].Position != 0 {
		t.Errorf("unexpected chunk metadata: %+v", chunks[0])
	}
}

func TestSplit_FixedWindowsWithoutSeparators(t *testing.T) {
	p := New(WithChunkSize(10), WithOverlap(3), WithMinLength(0), WithSeparators())
	text := strings.Repeat("abcdefghij", 5) // 50 runes

	chunks := p.Split("doc", text)

	// Starts at 0, 7, 14, ... until a window reaches the end.
	for i, c := range chunks {
		if c.Start != i*7 {
			t.Errorf("chunk %d: expected start %d, got %d", i, i*7, c.Start)
		}
		if n := utf8.RuneCountInString(c.Content); n > 10 {
			t.Errorf("chunk %d: length %d exceeds chunk size", i, n)
		}
		if c.Position != i {
			t.Errorf("chunk %d: expected position %d, got %d", i, i, c.Position)
		}
	}
	last := chunks[len(chunks)-1]
	if last.End != 50 {
		t.Errorf("expected last chunk to reach end of text, got end %d", last.End)
	}
	if len(chunks) != 7 {
		t.Errorf("expected 7 chunks, got %d", len(chunks))
	}
}

func TestSplit_CoversWholeText(t *testing.T) {
	p := New(WithChunkSize(40), WithOverlap(8), WithMinLength(0))
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20)

	chunks := p.Split("doc", text)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		if chunks[i].Start-chunks[i-1].Start != 32 {
			t.Errorf("chunk %d: start offsets must advance by size-overlap", i)
		}
		if chunks[i-1].End < chunks[i].Start {
			t.Errorf("gap between chunk %d (end %d) and chunk %d (start %d)",
				i-1, chunks[i-1].End, i, chunks[i].Start)
		}
	}
}

func TestSplit_PrefersSeparators(t *testing.T) {
	p := New(WithChunkSize(30), WithOverlap(10), WithMinLength(0))
	text := "first paragraph is here\n\nsecond paragraph follows and continues for a while"

	chunks := p.Split("doc", text)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	if chunks[0].Content != "first paragraph is here" {
		t.Errorf("expected first chunk to end at paragraph break, got %q", chunks[0].Content)
	}
	if chunks[0].End != 25 {
		t.Errorf("expected end just after separator, got %d", chunks[0].End)
	}
}

func TestSplit_DropsShortChunks(t *testing.T) {
	p := New(WithChunkSize(20), WithOverlap(0), WithMinLength(15), WithSeparators())
	text := strings.Repeat("x", 20) + "tail"

	chunks := p.Split("doc", text)
	if len(chunks) != 1 {
		t.Fatalf("expected short tail to be dropped, got %d chunks", len(chunks))
	}
	if chunks[0].Content != strings.Repeat("x", 20) {
		t.Errorf("unexpected content %q", chunks[0].Content)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	p := New(WithChunkSize(50), WithOverlap(10), WithMinLength(5))
	text := strings.Repeat("Lorem ipsum dolor sit amet.\n", 30)

	a := p.Split("doc", text)
	b := p.Split("doc", text)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}

	other := p.Split("other", text)
	if other[0].ID == a[0].ID {
		t.Error("chunk IDs should be scoped to the document")
	}
}

func TestSplit_Unicode(t *testing.T) {
	p := New(WithChunkSize(5), WithOverlap(1), WithMinLength(0), WithSeparators())
	text := "日本語のテキストです"

	chunks := p.Split("doc", text)
	for _, c := range chunks {
		if !utf8.ValidString(c.Content) {
			t.Errorf("chunk split a multi-byte rune: %q", c.Content)
		}
		if n := utf8.RuneCountInString(c.Content); n > 5 {
			t.Errorf("chunk exceeds size in runes: %d", n)
		}
	}
}
