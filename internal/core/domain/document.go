package domain

import "strings"

// ExtractionMethod records how a page's text was obtained.
type ExtractionMethod string

// Extraction methods.
const (
	// ExtractionText means the embedded text layer was used.
	ExtractionText ExtractionMethod = "text"

	// ExtractionOCR means the page was rasterised and recognised.
	ExtractionOCR ExtractionMethod = "ocr"

	// ExtractionNone means no text could be obtained for the page.
	ExtractionNone ExtractionMethod = "none"
)

// PageResult is the outcome of extracting a single page or unit.
type PageResult struct {
	// Number is the 1-based page number.
	Number int

	// Method is how the text was obtained.
	Method ExtractionMethod

	// TableRows is the number of table rows appended as delimited text.
	TableRows int

	// Err is set when the page failed; extraction of other pages continues.
	Err *ExtractionError
}

// Document is a delivered or linked document after extraction.
// It is owned by the ingestion pipeline and discarded once its text
// has been folded into a published snapshot.
type Document struct {
	// ID identifies the document; it is the source path or URI.
	ID string

	// Path is the local file the text was extracted from.
	Path string

	// MIMEType is the sniffed content type.
	MIMEType string

	// Title is a best-effort title taken from the content or filename.
	Title string

	// Text is the aggregated text of all pages.
	Text string

	// Links are the outbound URIs discovered in the document, in discovery order.
	Links []string

	// Pages holds per-page extraction status.
	Pages []PageResult

	// Children are documents fetched from Links. Children never have children.
	Children []Document
}

// IsEmpty reports whether the document produced no text.
func (d *Document) IsEmpty() bool {
	return strings.TrimSpace(d.Text) == ""
}

// PageFailures returns the errors of pages that failed to extract.
func (d *Document) PageFailures() []*ExtractionError {
	var failures []*ExtractionError
	for i := range d.Pages {
		if d.Pages[i].Err != nil {
			failures = append(failures, d.Pages[i].Err)
		}
	}
	return failures
}

// AggregatedText joins the document text with the text of its children,
// in order, separated by blank lines. Empty texts are skipped.
func (d *Document) AggregatedText() string {
	parts := make([]string, 0, len(d.Children)+1)
	if !d.IsEmpty() {
		parts = append(parts, strings.TrimSpace(d.Text))
	}
	for i := range d.Children {
		if !d.Children[i].IsEmpty() {
			parts = append(parts, strings.TrimSpace(d.Children[i].Text))
		}
	}
	return strings.Join(parts, "\n\n")
}

// Chunk is a contiguous slice of a document's aggregated text.
// Chunks are recomputed on every ingestion and never mutated.
type Chunk struct {
	// ID is derived from the document ID and position, so re-chunking
	// the same text yields the same IDs.
	ID string

	// DocumentID is the parent document.
	DocumentID string

	// Position is the chunk's order within the document (0-based).
	Position int

	// Start and End are rune offsets of the window in the aggregated text.
	Start int
	End   int

	// Content is the trimmed window text.
	Content string
}

// FetchReport is the result of downloading a batch of linked resources.
type FetchReport struct {
	// Saved are the local paths written, in link order.
	Saved []string

	// SavedURLs maps each saved path back to its source URL.
	SavedURLs map[string]string

	// Failures are per-link errors; they never abort the batch.
	Failures []*FetchError
}
