package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure Extractor implements the interface.
var _ driven.ContentExtractor = (*Extractor)(nil)

// ErrPDFToolNotFound is returned when the poppler tools are not installed.
var ErrPDFToolNotFound = errors.New("pdftotext not found: install poppler-utils")

// Default rasterisation settings for OCR.
const (
	DefaultDPI         = 300
	DefaultPageSegMode = "6"
)

var (
	pagesPattern = regexp.MustCompile(`(?m)^Pages:\s+(\d+)`)
	hrefPattern  = regexp.MustCompile(`href="([^"]+)"`)
)

// CommandRunner executes external commands and returns their stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner runs commands with os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithOCR enables or disables the tesseract fallback for empty pages.
func WithOCR(enabled bool) Option {
	return func(e *Extractor) { e.ocr = enabled }
}

// WithDPI sets the rasterisation resolution used before OCR.
func WithDPI(dpi int) Option {
	return func(e *Extractor) {
		if dpi > 0 {
			e.dpi = dpi
		}
	}
}

// WithLanguage sets the tesseract language, e.g. "eng" or "deu+eng".
func WithLanguage(lang string) Option {
	return func(e *Extractor) { e.language = lang }
}

// Extractor extracts text, tables and links from PDF files page by page.
type Extractor struct {
	runner   CommandRunner
	ocr      bool
	dpi      int
	language string
}

// New creates a PDF extractor that shells out to poppler and tesseract.
func New(opts ...Option) *Extractor {
	return NewWithRunner(execRunner{}, opts...)
}

// NewWithRunner creates a PDF extractor with a custom command runner.
func NewWithRunner(runner CommandRunner, opts ...Option) *Extractor {
	e := &Extractor{runner: runner, ocr: true, dpi: DefaultDPI}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{"application/pdf"}
}

// Priority returns the selection priority.
func (e *Extractor) Priority() int {
	return 90
}

// Extract reads every page of the PDF at path. Page failures are recorded
// in the returned Document and do not stop extraction.
func (e *Extractor) Extract(ctx context.Context, path string) (*domain.Document, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &domain.ExtractionError{Path: path, Err: domain.ErrDocumentMissing}
		}
		return nil, &domain.ExtractionError{Path: path, Err: err}
	}

	pageCount, err := e.pageCount(ctx, path)
	if err != nil {
		return nil, &domain.ExtractionError{Path: path, Err: err}
	}

	doc := &domain.Document{
		ID:       path,
		Path:     path,
		MIMEType: "application/pdf",
		Pages:    make([]domain.PageResult, 0, pageCount),
	}

	texts := make([]string, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result := domain.PageResult{Number: i}
		text, method, err := e.extractPage(ctx, path, i)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.Method = domain.ExtractionNone
			result.Err = &domain.ExtractionError{Path: path, Page: i, Err: err}
			logger.Warn("pdf: %v", result.Err)
			doc.Pages = append(doc.Pages, result)
			continue
		}
		result.Method = method

		if rows := DetectTables(text); len(rows) > 0 {
			result.TableRows = len(rows)
			text += "\n\n" + strings.Join(rows, "\n")
		}
		if text != "" {
			texts = append(texts, text)
		}
		doc.Pages = append(doc.Pages, result)
	}
	doc.Text = strings.Join(texts, "\n\n")

	links, err := e.links(ctx, path)
	if err != nil {
		logger.Warn("pdf: link annotations of %s unavailable: %v", path, err)
	}
	doc.Links = links
	doc.Title = extractTitle(doc.Text, path)

	logger.Debug("pdf: %s: %d pages, %d links, %d failed pages",
		path, pageCount, len(links), len(doc.PageFailures()))
	return doc, nil
}

// pageCount reads the page count from pdfinfo.
func (e *Extractor) pageCount(ctx context.Context, path string) (int, error) {
	out, err := e.runner.Run(ctx, "pdfinfo", path)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return 0, ErrPDFToolNotFound
		}
		return 0, fmt.Errorf("read page count: %w", err)
	}
	m := pagesPattern.FindSubmatch(out)
	if m == nil {
		return 0, errors.New("read page count: no Pages field in pdfinfo output")
	}
	n, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return 0, fmt.Errorf("read page count: %w", err)
	}
	return n, nil
}

// extractPage returns the text of page i, falling back to OCR when the
// page has no text layer.
func (e *Extractor) extractPage(ctx context.Context, path string, page int) (string, domain.ExtractionMethod, error) {
	p := strconv.Itoa(page)
	out, err := e.runner.Run(ctx, "pdftotext", "-layout", "-f", p, "-l", p, path, "-")
	if err != nil {
		return "", domain.ExtractionNone, err
	}
	if text := cleanText(string(out)); text != "" {
		return text, domain.ExtractionText, nil
	}
	if !e.ocr {
		return "", domain.ExtractionNone, nil
	}

	text, err := e.ocrPage(ctx, path, page)
	if err != nil {
		return "", domain.ExtractionNone, fmt.Errorf("ocr: %w", err)
	}
	if text == "" {
		return "", domain.ExtractionNone, nil
	}
	return text, domain.ExtractionOCR, nil
}

// ocrPage rasterises one page to PNG and runs tesseract over it.
func (e *Extractor) ocrPage(ctx context.Context, path string, page int) (string, error) {
	dir, err := os.MkdirTemp("", "sercha-ocr-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	p := strconv.Itoa(page)
	prefix := filepath.Join(dir, "page")
	if _, err := e.runner.Run(ctx, "pdftoppm",
		"-r", strconv.Itoa(e.dpi), "-png", "-f", p, "-l", p, "-singlefile", path, prefix); err != nil {
		return "", fmt.Errorf("rasterise: %w", err)
	}

	args := []string{prefix + ".png", "stdout", "--psm", DefaultPageSegMode}
	if e.language != "" {
		args = append(args, "-l", e.language)
	}
	out, err := e.runner.Run(ctx, "tesseract", args...)
	if err != nil {
		return "", err
	}
	return cleanText(string(out)), nil
}

// links collects the http(s) URI annotations of the whole document.
func (e *Extractor) links(ctx context.Context, path string) ([]string, error) {
	out, err := e.runner.Run(ctx, "pdftohtml", "-xml", "-i", "-stdout", path)
	if err != nil {
		return nil, err
	}
	return parseLinks(out), nil
}

// parseLinks extracts unique absolute http(s) hrefs in document order.
func parseLinks(xml []byte) []string {
	var links []string
	seen := make(map[string]bool)
	for _, m := range hrefPattern.FindAllSubmatch(xml, -1) {
		link := strings.TrimSpace(html.UnescapeString(string(m[1])))
		lower := strings.ToLower(link)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			continue
		}
		if seen[link] {
			continue
		}
		seen[link] = true
		links = append(links, link)
	}
	return links
}

// cleanText trims trailing spaces from each line and drops form feeds.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\f", "")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

// extractTitle uses the first short non-empty line, else the filename.
func extractTitle(content, path string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && len(line) < 200 {
			return line
		}
	}

	filename := filepath.Base(path)
	filename = strings.TrimSuffix(filename, filepath.Ext(filename))
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return filename
}

// CheckAvailable reports whether the poppler tools are on PATH.
func CheckAvailable() error {
	for _, tool := range []string{"pdfinfo", "pdftotext", "pdftohtml"} {
		if _, err := exec.LookPath(tool); err != nil {
			return ErrPDFToolNotFound
		}
	}
	return nil
}

// OCRAvailable reports whether tesseract and pdftoppm are on PATH.
func OCRAvailable() bool {
	for _, tool := range []string{"tesseract", "pdftoppm"} {
		if _, err := exec.LookPath(tool); err != nil {
			return false
		}
	}
	return true
}

// InstallInstructions returns platform hints for installing the tools.
func InstallInstructions() string {
	return `PDF extraction requires pdftotext, pdfinfo and pdftohtml (poppler).
OCR of scanned pages additionally requires tesseract.

  macOS:          brew install poppler tesseract
  Debian/Ubuntu:  apt install poppler-utils tesseract-ocr
  Fedora:         dnf install poppler-utils tesseract`
}
