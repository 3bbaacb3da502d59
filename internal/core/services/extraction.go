package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// sniffLen is how many leading bytes are read to detect a file's type.
const sniffLen = 512

// extMIMETypes overrides Go's extension table for the formats we extract.
var extMIMETypes = map[string]string{
	".pdf":  "application/pdf",
	".htm":  "text/html",
	".html": "text/html",
	".txt":  "text/plain",
	".md":   "text/plain",
	".csv":  "text/plain",
}

// ExtractorRegistry selects a content extractor by the detected MIME type
// of a file. When several extractors claim a type, the highest priority wins.
type ExtractorRegistry struct {
	mu         sync.RWMutex
	extractors map[string][]driven.ContentExtractor
}

// NewExtractorRegistry creates a registry holding the given extractors.
func NewExtractorRegistry(extractors ...driven.ContentExtractor) *ExtractorRegistry {
	r := &ExtractorRegistry{extractors: make(map[string][]driven.ContentExtractor)}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// Register adds an extractor for each MIME type it supports.
func (r *ExtractorRegistry) Register(e driven.ContentExtractor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, mt := range e.SupportedMIMETypes() {
		list := append(r.extractors[mt], e)
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Priority() > list[j].Priority()
		})
		r.extractors[mt] = list
	}
}

// SupportedMIMETypes returns all registered MIME types, sorted.
func (r *ExtractorRegistry) SupportedMIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.extractors))
	for mt := range r.extractors {
		types = append(types, mt)
	}
	sort.Strings(types)
	return types
}

// Extract detects the type of the file at path and runs the best extractor.
// Unknown types return domain.ErrUnsupportedType wrapped in an ExtractionError.
func (r *ExtractorRegistry) Extract(ctx context.Context, path string) (*domain.Document, error) {
	mimeType, err := DetectMIMEType(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &domain.ExtractionError{Path: path, Err: domain.ErrDocumentMissing}
		}
		return nil, &domain.ExtractionError{Path: path, Err: err}
	}

	r.mu.RLock()
	candidates := r.extractors[mimeType]
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, &domain.ExtractionError{
			Path: path,
			Err:  fmt.Errorf("%w: %s", domain.ErrUnsupportedType, mimeType),
		}
	}

	doc, err := candidates[0].Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	if doc.ID == "" {
		doc.ID = path
	}
	if doc.Path == "" {
		doc.Path = path
	}
	if doc.MIMEType == "" {
		doc.MIMEType = mimeType
	}
	return doc, nil
}

// DetectMIMEType returns the MIME type of the file at path. Content is
// sniffed first because fetched resources are saved under generated names
// whose extension may not match what the server returned; the extension is
// used only when sniffing is inconclusive.
func DetectMIMEType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read header: %w", err)
	}
	head = head[:n]

	if bytes.HasPrefix(bytes.TrimLeft(head, "\x00\t\r\n "), []byte("%PDF-")) {
		return "application/pdf", nil
	}

	sniffed := stripParams(http.DetectContentType(head))
	switch sniffed {
	case "text/html", "application/pdf":
		return sniffed, nil
	case "text/plain":
		// Plain text may still be a more specific text type by extension.
		if byExt := mimeTypeByExtension(path); strings.HasPrefix(byExt, "text/") {
			return byExt, nil
		}
		return sniffed, nil
	}

	if byExt := mimeTypeByExtension(path); byExt != "" && sniffed == "application/octet-stream" {
		return byExt, nil
	}
	return sniffed, nil
}

func mimeTypeByExtension(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return ""
	}
	if t, ok := extMIMETypes[ext]; ok {
		return t
	}
	return stripParams(mime.TypeByExtension(ext))
}

// stripParams drops charset and other parameters.
func stripParams(mimeType string) string {
	if idx := strings.Index(mimeType, ";"); idx != -1 {
		return strings.TrimSpace(mimeType[:idx])
	}
	return mimeType
}
