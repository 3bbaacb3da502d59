package html

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.ContentExtractor = (*Extractor)(nil)

// DefaultMaxBytes bounds how much of a file is read.
const DefaultMaxBytes = 20 << 20

// Extractor handles HTML documents.
type Extractor struct {
	maxBytes int64
}

// New creates a new HTML extractor. A non-positive maxBytes uses DefaultMaxBytes.
func New(maxBytes int64) *Extractor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Extractor{maxBytes: maxBytes}
}

// SupportedMIMETypes returns the MIME types this extractor handles.
func (e *Extractor) SupportedMIMETypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

// Priority returns the selection priority.
func (e *Extractor) Priority() int {
	return 50
}

// Extract reads the HTML file at path as a single page.
func (e *Extractor) Extract(_ context.Context, path string) (*domain.Document, error) {
	raw, err := readLimited(path, e.maxBytes)
	if err != nil {
		return nil, err
	}
	root, err := xhtml.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, &domain.ExtractionError{Path: path, Err: err}
	}

	return &domain.Document{
		ID:       path,
		Path:     path,
		MIMEType: "text/html",
		Title:    extractHTMLTitle(root, path),
		Text:     stripHTML(root),
		Links:    extractLinks(root),
		Pages:    []domain.PageResult{{Number: 1, Method: domain.ExtractionText}},
	}, nil
}

func readLimited(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &domain.ExtractionError{Path: path, Err: domain.ErrDocumentMissing}
		}
		return nil, &domain.ExtractionError{Path: path, Err: err}
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return nil, &domain.ExtractionError{Path: path, Err: err}
	}
	return data, nil
}

// invisible elements are dropped with their content.
var invisible = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Template: true,
}

// blocks start and end on their own line so block structure survives.
var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Hr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Ul: true, atom.Ol: true, atom.Li: true, atom.Tr: true, atom.Table: true,
	atom.Blockquote: true, atom.Pre: true, atom.Section: true, atom.Article: true,
}

var (
	multiSpaces   = regexp.MustCompile(`[ \t]+`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// walk calls fn for n and its descendants in document order. Returning
// false from fn skips the node's children.
func walk(n *xhtml.Node, fn func(*xhtml.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// find returns the first element with the given atom.
func find(root *xhtml.Node, a atom.Atom) *xhtml.Node {
	var found *xhtml.Node
	walk(root, func(n *xhtml.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == xhtml.ElementNode && n.DataAtom == a {
			found = n
			return false
		}
		return true
	})
	return found
}

func attr(n *xhtml.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// textContent concatenates the text below n.
func textContent(n *xhtml.Node) string {
	var b strings.Builder
	walk(n, func(c *xhtml.Node) bool {
		if c.Type == xhtml.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

// extractHTMLTitle returns the <title> text or a title built from the filename.
func extractHTMLTitle(root *xhtml.Node, path string) string {
	if t := find(root, atom.Title); t != nil {
		if title := strings.TrimSpace(textContent(t)); title != "" {
			return title
		}
	}

	filename := filepath.Base(path)
	filename = strings.TrimSuffix(filename, filepath.Ext(filename))
	return strings.NewReplacer("_", " ", "-", " ").Replace(filename)
}

// extractLinks returns unique http(s) hrefs in document order. Relative
// links are resolved against <base href> when the page declares one and
// dropped otherwise.
func extractLinks(root *xhtml.Node) []string {
	var base *url.URL
	if b := find(root, atom.Base); b != nil {
		if href, ok := attr(b, "href"); ok {
			if u, err := url.Parse(strings.TrimSpace(href)); err == nil && u.IsAbs() {
				base = u
			}
		}
	}

	var links []string
	seen := make(map[string]bool)
	walk(root, func(n *xhtml.Node) bool {
		if n.Type != xhtml.ElementNode || n.DataAtom != atom.A {
			return true
		}
		href, ok := attr(n, "href")
		if !ok {
			return true
		}
		u, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}
		if !u.IsAbs() {
			if base == nil {
				return true
			}
			u = base.ResolveReference(u)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return true
		}
		u.Fragment = ""
		if link := u.String(); !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
		return true
	})
	return links
}

// stripHTML returns the readable text of the tree. Table cells are
// separated with " | " so rows read like the PDF table rendering.
func stripHTML(root *xhtml.Node) string {
	var b strings.Builder
	var render func(n *xhtml.Node)
	render = func(n *xhtml.Node) {
		switch n.Type {
		case xhtml.TextNode:
			b.WriteString(n.Data)
			return
		case xhtml.ElementNode:
			if invisible[n.DataAtom] {
				return
			}
		case xhtml.CommentNode, xhtml.DoctypeNode:
			return
		}

		block := n.Type == xhtml.ElementNode && blocks[n.DataAtom]
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			render(c)
		}
		if block {
			b.WriteByte('\n')
		}
		if n.DataAtom == atom.Td || n.DataAtom == atom.Th {
			b.WriteString(" | ")
		}
	}
	render(root)

	content := multiSpaces.ReplaceAllString(b.String(), " ")
	content = multiNewlines.ReplaceAllString(content, "\n\n")

	lines := strings.Split(content, "\n")
	result := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimSuffix(line, "|"))
		if line != "" {
			result = append(result, line)
		}
	}
	return strings.Join(result, "\n")
}
