package html

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xhtml "golang.org/x/net/html"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func parse(t *testing.T, content string) *xhtml.Node {
	t.Helper()
	root, err := xhtml.Parse(strings.NewReader(content))
	require.NoError(t, err)
	return root
}

func writeHTML(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestExtractor_Metadata(t *testing.T) {
	e := New(0)
	assert.Contains(t, e.SupportedMIMETypes(), "text/html")
	assert.Equal(t, 50, e.Priority())
	assert.Equal(t, int64(DefaultMaxBytes), e.maxBytes)
}

func TestExtract(t *testing.T) {
	path := writeHTML(t, "b.pdf", `<!DOCTYPE html>
<html><head><title>Pricing &amp; Plans</title><style>p{color:red}</style></head>
<body>
<script>var x = 1;</script>
<h1>Plans</h1>
<p>Basic costs <b>10</b> EUR.</p>
<a href="https://example.com/terms#top">Terms</a>
<a href="/relative">Relative</a>
<a href="mailto:sales@example.com">Mail</a>
<a href="https://example.com/terms">Terms again</a>
</body></html>`)

	doc, err := New(0).Extract(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, path, doc.ID)
	assert.Equal(t, "Pricing & Plans", doc.Title)
	assert.Contains(t, doc.Text, "Plans\nBasic costs 10 EUR.")
	assert.NotContains(t, doc.Text, "var x")
	assert.NotContains(t, doc.Text, "color")
	assert.Equal(t, []string{"https://example.com/terms"}, doc.Links)
	require.Len(t, doc.Pages, 1)
	assert.Equal(t, domain.ExtractionText, doc.Pages[0].Method)
}

func TestExtract_MissingFile(t *testing.T) {
	_, err := New(0).Extract(context.Background(), filepath.Join(t.TempDir(), "nope.html"))

	var extractErr *domain.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, 0, extractErr.Page)
	assert.ErrorIs(t, err, domain.ErrDocumentMissing)
}

func TestExtract_EmptyBody(t *testing.T) {
	path := writeHTML(t, "empty.html", "<html><body><script>x()</script></body></html>")

	doc, err := New(0).Extract(context.Background(), path)

	require.NoError(t, err)
	assert.True(t, doc.IsEmpty())
	assert.Equal(t, "empty", doc.Title)
}

func TestExtract_MaxBytes(t *testing.T) {
	path := writeHTML(t, "long.html", "<p>abcdef</p><p>ghijkl</p>")

	doc, err := New(9).Extract(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, "abcdef", doc.Text)
}

func TestExtractLinks_BaseHref(t *testing.T) {
	links := extractLinks(parse(t, `<head><base href="https://docs.example.com/v1/"></head>
<a href="guide.html">Guide</a><a href='../faq'>FAQ</a><a href="ftp://x/y">FTP</a>`))

	assert.Equal(t, []string{
		"https://docs.example.com/v1/guide.html",
		"https://docs.example.com/faq",
	}, links)
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain text", input: "hello", want: "hello"},
		{name: "entities", input: "<p>a &lt; b &amp;&amp; c</p>", want: "a < b && c"},
		{name: "comments removed", input: "a<!-- hidden -->b", want: "ab"},
		{name: "br breaks lines", input: "one<br/>two<br>three", want: "one\ntwo\nthree"},
		{name: "spaces collapsed", input: "<p>a    b\t\tc</p>", want: "a b c"},
		{
			name:  "table rows",
			input: "<table><tr><th>Region</th><th>Q1</th></tr><tr><td>North</td><td>10</td></tr></table>",
			want:  "Region | Q1\nNorth | 10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripHTML(parse(t, tt.input)))
		})
	}
}

func TestExtractHTMLTitle(t *testing.T) {
	assert.Equal(t, "Home", extractHTMLTitle(parse(t, "<title>  Home </title>"), "/x.html"))
	assert.Equal(t, "release notes v2", extractHTMLTitle(parse(t, "<title></title>"), "/d/release_notes-v2.html"))
}
