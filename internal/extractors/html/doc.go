// Package html provides a ContentExtractor for HTML documents. It strips
// markup down to readable text and collects absolute hyperlinks.
package html
