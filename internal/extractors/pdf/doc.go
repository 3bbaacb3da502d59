// Package pdf provides a ContentExtractor for PDF documents backed by the
// poppler command-line tools, with tesseract as an OCR fallback for pages
// that carry no text layer.
package pdf
