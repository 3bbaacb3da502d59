// Package extractors provides implementations of the ContentExtractor
// interface. Each extractor knows how to pull text and outbound links from
// a file of a specific MIME type.
//
// Extractors are registered with the ExtractorRegistry at startup.
package extractors
