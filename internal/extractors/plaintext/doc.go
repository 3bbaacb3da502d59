// Package plaintext provides the fallback ContentExtractor for text files.
package plaintext
