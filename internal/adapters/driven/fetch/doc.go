// Package fetch downloads the resources a document links to. Downloads are
// rate limited, bounded in time and size, and saved under generated names
// in a caller-provided directory.
package fetch
