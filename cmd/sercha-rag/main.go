// Command sercha-rag answers questions about the most recently delivered
// document.
package main

import (
	"os"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

func main() {
	cli.SetVersion(version)
	if err := cli.Execute(); err != nil {
		// cobra has already printed the error.
		os.Exit(1)
	}
}
