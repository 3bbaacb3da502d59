package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/mcp"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

var serveMCPAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch for delivered documents and keep the latest one ready",
	Long: `Poll the notification file and ingest each newly delivered document.

A document that arrives while another is being ingested is handled by the
ingest.policy setting: queue finishes the current run first, supersede
cancels it. Questions are answered from the last published document.

With --mcp-addr, an MCP server is started over HTTP on that address so AI
assistants can ask questions while documents keep arriving.

Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveMCPAddr, "mcp-addr", "", "serve MCP over HTTP on this address, e.g. :8080")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}
	logger.SetTimestamps(true)

	var server *mcp.Server
	if serveMCPAddr != "" {
		var err error
		server, err = mcp.NewServer(&mcp.Ports{Query: queryService, Ingestion: ingestionService})
		if err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return ingestionService.Start(ctx)
	})
	if server != nil {
		g.Go(func() error {
			return server.RunHTTP(ctx, serveMCPAddr)
		})
		cmd.Printf("MCP server listening on %s\n", serveMCPAddr)
	}
	cmd.Println("Watching for documents. Press Ctrl-C to stop.")

	err := g.Wait()
	if stopErr := ingestionService.Stop(); stopErr != nil {
		logger.Warn("stopping coordinator: %v", stopErr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
