package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

var chatDocument string

// chatCmd represents the chat command.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Launch the interactive terminal UI",
	Long: `Launch the interactive terminal user interface.

Questions are answered from the current document. Newly delivered documents
are picked up while the UI is open and the status bar shows which snapshot
answers come from.

Controls:
  enter    - Ask
  ctrl+s   - Toggle sources
  pgup/dn  - Scroll
  ctrl+l   - Clear
  f1       - Toggle help
  ctrl+c   - Quit`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatDocument, "document", "d", "", "ingest this document before starting")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Panic in TUI: %v\n", r)
			fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", debug.Stack())
		}
	}()

	app, err := tui.NewApp(tui.NewPorts(queryService, ingestionService))
	if err != nil {
		return fmt.Errorf("failed to create TUI: %w", err)
	}

	if chatDocument != "" {
		if err := ensureDocument(cmd, chatDocument); err != nil {
			return err
		}
	}

	// Log lines would tear the alternate screen.
	if logFile == "" {
		logger.SetOutput(io.Discard)
		defer logger.SetOutput(os.Stderr)
	}

	stop := watchInBackground(cmd.Context())
	defer stop()

	if err := app.WithContext(cmd.Context()).Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// watchInBackground runs the coordinator until the returned function is
// called. It does nothing when ingestion is not configured.
func watchInBackground(ctx context.Context) func() {
	if ingestionService == nil || notificationSource == nil {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := ingestionService.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("watching for documents: %v", err)
		}
	}()

	return func() {
		cancel()
		if err := ingestionService.Stop(); err != nil {
			logger.Warn("stopping watcher: %v", err)
		}
		<-done
	}
}
