package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/config/file"
)

var (
	ingestQuestion string
	ingestNotify   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>",
	Short: "Ingest a document now",
	Long: `Extract the document at path, fetch the pages it links to, and build the
indexes used to answer questions, all within this process.

With --question, the question is answered from the new document once it is
ingested. Ingestion results are recorded in the run history.

With --notify, nothing is ingested here. The path is written to the
notification file instead, so a running "serve" picks it up.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestQuestion, "question", "q", "", "question to answer after ingesting")
	ingestCmd.Flags().BoolVarP(&ingestNotify, "notify", "n", false, "hand the document to a running server instead")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestNotify {
		if ingestQuestion != "" {
			return errors.New("--question cannot be combined with --notify")
		}
		return notifyDocument(cmd, args[0])
	}
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}

	detach := attachProgress(cmd.ErrOrStderr())
	run, err := ingestionService.IngestNow(cmd.Context(), args[0])
	detach()

	if run != nil {
		printRun(cmd, run)
	}
	if err != nil {
		return err
	}

	if ingestQuestion == "" {
		return nil
	}
	cmd.Println()
	return answerQuestion(cmd, ingestQuestion)
}

// notifyDocument writes path to the notification file the coordinator polls.
func notifyDocument(cmd *cobra.Command, path string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("document %s: %w", abs, err)
	}

	if err := file.WriteNotification(settings.Ingest.NotificationPath, abs); err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	cmd.Printf("Notified %s\n", settings.Ingest.NotificationPath)
	cmd.Printf("Document: %s\n", abs)
	return nil
}
