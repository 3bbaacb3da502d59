package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

var (
	askDocument string
	askSources  bool
	askJSON     bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the current document",
	Long: `Answer a question using only the text of the current document and the
pages it links to.

The current document is the one given with --document, or else the one named
in the notification file. With no question on a terminal, ask reads questions
until 'exit' or 'quit' while watching for newly delivered documents. With no
question and piped input, the whole input is the question.

Examples:
  sercha-rag ask --document report.pdf "When is the deadline?"
  sercha-rag ask -s "Who signed the contract?"
  echo "Summarise section 2" | sercha-rag ask`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askDocument, "document", "d", "", "ingest this document first")
	askCmd.Flags().BoolVarP(&askSources, "sources", "s", false, "print the passages the answer was based on")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if queryService == nil {
		return errors.New("query service not configured")
	}

	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" && isTerminal(cmd.InOrStdin()) {
		if err := ensureDocument(cmd, askDocument); err != nil {
			return err
		}
		return runAskLoop(cmd)
	}
	if question == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading question: %w", err)
		}
		question = strings.TrimSpace(string(data))
	}
	if question == "" {
		return fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}

	if err := ensureDocument(cmd, askDocument); err != nil {
		return err
	}
	return answerQuestion(cmd, question)
}

// runAskLoop reads questions until exit, quit or end of input. Without an
// explicit document the coordinator runs alongside, so each answer comes
// from the latest delivered document.
func runAskLoop(cmd *cobra.Command) error {
	if askDocument == "" {
		stop := watchInBackground(cmd.Context())
		defer stop()
	}

	cmd.Println("Ask about the current document. Type 'exit' or 'quit' to leave.")
	reader := bufio.NewReader(cmd.InOrStdin())
	for {
		cmd.Print("> ")
		line, readErr := reader.ReadString('\n')
		question := strings.TrimSpace(line)

		if isExitCommand(question) {
			return nil
		}
		if question != "" {
			if err := answerQuestion(cmd, question); err != nil {
				cmd.PrintErrf("Error: %v\n", err)
			}
			cmd.Println()
		}
		if readErr != nil {
			return nil
		}
		if cmd.Context().Err() != nil {
			return nil
		}
	}
}

func isExitCommand(s string) bool {
	switch strings.ToLower(s) {
	case "exit", "quit":
		return true
	default:
		return false
	}
}

// ensureDocument ingests path when given. Otherwise, if nothing has been
// published in this process, it ingests the document named by the
// notification file, if any.
func ensureDocument(cmd *cobra.Command, path string) error {
	if ingestionService == nil {
		if path != "" {
			return errors.New("ingestion service not configured")
		}
		return nil
	}

	if path == "" {
		if ingestionService.Status().Ready() || notificationSource == nil {
			return nil
		}
		latest, err := notificationSource.Read(cmd.Context())
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading notification: %w", err)
		}
		path = latest
	}

	detach := attachProgress(cmd.ErrOrStderr())
	run, err := ingestionService.IngestNow(cmd.Context(), path)
	detach()
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", path, err)
	}
	logger.Info("Ingested %s: %d chunks from %d pages and %d linked files",
		run.DocumentPath, run.Chunks, run.Pages, run.Fetched)
	return nil
}

// answerQuestion asks the query service and prints the answer.
func answerQuestion(cmd *cobra.Command, question string) error {
	answer, err := queryService.Ask(cmd.Context(), question)
	if errors.Is(err, domain.ErrNotReady) {
		return fmt.Errorf("%w: run 'sercha-rag ingest <path>' or pass --document", err)
	}
	if err != nil {
		return err
	}

	if askJSON {
		return outputAnswerJSON(cmd, answer)
	}
	printAnswer(cmd, answer, askSources)
	return nil
}

func printAnswer(cmd *cobra.Command, answer *domain.Answer, withSources bool) {
	cmd.Println(strings.TrimSpace(answer.Text))
	if !withSources {
		return
	}
	cmd.Println()
	cmd.Printf("Sources (%s, snapshot %d):\n", answer.DocumentID, answer.SnapshotVersion)
	for i := range answer.Sources {
		src := answer.Sources[i]
		cmd.Printf("  [%d] chunk %d (distance %.3f)\n", i+1, src.Chunk.Position, src.Distance)
		cmd.Printf("      %s\n", snippet(src.Chunk.Content, 160))
	}
}

type answerJSON struct {
	Question        string       `json:"question"`
	Answer          string       `json:"answer"`
	Model           string       `json:"model,omitempty"`
	DocumentID      string       `json:"document_id"`
	SnapshotVersion uint64       `json:"snapshot_version"`
	Sources         []sourceJSON `json:"sources"`
}

type sourceJSON struct {
	Position int     `json:"position"`
	Distance float64 `json:"distance"`
	Content  string  `json:"content"`
}

func outputAnswerJSON(cmd *cobra.Command, answer *domain.Answer) error {
	out := answerJSON{
		Question:        answer.Question,
		Answer:          answer.Text,
		Model:           answer.Model,
		DocumentID:      answer.DocumentID,
		SnapshotVersion: answer.SnapshotVersion,
		Sources:         make([]sourceJSON, len(answer.Sources)),
	}
	for i := range answer.Sources {
		out.Sources[i] = sourceJSON{
			Position: answer.Sources[i].Chunk.Position,
			Distance: answer.Sources[i].Distance,
			Content:  answer.Sources[i].Chunk.Content,
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

// collapseSpace joins whitespace runs into single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
