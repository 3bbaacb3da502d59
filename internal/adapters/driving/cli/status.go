package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var (
	historyLimit int
	historyJSON  bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the notification file and the last ingestion",
	RunE:  runStatus,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent ingestion runs",
	Long: `List recent ingestion runs, most recent first.

Runs are recorded in the ledger (SQLite by default) by every command that
ingests: serve, ingest, ask and chat.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "maximum number of runs")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output runs as JSON")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}

	status := ingestionService.Status()
	cmd.Printf("Policy: %s\n", status.Policy)

	if notificationSource != nil {
		latest, err := notificationSource.Read(cmd.Context())
		switch {
		case errors.Is(err, domain.ErrNotFound):
			cmd.Println("Latest document: (none delivered)")
		case err != nil:
			cmd.Printf("Latest document: error: %v\n", err)
		default:
			cmd.Printf("Latest document: %s\n", latest)
		}
	}

	runs, err := ingestionService.History(cmd.Context(), 1)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	if len(runs) == 0 {
		cmd.Println("Last run: (none)")
		return nil
	}
	cmd.Println()
	cmd.Println("Last run:")
	printRun(cmd, &runs[0])
	return nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	if ingestionService == nil {
		return errors.New("ingestion service not configured")
	}

	runs, err := ingestionService.History(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	if historyJSON {
		data, err := json.MarshalIndent(runs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal runs: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(runs) == 0 {
		cmd.Println("No ingestion runs recorded.")
		return nil
	}
	for i := range runs {
		cmd.Printf("%s  %-10s  %6s  %s\n",
			runs[i].StartedAt.Local().Format(time.DateTime),
			runs[i].Outcome,
			formatDuration(runs[i].Duration()),
			runs[i].DocumentPath)
		if runs[i].Error != "" {
			cmd.Printf("    %s\n", runs[i].Error)
		}
	}
	return nil
}

// printRun prints one run's outcome and counters.
func printRun(cmd *cobra.Command, run *domain.IngestionRun) {
	cmd.Printf("  Document: %s\n", run.DocumentPath)
	cmd.Printf("  Outcome: %s", run.Outcome)
	if d := run.Duration(); d > 0 {
		cmd.Printf(" in %s", formatDuration(d))
	}
	cmd.Println()
	cmd.Printf("  Pages: %d (%d failed)\n", run.Pages, run.PageFailures)
	cmd.Printf("  Links: %d found, %d fetched, %d failed\n", run.Links, run.Fetched, run.FetchFailures)
	cmd.Printf("  Chunks: %d\n", run.Chunks)
	if run.Error != "" {
		cmd.Printf("  Error: %s\n", run.Error)
	}
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
