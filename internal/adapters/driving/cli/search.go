package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

var (
	searchLimit    int
	searchJSON     bool
	searchDocument string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the current document",
	Long: `Performs a keyword search over the chunks of the current document.
Wrap the query in double quotes to match an exact phrase.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().StringVarP(&searchDocument, "document", "d", "", "ingest this document first")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	if queryService == nil {
		return errors.New("query service not configured")
	}
	if err := ensureDocument(cmd, searchDocument); err != nil {
		return err
	}

	results, err := queryService.Search(cmd.Context(), query, searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}

	return outputSearchTable(cmd, results)
}

func outputSearchJSON(cmd *cobra.Command, results []domain.KeywordResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.KeywordResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		cmd.Printf("  [%d] chunk %d (%.2f)\n", i+1, results[i].Chunk.Position, results[i].Score)
		cmd.Printf("      %s\n", snippet(results[i].Chunk.Content, 160))
		cmd.Println()
	}
	return nil
}

// snippet returns the first n runes of s on a single line.
func snippet(s string, n int) string {
	runes := []rune(collapseSpace(s))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "..."
}
