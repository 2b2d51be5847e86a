package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/corpora-dev/corpora/internal/core/domain"
)

var (
	searchLimit     int
	searchThreshold float64
	searchJSON      bool
)

var (
	scoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	contentStyle = lipgloss.NewStyle().PaddingLeft(6)
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search ingested chunks by similarity",
	Long: `Embeds the query and returns the most similar stored chunks together
with their metadata and similarity score.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", domain.DefaultSearchLimit, "maximum number of results")
	searchCmd.Flags().Float64VarP(&searchThreshold, "threshold", "t", 0, "minimum similarity (0 disables)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	query := args[0]

	svcs, _, err := loadServices(ctx)
	if err != nil {
		return err
	}
	defer closeServices(svcs)

	if svcs.Searcher == nil {
		return errors.New("searcher not configured")
	}

	opts := domain.SearchOptions{
		Limit:               searchLimit,
		SimilarityThreshold: searchThreshold,
	}
	results, err := svcs.Searcher.Search(ctx, query, nil, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}
	return outputSearchText(cmd, results)
}

func outputSearchJSON(cmd *cobra.Command, results []domain.QueryResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchText(cmd *cobra.Command, results []domain.QueryResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		key := resultKey(results[i].Metadata)
		cmd.Printf("  [%d] %s %s\n", i+1,
			keyStyle.Render(key),
			scoreStyle.Render(fmt.Sprintf("(%.3f)", results[i].Similarity)))
		cmd.Println(contentStyle.Render(snippet(results[i].Chunk.Content)))
		cmd.Println()
	}
	return nil
}

// resultKey picks the most recognisable metadata value for display.
func resultKey(metadata domain.Metadata) string {
	for _, field := range []string{"path", "name"} {
		if v, ok := metadata[field].(string); ok && v != "" {
			return v
		}
	}
	return "(unknown)"
}

// snippet truncates chunk content to a display-friendly length.
func snippet(content string) string {
	const maxLen = 200
	if len(content) <= maxLen {
		return content
	}
	return content[:maxLen] + "..."
}
