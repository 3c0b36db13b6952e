package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/deepresearch/internal/client"
)

var resultsJSON bool

var resultsCmd = &cobra.Command{
	Use:   "results <job-id>",
	Short: "Show the results of a completed job",
	Long: `Print the synthesized analysis and bibliography of a completed job.

Examples:
  deepresearch results a1b2c3d4
  deepresearch results --json a1b2c3d4 > analysis.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printResults(cmd.Context(), args[0])
	},
}

func init() {
	resultsCmd.Flags().BoolVar(&resultsJSON, "json", false, "emit the raw result JSON")
	rootCmd.AddCommand(resultsCmd)
}

func printResults(ctx context.Context, id string) error {
	result, err := apiClient.GetResults(ctx, id)
	if err != nil {
		if errors.Is(err, client.ErrNotReady) {
			return fmt.Errorf("job %s has not completed yet; check 'deepresearch status %s'", id, id)
		}
		return fmt.Errorf("get results: %w", err)
	}

	if resultsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("Query: %s\n\n", result.Query)

	fmt.Println("Summary:")
	fmt.Printf("  %s\n\n", result.Analysis.Summary)

	printSection := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Printf("%s:\n", title)
		for _, item := range items {
			fmt.Printf("  - %s\n", item)
		}
		fmt.Println()
	}

	printSection("Key findings", result.Analysis.KeyFindings)
	printSection("Themes", result.Analysis.Themes)
	printSection("Gaps", result.Analysis.Gaps)
	printSection("Future work", result.Analysis.FutureWork)

	fmt.Printf("Documents (%d across %d topics):\n", result.DocumentCount(), len(result.Topics))
	for _, td := range result.ByTopic {
		fmt.Printf("  %s (%d)\n", td.Topic, len(td.Documents))
		for _, doc := range td.Documents {
			fmt.Printf("    - %s\n", doc.Citation)
		}
	}
	return nil
}
