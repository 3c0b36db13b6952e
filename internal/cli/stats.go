package cli

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server job statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	stats, err := apiClient.GetStats(cmd.Context())
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	fmt.Println("Jobs:")
	fmt.Printf("  Queued:    %d\n", stats.Jobs.Queued)
	fmt.Printf("  Running:   %d\n", stats.Jobs.Running)
	fmt.Printf("  Completed: %d\n", stats.Jobs.Completed)
	fmt.Printf("  Failed:    %d\n", stats.Jobs.Failed)
	fmt.Printf("  Total:     %d\n", stats.Jobs.Total)

	if len(stats.Operations) > 0 && string(stats.Operations) != "null" {
		var buf bytes.Buffer
		if err := json.Indent(&buf, stats.Operations, "  ", "  "); err == nil {
			fmt.Printf("\nOperations:\n  %s\n", buf.String())
		}
	}
	return nil
}
