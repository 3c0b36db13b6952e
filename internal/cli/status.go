package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusFollow bool

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the status of a research job",
	Long: `Show the current status, progress, and message of a job.

Examples:
  deepresearch status a1b2c3d4
  deepresearch status --follow a1b2c3d4`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusFollow, "follow", "f", false, "follow progress until the job finishes")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]

	if statusFollow {
		return RunJobProgress(ctx, apiClient, id)
	}

	job, err := apiClient.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  Query:    %s\n", job.Query)
	fmt.Printf("  Status:   %s\n", job.Status)
	fmt.Printf("  Progress: %d%%\n", job.Progress)
	if job.Message != "" {
		fmt.Printf("  Message:  %s\n", job.Message)
	}
	fmt.Printf("  Created:  %s\n", job.CreatedAt.Format(time.RFC3339))
	fmt.Printf("  Updated:  %s\n", job.UpdatedAt.Format(time.RFC3339))
	return nil
}
