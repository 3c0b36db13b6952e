package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var submitWait bool

var submitCmd = &cobra.Command{
	Use:   "submit <query>",
	Short: "Submit a research query",
	Long: `Submit a research query and print the job id.

Examples:
  deepresearch submit "effects of sleep on memory consolidation"
  deepresearch submit --wait "role of gut microbiome in depression"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "follow progress until the job finishes")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	query := strings.Join(args, " ")

	jobID, err := apiClient.Submit(ctx, query)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	if !submitWait {
		fmt.Printf("Job %s submitted.\n", jobID)
		fmt.Printf("Track it with 'deepresearch status %s' or 'deepresearch status --follow %s'.\n", jobID, jobID)
		return nil
	}

	if err := RunJobProgress(ctx, apiClient, jobID); err != nil {
		return err
	}
	return printResults(ctx, jobID)
}
