package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List research jobs",
	Long: `List all jobs known to the server, most recent first.

Examples:
  deepresearch jobs`,
	Args: cobra.NoArgs,
	RunE: runJobs,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, _ []string) error {
	jobs, err := apiClient.ListJobs(cmd.Context())
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-10s %-11s %-9s %-9s %s\n", "ID", "STATUS", "PROGRESS", "CREATED", "QUERY")
	fmt.Println("--------------------------------------------------------------------------")
	for _, job := range jobs {
		query := job.Query
		if len(query) > 40 {
			query = query[:37] + "..."
		}
		fmt.Printf("%-10s %-11s %7d%%  %-9s %s\n",
			job.ID, job.Status, job.Progress, job.CreatedAt.Format("15:04:05"), query)
	}
	return nil
}
