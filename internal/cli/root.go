// Package cli provides the command-line interface for deepresearch.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/deepresearch/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string

	// apiClient talks to the deepresearch server.
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "deepresearch",
	Short: "Deep research job runner",
	Long: `Deepresearch turns a free-form research question into a structured
literature analysis: the query is expanded into search topics, papers are
gathered and their text extracted, and an LLM synthesizes the findings.

Jobs run asynchronously on the deepresearch server; this CLI submits them
and tracks their progress.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		apiClient = client.New(serverURL)
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $DEEPRESEARCH_SERVER_URL or http://localhost:8080)")
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
