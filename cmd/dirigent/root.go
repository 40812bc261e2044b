package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dirigent",
	Short: "Multi-agent task orchestration runtime",
	Long: `Dirigent routes tasks to registered workers, executes workflow
chains of tool invocations, and plans phased orchestrations for
free-form task descriptions.

Core capabilities:
- Scores and routes tasks to capability-matched workers
- Executes conditional, retryable workflow chains with approval gates
- Plans four-phase orchestrations from a task description
- Broadcasts lifecycle events on an in-process bus`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(chainsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
