// Command submit is a one-shot operator CLI for registering workflow
// definitions and starting executions against a running orchestrator
// deployment.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "workflowctl",
	Short: "Submit workflow definitions and trigger executions",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file to load before reading configuration")

	rootCmd.AddCommand(submitCmd, triggerCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
