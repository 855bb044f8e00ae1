// Package main is the entry point for the locus CLI: workspace
// initialization, codebase indexing, and the orchestrator run loop.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var projectPath string

	cmd := &cobra.Command{
		Use:           "locus",
		Short:         "Locus coding agent",
		Long:          "Locus claims engineering tasks from a Locus server and executes them against the local source tree.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&projectPath, "project", "p", ".", "project directory")

	cmd.AddCommand(newInitCmd(&projectPath))
	cmd.AddCommand(newIndexCmd(&projectPath))
	cmd.AddCommand(newRunCmd(&projectPath))
	return cmd
}
