package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/locusai/locus-agent/internal/common/workspace"
)

func newInitCmd(projectPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the .locus workspace in the project directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := workspace.Init(*projectPath)
			if err != nil {
				return fmt.Errorf("initialize workspace: %w", err)
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Initialized Locus workspace in %s\n", workspace.Dir(*projectPath))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Locus workspace already initialized in %s\n", workspace.Dir(*projectPath))
			}
			return nil
		},
	}
}
