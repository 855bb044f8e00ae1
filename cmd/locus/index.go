package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/locusai/locus-agent/internal/agent/indexer"
	"github.com/locusai/locus-agent/internal/common/config"
	"github.com/locusai/locus-agent/internal/common/logger"
	"github.com/locusai/locus-agent/internal/common/workspace"
	"github.com/locusai/locus-agent/internal/llm"
)

func newIndexCmd(projectPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Regenerate the codebase index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := workspace.RequireInitialized(*projectPath); err != nil {
				return err
			}
			cfg, err := config.LoadWithPath(*projectPath)
			if err != nil {
				return err
			}
			log, err := logger.NewLogger(logger.LoggingConfig{
				Level:      cfg.Logging.Level,
				Format:     cfg.Logging.Format,
				OutputPath: "stderr",
			})
			if err != nil {
				return err
			}
			defer log.Sync()

			generator, err := indexGenerator(cfg, *projectPath, log)
			if err != nil {
				return err
			}

			index, err := indexer.New(*projectPath, generator, log).Reindex(cmd.Context())
			if err != nil {
				return fmt.Errorf("index codebase: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d files, %d symbols → %s\n",
				index.FileCount, len(index.Symbols), workspace.IndexPath(*projectPath))
			return nil
		},
	}
}

// indexGenerator prefers the Anthropic API and falls back to the Claude CLI
// when no API key is configured.
func indexGenerator(cfg *config.Config, projectPath string, log *logger.Logger) (llm.TextGenerator, error) {
	if cfg.Agent.AnthropicAPIKey != "" {
		return llm.NewAnthropicGenerator(cfg.Agent.AnthropicAPIKey, cfg.Agent.Model, log)
	}
	return llm.NewClaudeCLIGenerator(llm.ClaudeCLIOptions{
		Model:   cfg.Agent.Model,
		WorkDir: projectPath,
	}, log), nil
}
