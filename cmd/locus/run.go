package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/locusai/locus-agent/internal/api"
	"github.com/locusai/locus-agent/internal/common/config"
	"github.com/locusai/locus-agent/internal/common/logger"
	"github.com/locusai/locus-agent/internal/common/workspace"
	"github.com/locusai/locus-agent/internal/orchestrator"
	"github.com/locusai/locus-agent/internal/tracing"
)

func newRunCmd(projectPath *string) *cobra.Command {
	var (
		workers      int
		sprintID     string
		model        string
		workerBinary string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Claim and execute tasks until the backlog drains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := workspace.RequireInitialized(*projectPath); err != nil {
				return err
			}
			cfg, err := config.LoadWithPath(*projectPath)
			if err != nil {
				return err
			}
			if sprintID != "" {
				cfg.Workspace.SprintID = sprintID
			}
			if model != "" {
				cfg.Agent.Model = model
			}
			if workers > 0 {
				cfg.Agent.WorkerCount = workers
			}
			if cfg.API.Key == "" {
				return errors.New("no API key configured: set LOCUS_API_KEY or api.key in .locus/config.json")
			}
			if cfg.Workspace.ID == "" {
				return errors.New("no workspace configured: set LOCUS_WORKSPACE_ID or workspace.id in .locus/config.json")
			}

			log, err := logger.NewLogger(logger.LoggingConfig{
				Level:      cfg.Logging.Level,
				Format:     cfg.Logging.Format,
				OutputPath: cfg.Logging.OutputPath,
			})
			if err != nil {
				return err
			}
			defer log.Sync()
			logger.SetDefault(log)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tracing.Shutdown(shutdownCtx)
			}()

			client := api.NewClient(api.Options{
				BaseURL:     cfg.API.URL,
				APIKey:      cfg.API.Key,
				WorkspaceID: cfg.Workspace.ID,
				Timeout:     cfg.API.TimeoutDuration(),
			}, log)

			orch := orchestrator.New(orchestrator.Options{
				WorkerBinary: workerBinary,
				WorkerCount:  cfg.Agent.WorkerCount,
				Worker: orchestrator.WorkerConfig{
					ProjectPath:   *projectPath,
					APIURL:        cfg.API.URL,
					APIKey:        cfg.API.Key,
					WorkspaceID:   cfg.Workspace.ID,
					SprintID:      cfg.Workspace.SprintID,
					Model:         cfg.Agent.Model,
					PollInterval:  cfg.Agent.PollIntervalDuration(),
					MaxTasks:      cfg.Agent.MaxTasks,
					MaxEmptyPolls: cfg.Agent.MaxEmptyPolls,
				},
			}, client, log)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := orch.Start(ctx); err != nil {
				return err
			}

			// A signal mid-run force-kills the fleet; the server re-queues
			// whatever was in flight.
			go func() {
				<-ctx.Done()
				orch.Stop()
			}()

			if err := orch.Wait(); err != nil {
				log.Error("run finished with failures", zap.Error(err))
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "number of worker processes")
	cmd.Flags().StringVarP(&sprintID, "sprint", "s", "", "sprint id to work on")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model override")
	cmd.Flags().StringVar(&workerBinary, "worker-binary", "", "path to the locus-worker binary")
	return cmd
}
