// Package main is the entry point for a single locus worker process.
// Workers are normally spawned by `locus run`, one per agent; stdout
// carries the NDJSON event stream, diagnostics go to stderr.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/locusai/locus-agent/internal/agent/artifacts"
	"github.com/locusai/locus-agent/internal/agent/indexer"
	"github.com/locusai/locus-agent/internal/agent/planner"
	"github.com/locusai/locus-agent/internal/agent/prompt"
	"github.com/locusai/locus-agent/internal/agent/stream"
	"github.com/locusai/locus-agent/internal/agent/worker"
	"github.com/locusai/locus-agent/internal/api"
	"github.com/locusai/locus-agent/internal/common/config"
	"github.com/locusai/locus-agent/internal/common/logger"
	"github.com/locusai/locus-agent/internal/common/workspace"
	"github.com/locusai/locus-agent/internal/llm"
	"github.com/locusai/locus-agent/internal/tracing"
)

func main() {
	var (
		project       = flag.String("project", ".", "project directory")
		apiURL        = flag.String("api-url", "", "Locus API base URL")
		workspaceID   = flag.String("workspace", "", "workspace id")
		sprintID      = flag.String("sprint", "", "sprint id (empty: whole workspace)")
		agentID       = flag.String("agent-id", "", "agent id (generated when empty)")
		model         = flag.String("model", "", "model override")
		pollInterval  = flag.Duration("poll-interval", 0, "dispatch poll interval")
		maxTasks      = flag.Int("max-tasks", 0, "drain after this many completed tasks")
		maxEmptyPolls = flag.Int("max-empty-polls", 0, "drain after this many consecutive empty polls")
	)
	flag.Parse()

	cfg, err := config.LoadWithPath(*project)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// stdout belongs to the event stream; the logger writes to stderr.
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: "stderr",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	// Flags override config so the orchestrator fully controls its fleet.
	if *apiURL != "" {
		cfg.API.URL = *apiURL
	}
	if *workspaceID != "" {
		cfg.Workspace.ID = *workspaceID
	}
	if *sprintID != "" {
		cfg.Workspace.SprintID = *sprintID
	}
	if *model != "" {
		cfg.Agent.Model = *model
	}
	if *pollInterval > 0 {
		cfg.Agent.PollInterval = int(pollInterval.Seconds())
	}
	if *maxTasks > 0 {
		cfg.Agent.MaxTasks = *maxTasks
	}
	if *maxEmptyPolls > 0 {
		cfg.Agent.MaxEmptyPolls = *maxEmptyPolls
	}

	if cfg.API.Key == "" {
		fmt.Fprintln(os.Stderr, "LOCUS_API_KEY is not set")
		os.Exit(1)
	}
	if cfg.Workspace.ID == "" {
		fmt.Fprintln(os.Stderr, "workspace id is not configured")
		os.Exit(1)
	}
	if err := workspace.RequireInitialized(*project); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
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

	cliGen := llm.NewClaudeCLIGenerator(llm.ClaudeCLIOptions{
		Model:   cfg.Agent.Model,
		WorkDir: *project,
		APIKey:  cfg.Agent.AnthropicAPIKey,
	}, log)

	// Planning and indexing prefer the direct Anthropic API for prompt
	// caching; without a key they fall back to the CLI transport.
	var planGen llm.TextGenerator = cliGen
	if cfg.Agent.AnthropicAPIKey != "" {
		anthropicGen, err := llm.NewAnthropicGenerator(cfg.Agent.AnthropicAPIKey, cfg.Agent.Model, log)
		if err != nil {
			log.Warn("anthropic generator unavailable, using CLI for planning", zap.Error(err))
		} else {
			planGen = anthropicGen
		}
	}

	renderer := stream.NewRenderer(os.Stdout, stream.RendererOptions{
		Command:  "run",
		Model:    cfg.Agent.Model,
		Provider: "anthropic",
		Cwd:      *project,
	})

	w := worker.New(worker.Options{
		AgentID:       *agentID,
		SprintID:      cfg.Workspace.SprintID,
		MaxTasks:      cfg.Agent.MaxTasks,
		MaxEmptyPolls: cfg.Agent.MaxEmptyPolls,
		PollInterval:  cfg.Agent.PollIntervalDuration(),
	}, worker.Deps{
		API:           client,
		Planner:       planner.New(planGen, log),
		Composer:      prompt.NewComposer(*project, log),
		Reindexer:     indexer.New(*project, planGen, log),
		Artifacts:     artifacts.NewSyncer(*project, client, log),
		PlanGenerator: planGen,
		ExecGenerator: stream.NewRenderedGenerator(cliGen, renderer),
		Logger:        log,
	})

	if err := renderer.EmitStart(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open event stream: %v\n", err)
		os.Exit(1)
	}

	runErr := w.Run(ctx)
	exitCode := 0
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		// Task-level failures never reach here; anything that does is a
		// worker-level fault worth surfacing on the stream.
		_ = renderer.Fail(runErr)
		exitCode = 1
	}
	_ = renderer.EmitDone(exitCode)

	log.Info("worker exiting",
		zap.Int("tasks_completed", w.TasksCompleted()),
		zap.Int("tasks_failed", w.TasksFailed()))
	os.Exit(exitCode)
}
