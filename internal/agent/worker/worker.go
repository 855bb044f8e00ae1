// Package worker implements the per-agent state machine: claim one task at
// a time from the server, drive it through the plan/execute pipeline, and
// drain when the sprint is exhausted.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/locusai/locus-agent/internal/agent/indexer"
	"github.com/locusai/locus-agent/internal/agent/planner"
	"github.com/locusai/locus-agent/internal/agent/prompt"
	"github.com/locusai/locus-agent/internal/api"
	"github.com/locusai/locus-agent/internal/common/logger"
	"github.com/locusai/locus-agent/internal/llm"
	"github.com/locusai/locus-agent/internal/tracing"
	v1 "github.com/locusai/locus-agent/pkg/api/v1"
)

// PromiseToken is the literal the execution phase must output to signal
// completion.
const PromiseToken = "<promise>COMPLETE</promise>"

const executionSystemPrompt = `You are an expert software engineer. You complete engineering tasks carefully and precisely.`

const planPhaseInstruction = `Phase 1: Planning

Analyze the task above and produce a step-by-step implementation plan:
which files to touch, what to change, and how to verify the result.
This is the planning phase. Do NOT execute changes yet.`

// Default drain thresholds and poll cadence.
const (
	DefaultMaxTasks      = 50
	DefaultMaxEmptyPolls = 10
	DefaultPollInterval  = 10 * time.Second
)

// ServerAPI is the subset of the server client the worker depends on.
type ServerAPI interface {
	Dispatch(ctx context.Context, workerID string, sprintID *string) (*v1.Task, error)
	GetTask(ctx context.Context, taskID string) (*v1.Task, error)
	UpdateTask(ctx context.Context, taskID string, req v1.UpdateTaskRequest) error
	CreateComment(ctx context.Context, taskID string, req v1.CreateCommentRequest) error
	GetActiveSprint(ctx context.Context) (*v1.Sprint, error)
	GetSprint(ctx context.Context, sprintID string) (*v1.Sprint, error)
	ListSprintTasks(ctx context.Context, sprintID string) ([]v1.Task, error)
	UpdateSprint(ctx context.Context, sprintID string, req v1.UpdateSprintRequest) error
}

// Reindexer regenerates the codebase index before each task.
type Reindexer interface {
	Reindex(ctx context.Context) (*indexer.Index, error)
}

// ArtifactSyncer pushes local artifacts to the server after each task.
type ArtifactSyncer interface {
	Sync(ctx context.Context) error
}

// Options configures a Worker.
type Options struct {
	AgentID       string // generated when empty
	SprintID      string // empty means whole-workspace mode
	MaxTasks      int
	MaxEmptyPolls int
	PollInterval  time.Duration
}

// Worker claims and executes tasks until drained.
type Worker struct {
	agentID  string
	sprintID string

	api       ServerAPI
	planner   *planner.Planner
	composer  *prompt.Composer
	reindexer Reindexer
	artifacts ArtifactSyncer

	// planGenerator runs the read-only planning phase; execGenerator must
	// have filesystem side-effect capability.
	planGenerator llm.TextGenerator
	execGenerator llm.TextGenerator

	maxTasks      int
	maxEmptyPolls int
	pollInterval  time.Duration

	tasksCompleted   int
	tasksFailed      int
	consecutiveEmpty int

	logger *logger.Logger
}

// Deps bundles the worker's collaborators.
type Deps struct {
	API           ServerAPI
	Planner       *planner.Planner
	Composer      *prompt.Composer
	Reindexer     Reindexer
	Artifacts     ArtifactSyncer
	PlanGenerator llm.TextGenerator
	ExecGenerator llm.TextGenerator
	Logger        *logger.Logger
}

// New creates a Worker.
func New(opts Options, deps Deps) *Worker {
	agentID := opts.AgentID
	if agentID == "" {
		agentID = NewAgentID()
	}
	maxTasks := opts.MaxTasks
	if maxTasks <= 0 {
		maxTasks = DefaultMaxTasks
	}
	maxEmpty := opts.MaxEmptyPolls
	if maxEmpty <= 0 {
		maxEmpty = DefaultMaxEmptyPolls
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Worker{
		agentID:       agentID,
		sprintID:      opts.SprintID,
		api:           deps.API,
		planner:       deps.Planner,
		composer:      deps.Composer,
		reindexer:     deps.Reindexer,
		artifacts:     deps.Artifacts,
		planGenerator: deps.PlanGenerator,
		execGenerator: deps.ExecGenerator,
		maxTasks:      maxTasks,
		maxEmptyPolls: maxEmpty,
		pollInterval:  pollInterval,
		logger:        deps.Logger.WithAgentID(agentID),
	}
}

// AgentID returns the worker's agent id.
func (w *Worker) AgentID() string {
	return w.agentID
}

// TasksCompleted returns the number of successfully completed tasks.
func (w *Worker) TasksCompleted() int {
	return w.tasksCompleted
}

// TasksFailed returns the number of failed task executions.
func (w *Worker) TasksFailed() int {
	return w.tasksFailed
}

// NewAgentID generates a worker agent id in the form
// agent-<epoch-ms>-<6-char-base36>.
func NewAgentID() string {
	suffix := strconv.FormatInt(rand.Int63(), 36)
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	for len(suffix) < 6 {
		suffix = "0" + suffix
	}
	return fmt.Sprintf("agent-%d-%s", time.Now().UnixMilli(), suffix)
}

// Run drives the worker state machine to completion. It returns nil when
// the worker drains normally and the context error on cancellation.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker starting",
		zap.String("sprint_id", w.sprintID),
		zap.Int("max_tasks", w.maxTasks),
		zap.Int("max_empty_polls", w.maxEmptyPolls))

	w.planSprintIfStale(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		task, err := w.dispatch(ctx)
		if err != nil {
			w.consecutiveEmpty++
			if !errors.Is(err, ErrNoTaskAvailable) {
				w.logger.Warn("dispatch failed", zap.Error(err), zap.Int("consecutive_empty", w.consecutiveEmpty))
			} else {
				w.logger.Debug("no claimable task", zap.Int("consecutive_empty", w.consecutiveEmpty))
			}
			if w.consecutiveEmpty >= w.maxEmptyPolls {
				w.logger.Info("draining: backlog empty", zap.Int("tasks_completed", w.tasksCompleted))
				return nil
			}
			if err := sleepCtx(ctx, w.pollInterval); err != nil {
				return err
			}
			continue
		}

		w.consecutiveEmpty = 0
		w.executeTask(ctx, task)

		if w.tasksCompleted >= w.maxTasks {
			w.logger.Info("draining: max tasks reached", zap.Int("tasks_completed", w.tasksCompleted))
			return nil
		}
	}
}

// ErrNoTaskAvailable normalizes the API's empty-dispatch signal.
var ErrNoTaskAvailable = errors.New("no task available")

func (w *Worker) dispatch(ctx context.Context) (*v1.Task, error) {
	ctx, span := tracing.Start(ctx, "worker.dispatch", attribute.String("agent_id", w.agentID))
	defer span.End()

	task, err := w.api.Dispatch(ctx, w.agentID, w.sprintPtr())
	if err != nil {
		if isNoTask(err) {
			return nil, ErrNoTaskAvailable
		}
		return nil, err
	}
	return task, nil
}

// planSprintIfStale loads the target sprint and regenerates its mindmap
// when it is missing or older than the newest task. Failures here are soft:
// the worker proceeds to polling regardless.
func (w *Worker) planSprintIfStale(ctx context.Context) {
	sprint, err := w.loadSprint(ctx)
	if err != nil {
		w.logger.Warn("cannot load sprint, skipping planning", zap.Error(err))
		return
	}
	if sprint == nil {
		w.logger.Info("no active sprint, running in whole-workspace mode")
		return
	}
	// Pin the resolved sprint so later dispatches stay scoped to it.
	w.sprintID = sprint.ID
	log := w.logger.WithSprintID(sprint.ID)

	tasks, err := w.api.ListSprintTasks(ctx, sprint.ID)
	if err != nil {
		log.Warn("cannot list sprint tasks, skipping planning", zap.Error(err))
		return
	}
	if !sprint.MindmapStale(tasks) {
		log.Debug("sprint mindmap is fresh, reusing")
		return
	}

	log.Info("sprint mindmap is stale, replanning", zap.Int("tasks", len(tasks)))
	mindmap, err := w.planner.Plan(ctx, sprint, tasks)
	if err != nil {
		log.Warn("sprint planning failed", zap.Error(err))
		return
	}
	now := time.Now().UTC()
	err = w.api.UpdateSprint(ctx, sprint.ID, v1.UpdateSprintRequest{
		Mindmap:          &mindmap,
		MindmapUpdatedAt: &now,
	})
	if err != nil {
		log.Warn("cannot persist sprint mindmap", zap.Error(err))
		return
	}
	log.Info("sprint mindmap persisted")
}

func (w *Worker) loadSprint(ctx context.Context) (*v1.Sprint, error) {
	if w.sprintID != "" {
		return w.api.GetSprint(ctx, w.sprintID)
	}
	return w.api.GetActiveSprint(ctx)
}

// executeTask runs one claimed task: reindex, refetch, plan, execute,
// publish the outcome, then synchronize artifacts. Any error inside the
// pipeline becomes a task-level failure; the worker keeps running.
func (w *Worker) executeTask(ctx context.Context, claimed *v1.Task) {
	log := w.logger.WithTaskID(claimed.ID)
	log.Info("task claimed", zap.String("title", claimed.Title))

	ctx, span := tracing.Start(ctx, "worker.execute",
		attribute.String("agent_id", w.agentID),
		attribute.String("task_id", claimed.ID))
	defer span.End()

	if w.reindexer != nil {
		if _, err := w.reindexer.Reindex(ctx); err != nil {
			// Index absence just means leaner prompts.
			log.Warn("reindex failed", zap.Error(err))
		}
	}

	success, summary := w.runPipeline(ctx, claimed.ID, log)

	w.publishOutcome(ctx, claimed.ID, success, summary, log)

	if w.artifacts != nil {
		if err := w.artifacts.Sync(ctx); err != nil {
			log.Warn("artifact sync failed", zap.Error(err))
		}
	}

	if success {
		w.tasksCompleted++
		log.Info("task completed", zap.Int("tasks_completed", w.tasksCompleted))
	} else {
		w.tasksFailed++
		log.Warn("task failed", zap.String("summary", summary))
	}
}

// runPipeline runs the two-phase plan/execute protocol for one task.
func (w *Worker) runPipeline(ctx context.Context, taskID string, log *logger.Logger) (bool, string) {
	task, err := w.api.GetTask(ctx, taskID)
	if err != nil {
		return false, "Error: " + err.Error()
	}

	basePrompt := w.composer.Compose(task)

	plan, err := w.runPlanPhase(ctx, basePrompt)
	if err != nil {
		return false, "Error: " + err.Error()
	}
	log.Debug("plan phase complete", zap.Int("plan_length", len(plan)))

	execPrompt := basePrompt + "\n\nPhase 2: Execution\n\n" + plan +
		"\nWhen finished, output: " + PromiseToken
	result, err := w.execGenerator.Generate(ctx, execPrompt)
	if err != nil {
		return false, "Error: " + err.Error()
	}

	if strings.Contains(result.Text, PromiseToken) {
		return true, "Task completed by Claude"
	}
	return false, "Claude did not signal completion"
}

func (w *Worker) runPlanPhase(ctx context.Context, basePrompt string) (string, error) {
	ctx, span := tracing.Start(ctx, "worker.plan")
	defer span.End()

	if cached, ok := w.planGenerator.(llm.CachingTextGenerator); ok {
		result, err := cached.GenerateCached(ctx, executionSystemPrompt, []string{basePrompt}, planPhaseInstruction)
		if err != nil {
			return "", err
		}
		return result.Text, nil
	}
	result, err := w.planGenerator.Generate(ctx, basePrompt+"\n\n"+planPhaseInstruction)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// publishOutcome patches the task status and posts the outcome comment.
// Server update failures are logged and skipped; the server re-queues
// orphaned tasks.
func (w *Worker) publishOutcome(ctx context.Context, taskID string, success bool, summary string, log *logger.Logger) {
	var req v1.UpdateTaskRequest
	var comment string
	if success {
		status := v1.TaskStatusVerification
		req.Status = &status
		comment = "✅ " + summary
	} else {
		status := v1.TaskStatusBacklog
		var cleared *string
		req.Status = &status
		req.AssignedTo = &cleared
		comment = "❌ " + summary
	}

	if err := w.api.UpdateTask(ctx, taskID, req); err != nil {
		log.Warn("cannot update task status", zap.Error(err))
	}
	if err := w.api.CreateComment(ctx, taskID, v1.CreateCommentRequest{Author: w.agentID, Text: comment}); err != nil {
		log.Warn("cannot post outcome comment", zap.Error(err))
	}
}

func (w *Worker) sprintPtr() *string {
	if w.sprintID == "" {
		return nil
	}
	return &w.sprintID
}

func isNoTask(err error) bool {
	return errors.Is(err, api.ErrNoTask)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
