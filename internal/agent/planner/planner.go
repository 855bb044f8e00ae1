// Package planner generates a one-shot sprint mindmap from sprint metadata
// and the sprint's task list.
package planner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/locusai/locus-agent/internal/common/logger"
	"github.com/locusai/locus-agent/internal/llm"
	"github.com/locusai/locus-agent/internal/tracing"
	v1 "github.com/locusai/locus-agent/pkg/api/v1"
)

const systemPrompt = `You are a technical project planner for a software engineering team.`

const planningInstruction = `Produce a sprint plan with the following parts:

1. Analyze the dependencies between the tasks listed above.
2. Prioritize the tasks, taking both priority labels and dependencies into account.
3. Emit a visual mindmap of the sprint as markdown or a mermaid diagram.
4. Emit an explicit execution order as a numbered list of task titles.

Rules:
- Output plain markdown (mermaid blocks are allowed).
- Do NOT write any files.
- Do NOT include absolute local filesystem paths in the output.`

// Planner produces sprint mindmaps.
type Planner struct {
	generator llm.TextGenerator
	logger    *logger.Logger
}

// New creates a Planner backed by the given generator. The cache-capable
// refinement is used when the generator offers it.
func New(generator llm.TextGenerator, log *logger.Logger) *Planner {
	return &Planner{
		generator: generator,
		logger:    log.WithFields(zap.String("component", "sprint-planner")),
	}
}

// Plan generates the mindmap text for a sprint and its ordered task list.
func (p *Planner) Plan(ctx context.Context, sprint *v1.Sprint, tasks []v1.Task) (string, error) {
	ctx, span := tracing.Start(ctx, "planner.plan")
	defer span.End()

	sprintContext := describeSprint(sprint, tasks)

	var (
		result *llm.Result
		err    error
	)
	if cached, ok := p.generator.(llm.CachingTextGenerator); ok {
		result, err = cached.GenerateCached(ctx, systemPrompt, []string{sprintContext}, planningInstruction)
	} else {
		result, err = p.generator.Generate(ctx, systemPrompt+"\n\n"+sprintContext+"\n\n"+planningInstruction)
	}
	if err != nil {
		return "", fmt.Errorf("generate sprint plan: %w", err)
	}

	p.logger.Info("sprint mindmap generated",
		zap.String("sprint_id", sprint.ID),
		zap.Int("tasks", len(tasks)),
		zap.Int("length", len(result.Text)))
	return result.Text, nil
}

// describeSprint renders the sprint and its tasks for the planning prompt.
func describeSprint(sprint *v1.Sprint, tasks []v1.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Sprint: %s\n\nStatus: %s\n\n## Tasks\n", sprint.Name, sprint.Status)
	for i, task := range tasks {
		fmt.Fprintf(&b, "\n%d. [%s] %s (%s)", i+1, task.Priority, task.Title, task.Status)
		if task.Description != "" {
			fmt.Fprintf(&b, "\n   %s", firstLine(task.Description))
		}
	}
	return b.String()
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
