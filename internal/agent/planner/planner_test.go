package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locusai/locus-agent/internal/common/logger"
	"github.com/locusai/locus-agent/internal/llm"
	v1 "github.com/locusai/locus-agent/pkg/api/v1"
)

// flatGenerator hides the mock's caching side so the fallback path is hit.
type flatGenerator struct {
	mock *llm.MockGenerator
}

func (f *flatGenerator) Generate(ctx context.Context, prompt string) (*llm.Result, error) {
	return f.mock.Generate(ctx, prompt)
}

func sprintFixture() (*v1.Sprint, []v1.Task) {
	sprint := &v1.Sprint{ID: "s-1", Name: "Auth hardening", Status: v1.SprintStatusActive}
	tasks := []v1.Task{
		{Title: "Add rate limiting", Priority: v1.TaskPriorityHigh, Status: v1.TaskStatusBacklog, Description: "Limit login attempts.\nMore detail here."},
		{Title: "Rotate tokens", Priority: v1.TaskPriorityMedium, Status: v1.TaskStatusBacklog},
	}
	return sprint, tasks
}

func TestPlanUsesCachedVariant(t *testing.T) {
	gen := &llm.MockGenerator{Responses: []string{"```mermaid\nmindmap\n```"}}
	sprint, tasks := sprintFixture()

	out, err := New(gen, logger.Default()).Plan(context.Background(), sprint, tasks)
	require.NoError(t, err)
	assert.Equal(t, "```mermaid\nmindmap\n```", out)

	require.Len(t, gen.Calls, 1)
	call := gen.Calls[0]
	assert.True(t, call.Cached)
	require.Len(t, call.Segments, 1)
	assert.Contains(t, call.Segments[0], "# Sprint: Auth hardening")
	assert.Contains(t, call.Segments[0], "1. [HIGH] Add rate limiting (BACKLOG)")
	// Only the first description line makes it into the context.
	assert.Contains(t, call.Segments[0], "Limit login attempts.")
	assert.NotContains(t, call.Segments[0], "More detail here.")
}

func TestPlanFlatFallback(t *testing.T) {
	mock := &llm.MockGenerator{Responses: []string{"plan text"}}
	sprint, tasks := sprintFixture()

	out, err := New(&flatGenerator{mock: mock}, logger.Default()).Plan(context.Background(), sprint, tasks)
	require.NoError(t, err)
	assert.Equal(t, "plan text", out)

	require.Len(t, mock.Calls, 1)
	call := mock.Calls[0]
	assert.False(t, call.Cached)
	assert.Contains(t, call.Prompt, "# Sprint: Auth hardening")
	assert.Contains(t, call.Prompt, "2. [MEDIUM] Rotate tokens (BACKLOG)")
}

func TestPlanPropagatesGeneratorError(t *testing.T) {
	gen := &llm.MockGenerator{Err: errors.New("over capacity")}
	sprint, tasks := sprintFixture()

	_, err := New(gen, logger.Default()).Plan(context.Background(), sprint, tasks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "over capacity")
}
