package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locusai/locus-agent/internal/llm"
)

func decodeEvents(t *testing.T, buf *bytes.Buffer) []Event {
	t.Helper()
	var events []Event
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(line), &ev), "line: %s", line)
		events = append(events, ev)
	}
	return events
}

func TestRendererLazyStart(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, RendererOptions{Model: "test-model"})

	// No explicit EmitStart: the first payload must synthesize it.
	require.NoError(t, r.EmitTextDelta("hello"))

	events := decodeEvents(t, &buf)
	require.Len(t, events, 2)
	assert.Equal(t, EventStart, events[0].Type)
	assert.Equal(t, "run", events[0].Command)
	assert.Equal(t, "test-model", events[0].Model)
	assert.Equal(t, EventTextDelta, events[1].Type)
	assert.Equal(t, "hello", events[1].Content)
}

func TestRendererStartIdempotent(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, RendererOptions{})

	require.NoError(t, r.EmitStart())
	require.NoError(t, r.EmitStart())
	require.NoError(t, r.EmitDone(0))

	events := decodeEvents(t, &buf)
	require.Len(t, events, 2)
	assert.Equal(t, EventStart, events[0].Type)
	assert.Equal(t, EventDone, events[1].Type)
}

func TestRendererDoneTerminatesStream(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, RendererOptions{})

	require.NoError(t, r.EmitStart())
	require.NoError(t, r.EmitDone(0))
	// Everything after done is dropped, including a second done.
	require.NoError(t, r.EmitTextDelta("late"))
	require.NoError(t, r.EmitDone(1))

	events := decodeEvents(t, &buf)
	require.Len(t, events, 2)
	done := events[1]
	assert.Equal(t, EventDone, done.Type)
	require.NotNil(t, done.ExitCode)
	assert.Equal(t, 0, *done.ExitCode)
	require.NotNil(t, done.Success)
	assert.True(t, *done.Success)
}

func TestRendererDoneWithoutStart(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, RendererOptions{})

	require.NoError(t, r.EmitDone(1))

	events := decodeEvents(t, &buf)
	require.Len(t, events, 2)
	assert.Equal(t, EventStart, events[0].Type)
	assert.Equal(t, EventDone, events[1].Type)
	require.NotNil(t, events[1].Success)
	assert.False(t, *events[1].Success)
}

func TestRendererSessionIDStable(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, RendererOptions{})

	require.NoError(t, r.EmitStart())
	require.NoError(t, r.EmitStatus("working"))
	require.NoError(t, r.EmitDone(0))

	events := decodeEvents(t, &buf)
	require.Len(t, events, 3)
	for _, ev := range events {
		assert.Equal(t, r.SessionID(), ev.SessionID)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestRendererToolLifecycle(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, RendererOptions{})

	require.NoError(t, r.EmitToolStarted("Read", "tu-1", map[string]any{"path": "main.go"}))
	require.NoError(t, r.EmitToolCompleted("", "tu-1", true, ""))
	require.NoError(t, r.EmitToolStarted("Bash", "tu-2", nil))
	require.NoError(t, r.EmitToolCompleted("", "tu-2", false, "exit 1"))
	require.NoError(t, r.EmitDone(0))

	events := decodeEvents(t, &buf)
	require.Len(t, events, 6) // start + 4 tool events + done

	completed := events[2]
	assert.Equal(t, EventToolCompleted, completed.Type)
	// Name recovered from the matching tool_started via the id.
	assert.Equal(t, "Read", completed.Tool)
	require.NotNil(t, completed.Duration)

	done := events[5]
	assert.Equal(t, []string{"Read", "Bash"}, done.ToolsUsed)
}

func TestRendererFail(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, RendererOptions{})

	require.NoError(t, r.Fail(errors.New("generator exploded")))

	events := decodeEvents(t, &buf)
	require.Len(t, events, 3)
	assert.Equal(t, EventStart, events[0].Type)
	assert.Equal(t, EventError, events[1].Type)
	require.NotNil(t, events[1].Error)
	assert.Equal(t, "UNKNOWN", events[1].Error.Code)
	assert.Equal(t, "generator exploded", events[1].Error.Message)
	assert.Equal(t, EventDone, events[2].Type)
	require.NotNil(t, events[2].ExitCode)
	assert.Equal(t, 1, *events[2].ExitCode)
}

func TestRendererHandleChunk(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, RendererOptions{})

	chunks := []llm.Chunk{
		{Type: llm.ChunkTextDelta, Text: "working on it"},
		{Type: llm.ChunkThinking, Text: "hmm"},
		{Type: llm.ChunkToolUse, ToolName: "Edit", ToolID: "tu-9"},
		{Type: llm.ChunkToolParameters, Parameters: map[string]any{"ignored": true}},
		{Type: llm.ChunkToolResult, ToolID: "tu-9", Success: true},
		{Type: llm.ChunkResult, Tokens: 1234},
	}
	for _, c := range chunks {
		require.NoError(t, r.HandleChunk(c))
	}
	require.NoError(t, r.EmitDone(0))

	events := decodeEvents(t, &buf)
	types := make([]EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	// tool_parameters and result chunks produce no events.
	assert.Equal(t, []EventType{
		EventStart, EventTextDelta, EventThinking,
		EventToolStarted, EventToolCompleted, EventDone,
	}, types)

	done := events[len(events)-1]
	require.NotNil(t, done.TokensUsed)
	assert.Equal(t, 1234, *done.TokensUsed)
}

func TestRendererUnknownChunkType(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, RendererOptions{})

	err := r.HandleChunk(llm.Chunk{Type: "mystery"})
	assert.Error(t, err)
}
