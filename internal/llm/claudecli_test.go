package llm

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locusai/locus-agent/internal/common/logger"
)

func newCLIGenerator(t *testing.T) *ClaudeCLIGenerator {
	t.Helper()
	return NewClaudeCLIGenerator(ClaudeCLIOptions{}, logger.Default())
}

func TestConsumeStreamFullSession(t *testing.T) {
	stream := strings.Join([]string{
		`{"type":"system","session_id":"abc"}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"thinking","thinking":"let me look"}]}}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","id":"tu-1","name":"Read","input":{"path":"main.go"}}]}}`,
		`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"tu-1","content":"package main"}]}}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"Fixed. "},{"type":"text","text":"<promise>COMPLETE</promise>"}]}}`,
		`{"type":"result","subtype":"success","result":"Fixed. <promise>COMPLETE</promise>","total_input_tokens":500,"total_output_tokens":80}`,
	}, "\n")

	var chunks []Chunk
	result, err := newCLIGenerator(t).consumeStream(strings.NewReader(stream), func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "Fixed. <promise>COMPLETE</promise>", result.Text)
	assert.Equal(t, 580, result.Tokens)

	types := make([]ChunkType, len(chunks))
	for i, c := range chunks {
		types[i] = c.Type
	}
	assert.Equal(t, []ChunkType{
		ChunkThinking, ChunkToolUse, ChunkToolResult,
		ChunkTextDelta, ChunkTextDelta, ChunkResult,
	}, types)

	assert.Equal(t, "Read", chunks[1].ToolName)
	assert.Equal(t, "tu-1", chunks[1].ToolID)
	assert.Equal(t, map[string]any{"path": "main.go"}, chunks[1].Parameters)
	assert.True(t, chunks[2].Success)
}

func TestConsumeStreamSkipsNoise(t *testing.T) {
	stream := strings.Join([]string{
		"starting up...",
		"{not json at all",
		`{"type":"result","result":"done","total_output_tokens":5}`,
	}, "\n")

	result, err := newCLIGenerator(t).consumeStream(strings.NewReader(stream), nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "done", result.Text)
}

func TestConsumeStreamErrorResult(t *testing.T) {
	stream := `{"type":"result","subtype":"error","is_error":true,"result":"credit exhausted"}`

	_, err := newCLIGenerator(t).consumeStream(strings.NewReader(stream), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credit exhausted")
}

func TestConsumeStreamNoResultMessage(t *testing.T) {
	stream := `{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"partial"}]}}`

	result, err := newCLIGenerator(t).consumeStream(strings.NewReader(stream), nil)
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestConsumeStreamAccumulatedTextFallback(t *testing.T) {
	// A result message without a result payload falls back to the
	// accumulated assistant text.
	stream := strings.Join([]string{
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"hello "}]}}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"world"}]}}`,
		`{"type":"result","subtype":"success"}`,
	}, "\n")

	result, err := newCLIGenerator(t).consumeStream(strings.NewReader(stream), nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "hello world", result.Text)
}

func TestConsumeStreamFailedToolResult(t *testing.T) {
	stream := strings.Join([]string{
		`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"tu-1","is_error":true,"content":"permission denied"}]}}`,
		`{"type":"result","result":"gave up"}`,
	}, "\n")

	var chunks []Chunk
	_, err := newCLIGenerator(t).consumeStream(strings.NewReader(stream), func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, ChunkToolResult, chunks[0].Type)
	assert.False(t, chunks[0].Success)
	assert.Equal(t, "permission denied", chunks[0].ToolError)
}

func TestConsumeStreamToolResultInUserMessage(t *testing.T) {
	stream := strings.Join([]string{
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","id":"tu-1","name":"Bash","input":{"command":"ls"}}]}}`,
		`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"tu-1","content":"main.go"}]}}`,
		`{"type":"result","result":"done"}`,
	}, "\n")

	var chunks []Chunk
	_, err := newCLIGenerator(t).consumeStream(strings.NewReader(stream), func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, ChunkToolResult, chunks[1].Type)
	assert.Equal(t, "tu-1", chunks[1].ToolID)
	assert.True(t, chunks[1].Success)
}

func TestConsumeStreamArrayToolResultContent(t *testing.T) {
	stream := strings.Join([]string{
		`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"tu-1","is_error":true,"content":[{"type":"text","text":"line 1"},{"type":"text","text":"line 2"}]}]}}`,
		`{"type":"result","result":"done"}`,
	}, "\n")

	var chunks []Chunk
	_, err := newCLIGenerator(t).consumeStream(strings.NewReader(stream), func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, ChunkToolResult, chunks[0].Type)
	assert.Equal(t, "line 1\nline 2", chunks[0].ToolError)
}

func TestConsumeStreamHandlerErrorAborts(t *testing.T) {
	stream := strings.Join([]string{
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"first"}]}}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"second"}]}}`,
		`{"type":"result","result":"done"}`,
	}, "\n")

	calls := 0
	result, err := newCLIGenerator(t).consumeStream(strings.NewReader(stream), func(c Chunk) error {
		calls++
		return errors.New("sink closed")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink closed")
	assert.Nil(t, result)
	assert.Equal(t, 1, calls)
}

func TestToolResultContentShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string", `{"type":"tool_result","tool_use_id":"t1","content":"hello world"}`, "hello world"},
		{"array of text blocks", `{"type":"tool_result","tool_use_id":"t1","content":[{"type":"text","text":"line 1"},{"type":"text","text":"line 2"}]}`, "line 1\nline 2"},
		{"single block array", `{"type":"tool_result","tool_use_id":"t1","content":[{"type":"text","text":"only line"}]}`, "only line"},
		{"absent", `{"type":"tool_result","tool_use_id":"t1"}`, ""},
		{"unknown shape dropped", `{"type":"tool_result","tool_use_id":"t1","content":{"weird":true}}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var block cliContentBlock
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &block))
			assert.Equal(t, tt.want, block.Content.String())
		})
	}
}

func TestResultTextShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string", `{"type":"result","result":"plain"}`, "plain"},
		{"object", `{"type":"result","result":{"text":"wrapped"}}`, "wrapped"},
		{"absent", `{"type":"result"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg cliMessage
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &msg))
			assert.Equal(t, tt.want, msg.resultText())
		})
	}
}
