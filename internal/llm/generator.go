// Package llm abstracts the two text-generation transports the agent can
// drive: the Anthropic Messages API (cache-capable, no filesystem access)
// and the Claude CLI subprocess (flat prompt, full filesystem side-effects).
package llm

import "context"

// Result is the outcome of one generation call.
type Result struct {
	// Text is the full assistant text, concatenated across blocks.
	Text string
	// Tokens is the total token count reported by the transport, when known.
	Tokens int
}

// TextGenerator produces text from a single flat prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (*Result, error)
}

// CachingTextGenerator is the refinement offered by API transports that
// support prompt caching. Context segments are cacheable; the implementation
// marks the final segment as the cache breakpoint.
type CachingTextGenerator interface {
	TextGenerator
	GenerateCached(ctx context.Context, system string, contextSegments []string, userPrompt string) (*Result, error)
}

// ChunkType discriminates streaming chunks.
type ChunkType string

const (
	ChunkTextDelta      ChunkType = "text_delta"
	ChunkThinking       ChunkType = "thinking"
	ChunkToolUse        ChunkType = "tool_use"
	ChunkToolResult     ChunkType = "tool_result"
	ChunkToolParameters ChunkType = "tool_parameters"
	ChunkResult         ChunkType = "result"
	ChunkError          ChunkType = "error"
)

// Chunk is one typed streaming event from a generator. The Type determines
// which fields are populated.
type Chunk struct {
	Type ChunkType

	// For text_delta and thinking chunks.
	Text string

	// For tool_use, tool_result, and tool_parameters chunks.
	ToolName   string
	ToolID     string
	Parameters map[string]any
	Success    bool
	ToolError  string

	// For result chunks.
	Tokens int

	// For error chunks.
	Err string
}

// ChunkHandler receives streaming chunks in arrival order. A non-nil error
// aborts the stream and is returned from GenerateStream.
type ChunkHandler func(Chunk) error

// StreamingGenerator is offered by transports that surface incremental
// progress. The final Result is returned after the stream ends.
type StreamingGenerator interface {
	TextGenerator
	GenerateStream(ctx context.Context, prompt string, onChunk ChunkHandler) (*Result, error)
}
