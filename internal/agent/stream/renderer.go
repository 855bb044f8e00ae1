package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/locusai/locus-agent/internal/llm"
)

// Renderer emits framed NDJSON lifecycle events for one session. Exactly
// one start event precedes all others (synthesized lazily if needed) and
// exactly one done event terminates the stream.
type Renderer struct {
	mu        sync.Mutex
	out       io.Writer
	sessionID string
	stats     *ExecutionStats

	started bool
	done    bool

	// start metadata, used by the lazy start.
	command  string
	model    string
	provider string
	cwd      string
}

// RendererOptions configures the start event metadata.
type RendererOptions struct {
	Command  string
	Model    string
	Provider string
	Cwd      string
}

// NewRenderer creates a Renderer writing to out.
func NewRenderer(out io.Writer, opts RendererOptions) *Renderer {
	command := opts.Command
	if command == "" {
		command = "run"
	}
	return &Renderer{
		out:       out,
		sessionID: uuid.NewString(),
		stats:     NewExecutionStats(),
		command:   command,
		model:     opts.Model,
		provider:  opts.Provider,
		cwd:       opts.Cwd,
	}
}

// SessionID returns the session id stamped on every event.
func (r *Renderer) SessionID() string {
	return r.sessionID
}

// Stats returns the execution statistics accumulated by this renderer.
func (r *Renderer) Stats() *ExecutionStats {
	return r.stats
}

// EmitStart emits the start event. A second call is a no-op.
func (r *Renderer) EmitStart() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startLocked()
}

func (r *Renderer) startLocked() error {
	if r.started {
		return nil
	}
	r.started = true
	return r.writeLocked(&Event{
		Type:     EventStart,
		Command:  r.command,
		Model:    r.model,
		Provider: r.provider,
		Cwd:      r.cwd,
	})
}

// EmitStatus emits a status event.
func (r *Renderer) EmitStatus(message string) error {
	return r.emitPayload(&Event{Type: EventStatus, Message: message})
}

// EmitTextDelta emits a text_delta event.
func (r *Renderer) EmitTextDelta(content string) error {
	return r.emitPayload(&Event{Type: EventTextDelta, Content: content})
}

// EmitThinking emits a thinking event.
func (r *Renderer) EmitThinking(content string) error {
	return r.emitPayload(&Event{Type: EventThinking, Content: content})
}

// EmitToolStarted emits a tool_started event and records the invocation.
func (r *Renderer) EmitToolStarted(tool, toolID string, parameters map[string]any) error {
	r.stats.RecordToolStart(tool, toolID)
	return r.emitPayload(&Event{
		Type:       EventToolStarted,
		Tool:       tool,
		ToolID:     toolID,
		Parameters: parameters,
	})
}

// EmitToolCompleted emits a tool_completed event and completes the matching
// invocation in the stats.
func (r *Renderer) EmitToolCompleted(tool, toolID string, success bool, toolErr string) error {
	inv := r.stats.RecordToolEnd(tool, toolID, success, toolErr)
	name := tool
	var durationMS int64
	if inv != nil {
		name = inv.Name
		if inv.Duration != nil {
			durationMS = inv.Duration.Milliseconds()
		}
	}
	if name == "" {
		// A completion that matched nothing (id-only, start never seen).
		name = "unknown"
	}
	return r.emitPayload(&Event{
		Type:      EventToolCompleted,
		Tool:      name,
		ToolID:    toolID,
		Success:   &success,
		Duration:  &durationMS,
		ToolError: toolErr,
	})
}

// EmitError emits an error event and records it on the stats.
func (r *Renderer) EmitError(code, message string) error {
	r.stats.RecordError(message)
	return r.emitPayload(&Event{
		Type:  EventError,
		Error: &ErrorPayload{Code: code, Message: message},
	})
}

// EmitDone emits the single done event. Subsequent calls are no-ops.
func (r *Renderer) EmitDone(exitCode int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return nil
	}
	if err := r.startLocked(); err != nil {
		return err
	}
	r.done = true

	durationMS := r.stats.Finish().Milliseconds()
	success := exitCode == 0
	event := &Event{
		Type:      EventDone,
		ExitCode:  &exitCode,
		Duration:  &durationMS,
		Success:   &success,
		ToolsUsed: r.stats.ToolNamesInOrder(),
	}
	if tokens := r.stats.TokensUsed(); tokens > 0 {
		event.TokensUsed = &tokens
	}
	return r.writeLocked(event)
}

// Fail emits an error event followed by done(1), in that order.
func (r *Renderer) Fail(err error) error {
	if emitErr := r.EmitError("UNKNOWN", err.Error()); emitErr != nil {
		return emitErr
	}
	return r.EmitDone(1)
}

// HandleChunk translates one generator chunk into the corresponding event.
// tool_parameters chunks are suppressed (parameters arrive with tool_use)
// and result chunks only feed token totals (the text was already streamed).
func (r *Renderer) HandleChunk(chunk llm.Chunk) error {
	switch chunk.Type {
	case llm.ChunkTextDelta:
		return r.EmitTextDelta(chunk.Text)
	case llm.ChunkThinking:
		return r.EmitThinking(chunk.Text)
	case llm.ChunkToolUse:
		return r.EmitToolStarted(chunk.ToolName, chunk.ToolID, chunk.Parameters)
	case llm.ChunkToolResult:
		return r.EmitToolCompleted(chunk.ToolName, chunk.ToolID, chunk.Success, chunk.ToolError)
	case llm.ChunkToolParameters:
		return nil
	case llm.ChunkResult:
		r.stats.AddTokens(chunk.Tokens)
		return nil
	case llm.ChunkError:
		return r.EmitError("UNKNOWN", chunk.Err)
	default:
		return fmt.Errorf("stream: unknown chunk type %q", chunk.Type)
	}
}

// emitPayload lazily emits start, then the event. Events after done are
// dropped: the stream contract guarantees done is last.
func (r *Renderer) emitPayload(event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return nil
	}
	if err := r.startLocked(); err != nil {
		return err
	}
	return r.writeLocked(event)
}

// writeLocked validates, serializes, and writes one event line.
func (r *Renderer) writeLocked(event *Event) error {
	event.SessionID = r.sessionID
	event.Timestamp = time.Now().UTC()
	if err := event.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("stream: marshal %s event: %w", event.Type, err)
	}
	if _, err := r.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("stream: write %s event: %w", event.Type, err)
	}
	return nil
}
