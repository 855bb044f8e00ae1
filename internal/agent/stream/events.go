// Package stream implements the framed NDJSON event protocol emitted on
// stdout during single-shot task execution, plus the per-task execution
// statistics that feed it.
package stream

import (
	"fmt"
	"time"
)

// EventType discriminates stream events.
type EventType string

const (
	EventStart         EventType = "start"
	EventTextDelta     EventType = "text_delta"
	EventThinking      EventType = "thinking"
	EventToolStarted   EventType = "tool_started"
	EventToolCompleted EventType = "tool_completed"
	EventStatus        EventType = "status"
	EventError         EventType = "error"
	EventDone          EventType = "done"
)

// Event is one NDJSON line. The Type determines which payload fields are
// populated.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`

	// For start events.
	Command  string `json:"command,omitempty"`
	Model    string `json:"model,omitempty"`
	Provider string `json:"provider,omitempty"`
	Cwd      string `json:"cwd,omitempty"`

	// For text_delta, thinking, and status events.
	Content string `json:"content,omitempty"`
	Message string `json:"message,omitempty"`

	// For tool_started and tool_completed events.
	Tool       string         `json:"tool,omitempty"`
	ToolID     string         `json:"toolId,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Success    *bool          `json:"success,omitempty"`
	Duration   *int64         `json:"duration,omitempty"` // milliseconds
	ToolError  string         `json:"toolError,omitempty"`

	// For error events.
	Error *ErrorPayload `json:"error,omitempty"`

	// For done events.
	ExitCode   *int     `json:"exitCode,omitempty"`
	ToolsUsed  []string `json:"toolsUsed,omitempty"`
	TokensUsed *int     `json:"tokensUsed,omitempty"`
}

// ErrorPayload describes a stream error.
type ErrorPayload struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Details     string `json:"details,omitempty"`
	Recoverable *bool  `json:"recoverable,omitempty"`
}

// Validate checks the per-type schema of an outbound event. A failure is a
// programmer error; callers treat it as fatal.
func (e *Event) Validate() error {
	if e.SessionID == "" {
		return fmt.Errorf("stream: %s event missing session id", e.Type)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("stream: %s event missing timestamp", e.Type)
	}
	switch e.Type {
	case EventStart:
		if e.Command == "" {
			return fmt.Errorf("stream: start event missing command")
		}
	case EventTextDelta, EventThinking:
		if e.Content == "" {
			return fmt.Errorf("stream: %s event missing content", e.Type)
		}
	case EventStatus:
		if e.Message == "" {
			return fmt.Errorf("stream: status event missing message")
		}
	case EventToolStarted:
		if e.Tool == "" {
			return fmt.Errorf("stream: tool_started event missing tool")
		}
	case EventToolCompleted:
		if e.Tool == "" {
			return fmt.Errorf("stream: tool_completed event missing tool")
		}
		if e.Success == nil {
			return fmt.Errorf("stream: tool_completed event missing success")
		}
		if e.Duration == nil {
			return fmt.Errorf("stream: tool_completed event missing duration")
		}
	case EventError:
		if e.Error == nil || e.Error.Code == "" || e.Error.Message == "" {
			return fmt.Errorf("stream: error event missing payload")
		}
	case EventDone:
		if e.ExitCode == nil {
			return fmt.Errorf("stream: done event missing exit code")
		}
		if e.Duration == nil {
			return fmt.Errorf("stream: done event missing duration")
		}
		if e.Success == nil {
			return fmt.Errorf("stream: done event missing success")
		}
	default:
		return fmt.Errorf("stream: unknown event type %q", e.Type)
	}
	return nil
}
