package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/locusai/locus-agent/internal/common/logger"
)

// ClaudeCLIGenerator implements StreamingGenerator by driving the Claude
// CLI in one-shot print mode with the stream-json output format. This is
// the only transport with filesystem side-effect capability, so the worker
// uses it for the execution phase.
type ClaudeCLIGenerator struct {
	binary  string
	model   string
	workDir string
	env     []string
	logger  *logger.Logger
}

var _ StreamingGenerator = (*ClaudeCLIGenerator)(nil)

// ClaudeCLIOptions configures a ClaudeCLIGenerator.
type ClaudeCLIOptions struct {
	Binary  string // defaults to "claude" on PATH
	Model   string // optional model override
	WorkDir string // the project directory the CLI operates on
	APIKey  string // optional ANTHROPIC_API_KEY override for the subprocess
}

// NewClaudeCLIGenerator creates a Claude CLI subprocess generator.
func NewClaudeCLIGenerator(opts ClaudeCLIOptions, log *logger.Logger) *ClaudeCLIGenerator {
	binary := opts.Binary
	if binary == "" {
		binary = "claude"
	}
	env := os.Environ()
	if opts.APIKey != "" {
		env = append(env, "ANTHROPIC_API_KEY="+opts.APIKey)
	}
	return &ClaudeCLIGenerator{
		binary:  binary,
		model:   opts.Model,
		workDir: opts.WorkDir,
		env:     env,
		logger:  log.WithFields(zap.String("component", "claude-cli")),
	}
}

// Generate runs the CLI to completion and returns the final text.
func (g *ClaudeCLIGenerator) Generate(ctx context.Context, prompt string) (*Result, error) {
	return g.GenerateStream(ctx, prompt, nil)
}

// GenerateStream runs the CLI, forwarding typed chunks to onChunk as the
// stream-json protocol produces them. A nil onChunk discards chunks.
func (g *ClaudeCLIGenerator) GenerateStream(ctx context.Context, prompt string, onChunk ChunkHandler) (*Result, error) {
	args := []string{
		"-p", prompt,
		"--output-format", "stream-json",
		"--verbose",
		"--dangerously-skip-permissions",
	}
	if g.model != "" {
		args = append(args, "--model", g.model)
	}

	cmd := exec.CommandContext(ctx, g.binary, args...)
	cmd.Dir = g.workDir
	cmd.Env = g.env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", g.binary, err)
	}
	g.logger.Debug("claude cli started", zap.Int("pid", cmd.Process.Pid))

	result, scanErr := g.consumeStream(stdout, onChunk)

	waitErr := cmd.Wait()
	switch {
	case scanErr != nil:
		return nil, scanErr
	case waitErr != nil && result == nil:
		return nil, fmt.Errorf("%s exited: %w: %s", g.binary, waitErr, truncateStderr(&stderr))
	case result == nil:
		return nil, fmt.Errorf("%s produced no result message", g.binary)
	}
	return result, nil
}

// consumeStream reads NDJSON lines from the CLI stdout, emits chunks, and
// accumulates the final result. Lines that fail to parse are skipped: the
// CLI interleaves diagnostic output in verbose mode.
func (g *ClaudeCLIGenerator) consumeStream(stdout io.Reader, onChunk ChunkHandler) (*Result, error) {
	emit := onChunk
	if emit == nil {
		emit = func(Chunk) error { return nil }
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineSize)

	var (
		text   strings.Builder
		result *Result
	)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var msg cliMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			g.logger.Debug("skipping unparseable stream line", zap.Error(err))
			continue
		}

		switch msg.Type {
		case cliMessageAssistant:
			if msg.Message == nil {
				continue
			}
			for _, block := range msg.Message.Content {
				var err error
				switch block.Type {
				case "text":
					text.WriteString(block.Text)
					err = emit(Chunk{Type: ChunkTextDelta, Text: block.Text})
				case "thinking":
					err = emit(Chunk{Type: ChunkThinking, Text: block.Thinking})
				case "tool_use":
					err = emit(Chunk{Type: ChunkToolUse, ToolName: block.Name, ToolID: block.ID, Parameters: block.Input})
				}
				if err != nil {
					return nil, err
				}
			}
		case cliMessageUser:
			// The CLI echoes tool outcomes back as user-role messages.
			if msg.Message == nil {
				continue
			}
			for _, block := range msg.Message.Content {
				if block.Type != "tool_result" {
					continue
				}
				err := emit(Chunk{Type: ChunkToolResult, ToolID: block.ToolUseID, Success: !block.IsError, ToolError: toolErrorText(block)})
				if err != nil {
					return nil, err
				}
			}
		case cliMessageResult:
			final := text.String()
			if s := msg.resultText(); s != "" {
				final = s
			}
			tokens := int(msg.TotalInputTokens + msg.TotalOutputTokens)
			result = &Result{Text: final, Tokens: tokens}
			if err := emit(Chunk{Type: ChunkResult, Tokens: tokens}); err != nil {
				return nil, err
			}
			if msg.IsError {
				return nil, fmt.Errorf("%s reported error result: %s", g.binary, final)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s stream: %w", g.binary, err)
	}
	return result, nil
}

func toolErrorText(block cliContentBlock) string {
	if !block.IsError {
		return ""
	}
	return block.Content.String()
}

func truncateStderr(buf *bytes.Buffer) string {
	s := strings.TrimSpace(buf.String())
	if len(s) > 512 {
		return s[:512] + "..."
	}
	return s
}

// The CLI emits very long lines for large tool results.
const maxStreamLineSize = 10 * 1024 * 1024

// Message types from the Claude CLI stream-json protocol.
const (
	cliMessageSystem    = "system"
	cliMessageAssistant = "assistant"
	cliMessageUser      = "user"
	cliMessageResult    = "result"
)

// cliMessage is one stdout line from the CLI. The type field determines
// which fields are populated.
type cliMessage struct {
	Type string `json:"type"`

	// For system messages.
	SessionID string `json:"session_id,omitempty"`

	// For assistant and user messages.
	Message *cliInnerMessage `json:"message,omitempty"`

	// For result messages. Result is either a string or an object.
	Result            json.RawMessage `json:"result,omitempty"`
	Subtype           string          `json:"subtype,omitempty"`
	IsError           bool            `json:"is_error,omitempty"`
	DurationMS        int64           `json:"duration_ms,omitempty"`
	NumTurns          int             `json:"num_turns,omitempty"`
	TotalInputTokens  int64           `json:"total_input_tokens,omitempty"`
	TotalOutputTokens int64           `json:"total_output_tokens,omitempty"`
}

// resultText extracts the result payload whether it arrived as a plain
// string or as an object with a text field.
func (m *cliMessage) resultText() string {
	if len(m.Result) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Result, &s); err == nil {
		return s
	}
	var data struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(m.Result, &data); err == nil {
		return data.Text
	}
	return ""
}

type cliInnerMessage struct {
	Role    string            `json:"role"`
	Content []cliContentBlock `json:"content,omitempty"`
	Model   string            `json:"model,omitempty"`
}

type cliContentBlock struct {
	Type string `json:"type"`

	// For text blocks.
	Text string `json:"text,omitempty"`

	// For thinking blocks.
	Thinking string `json:"thinking,omitempty"`

	// For tool_use blocks.
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// For tool_result blocks.
	ToolUseID string            `json:"tool_use_id,omitempty"`
	Content   toolResultContent `json:"content,omitempty"`
	IsError   bool              `json:"is_error,omitempty"`
}

// toolResultContent accepts the two shapes the CLI uses for tool_result
// content: a plain string, or an array of text blocks.
type toolResultContent string

func (c *toolResultContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = toolResultContent(s)
		return nil
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &blocks); err != nil {
		// Unknown shape. Drop the content rather than the whole message.
		*c = ""
		return nil
	}
	lines := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == "text" {
			lines = append(lines, b.Text)
		}
	}
	*c = toolResultContent(strings.Join(lines, "\n"))
	return nil
}

func (c toolResultContent) String() string {
	return string(c)
}
