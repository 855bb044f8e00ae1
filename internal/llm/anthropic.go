package llm

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/locusai/locus-agent/internal/common/logger"
)

// DefaultModel is used when no model is configured.
const DefaultModel = string(sdk.ModelClaudeSonnet4_5)

const defaultMaxTokens = 8192

// AnthropicGenerator implements CachingTextGenerator on the Anthropic
// Messages API. It has no filesystem side-effect capability, so the worker
// uses it for planning only.
type AnthropicGenerator struct {
	client    sdk.Client
	model     string
	maxTokens int64
	logger    *logger.Logger
}

var _ CachingTextGenerator = (*AnthropicGenerator)(nil)

// NewAnthropicGenerator creates a Messages API generator.
func NewAnthropicGenerator(apiKey, model string, log *logger.Logger) (*AnthropicGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	return &AnthropicGenerator{
		client:    sdk.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: defaultMaxTokens,
		logger:    log.WithFields(zap.String("component", "anthropic-generator")),
	}, nil
}

// Generate sends a single flat user prompt.
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string) (*Result, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	return g.send(ctx, params)
}

// GenerateCached sends a system prompt, cacheable context segments (the last
// one marked as the ephemeral cache breakpoint), and a user turn.
func (g *AnthropicGenerator) GenerateCached(ctx context.Context, system string, contextSegments []string, userPrompt string) (*Result, error) {
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(contextSegments)+1)
	for i, seg := range contextSegments {
		if seg == "" {
			continue
		}
		block := sdk.NewTextBlock(seg)
		if i == len(contextSegments)-1 && block.OfText != nil {
			block.OfText.CacheControl = sdk.NewCacheControlEphemeralParam()
		}
		blocks = append(blocks, block)
	}
	blocks = append(blocks, sdk.NewTextBlock(userPrompt))

	params := sdk.MessageNewParams{
		Model:     sdk.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	return g.send(ctx, params)
}

func (g *AnthropicGenerator) send(ctx context.Context, params sdk.MessageNewParams) (*Result, error) {
	msg, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	tokens := int(msg.Usage.InputTokens + msg.Usage.OutputTokens)
	g.logger.Debug("generation complete",
		zap.Int("input_tokens", int(msg.Usage.InputTokens)),
		zap.Int("output_tokens", int(msg.Usage.OutputTokens)),
		zap.Int("cache_read_tokens", int(msg.Usage.CacheReadInputTokens)),
		zap.String("stop_reason", string(msg.StopReason)))

	return &Result{Text: text, Tokens: tokens}, nil
}
