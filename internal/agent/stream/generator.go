package stream

import (
	"context"

	"github.com/locusai/locus-agent/internal/llm"
)

// RenderedGenerator wraps a streaming generator so every chunk is framed
// onto the renderer while the caller still gets the final aggregated
// result. The worker uses this for the execution phase so the NDJSON
// stream mirrors the CLI session in real time.
type RenderedGenerator struct {
	gen      llm.StreamingGenerator
	renderer *Renderer
}

// NewRenderedGenerator creates a RenderedGenerator.
func NewRenderedGenerator(gen llm.StreamingGenerator, renderer *Renderer) *RenderedGenerator {
	return &RenderedGenerator{gen: gen, renderer: renderer}
}

var _ llm.TextGenerator = (*RenderedGenerator)(nil)

// Generate runs the underlying streaming generation, forwarding each chunk
// to the renderer.
func (g *RenderedGenerator) Generate(ctx context.Context, prompt string) (*llm.Result, error) {
	return g.gen.GenerateStream(ctx, prompt, g.renderer.HandleChunk)
}
