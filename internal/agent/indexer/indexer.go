// Package indexer produces a structural summary of the source tree for
// prompt enrichment. The summary is generated by an LLM from the enumerated
// file list and persisted to .locus/codebase-index.json.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/locusai/locus-agent/internal/common/logger"
	"github.com/locusai/locus-agent/internal/common/workspace"
	"github.com/locusai/locus-agent/internal/llm"
	"github.com/locusai/locus-agent/internal/tracing"
)

// Index is the persisted structural snapshot of the source tree.
type Index struct {
	// Symbols maps a symbol name to the files that define it.
	Symbols map[string][]string `json:"symbols"`
	// Responsibilities maps a path to a one-line description.
	Responsibilities map[string]string `json:"responsibilities"`
	// FileCount is the number of files enumerated for the last regeneration.
	FileCount int `json:"fileCount,omitempty"`
	// LastIndexed is the RFC 3339 timestamp of the last regeneration.
	LastIndexed string `json:"lastIndexed"`
}

const summarizeInstruction = `You are a codebase analyst. Given the list of file paths below, infer the structure of the project.

Return a single JSON object with exactly two keys:
- "symbols": an object mapping likely class/function/type names to arrays of the file paths that define them
- "responsibilities": an object mapping each significant path (directories and key files) to a one-line description of its responsibility

Return strict JSON only. No markdown fences, no commentary.`

// Indexer regenerates and persists the codebase index.
type Indexer struct {
	projectPath string
	generator   llm.TextGenerator
	logger      *logger.Logger
}

// New creates an Indexer over the given project root.
func New(projectPath string, generator llm.TextGenerator, log *logger.Logger) *Indexer {
	return &Indexer{
		projectPath: projectPath,
		generator:   generator,
		logger:      log.WithFields(zap.String("component", "indexer")),
	}
}

// Reindex enumerates the tree, asks the LLM for a structural summary,
// stamps it, and persists it. Summarization failures degrade to an empty
// index rather than failing the caller.
func (ix *Indexer) Reindex(ctx context.Context) (*Index, error) {
	ctx, span := tracing.Start(ctx, "indexer.index")
	defer span.End()

	paths, err := EnumerateFiles(ix.projectPath)
	if err != nil {
		return nil, fmt.Errorf("enumerate files: %w", err)
	}
	ix.logger.Debug("enumerated source tree", zap.Int("files", len(paths)))

	index := ix.summarize(ctx, paths)
	index.FileCount = len(paths)
	index.LastIndexed = time.Now().UTC().Format(time.RFC3339)

	if err := ix.persist(index); err != nil {
		return nil, err
	}
	ix.logger.Info("codebase index updated",
		zap.Int("files", index.FileCount),
		zap.Int("symbols", len(index.Symbols)),
		zap.Int("responsibilities", len(index.Responsibilities)))
	return index, nil
}

// summarize runs the LLM over the path list. Any failure yields an empty
// index: absence of structure just means leaner prompts.
func (ix *Indexer) summarize(ctx context.Context, paths []string) *Index {
	empty := &Index{Symbols: map[string][]string{}, Responsibilities: map[string]string{}}
	if len(paths) == 0 {
		return empty
	}

	pathList := strings.Join(paths, "\n")
	var (
		result *llm.Result
		err    error
	)
	if cached, ok := ix.generator.(llm.CachingTextGenerator); ok {
		result, err = cached.GenerateCached(ctx, summarizeInstruction, []string{pathList}, "Return the JSON object now.")
	} else {
		result, err = ix.generator.Generate(ctx, summarizeInstruction+"\n\nFile paths:\n"+pathList)
	}
	if err != nil {
		ix.logger.Warn("index summarization failed", zap.Error(err))
		return empty
	}

	raw := extractJSONObject(result.Text)
	if raw == "" {
		ix.logger.Warn("no JSON object in summarization response")
		return empty
	}
	var index Index
	if err := json.Unmarshal([]byte(raw), &index); err != nil {
		ix.logger.Warn("failed to parse summarization response", zap.Error(err))
		return empty
	}
	if index.Symbols == nil {
		index.Symbols = map[string][]string{}
	}
	if index.Responsibilities == nil {
		index.Responsibilities = map[string]string{}
	}
	return &index
}

// persist writes the index to .locus/codebase-index.json, creating .locus
// if absent.
func (ix *Indexer) persist(index *Index) error {
	path := workspace.IndexPath(ix.projectPath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// Load returns the persisted index for a project, or nil when it is absent
// or unreadable.
func Load(projectPath string) *Index {
	data, err := os.ReadFile(workspace.IndexPath(projectPath))
	if err != nil {
		return nil
	}
	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil
	}
	return &index
}

// extractJSONObject returns the first balanced JSON object in s, tolerating
// models that wrap output in prose or fences despite instructions.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
