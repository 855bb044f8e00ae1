// Package prompt deterministically assembles the per-task base prompt from
// task fields, project context, the codebase index, attached docs, and task
// history.
package prompt

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/locusai/locus-agent/internal/agent/indexer"
	"github.com/locusai/locus-agent/internal/common/logger"
	"github.com/locusai/locus-agent/internal/common/workspace"
	v1 "github.com/locusai/locus-agent/pkg/api/v1"
)

const (
	// maxStructureEntries caps the Project Structure section.
	maxStructureEntries = 15
	// maxSymbolEntries caps the Potentially Relevant Symbols section.
	maxSymbolEntries = 10
)

const instructionsSection = `## Instructions

1. Complete the task described above.
2. Save any documentation or write-ups you produce under ` + "`.locus/artifacts/`" + `, never in the project root.
3. Use relative paths only. Never write absolute local paths.
4. When the task is fully complete, output: <promise>COMPLETE</promise>`

// Composer builds base prompts for one project directory.
type Composer struct {
	projectPath string
	logger      *logger.Logger
}

// NewComposer creates a Composer rooted at the project directory.
func NewComposer(projectPath string, log *logger.Logger) *Composer {
	return &Composer{
		projectPath: projectPath,
		logger:      log.WithFields(zap.String("component", "prompt-composer")),
	}
}

// Compose renders the base prompt for a task. Sections whose source is
// empty or absent are omitted; file reads are soft failures.
func (c *Composer) Compose(task *v1.Task) string {
	var sections []string

	sections = append(sections, "# Task: "+task.Title)

	if task.AssigneeRole != nil && *task.AssigneeRole != "" {
		sections = append(sections, fmt.Sprintf("## Role\n\nYou are acting as a %s engineer.", *task.AssigneeRole))
	}

	description := task.Description
	if description == "" {
		description = "No description provided."
	}
	sections = append(sections, "## Description\n\n"+description)

	if ctx := c.readProjectContext(); ctx != "" {
		sections = append(sections, "## Project Context (from CLAUDE.md)\n\n"+ctx)
	}

	if overview := c.codebaseOverview(task); overview != "" {
		sections = append(sections, overview)
	}

	if docs := attachedDocs(task.Docs); docs != "" {
		sections = append(sections, docs)
	}

	if criteria := acceptanceCriteria(task.Checklist); criteria != "" {
		sections = append(sections, criteria)
	}

	if history := taskHistory(task.Comments); history != "" {
		sections = append(sections, history)
	}

	sections = append(sections, instructionsSection)

	return strings.Join(sections, "\n\n")
}

func (c *Composer) readProjectContext() string {
	data, err := os.ReadFile(workspace.ContextPath(c.projectPath))
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("cannot read CLAUDE.md", zap.Error(err))
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}

// codebaseOverview renders the Project Structure and Potentially Relevant
// Symbols subsections from the persisted index.
func (c *Composer) codebaseOverview(task *v1.Task) string {
	index := indexer.Load(c.projectPath)
	if index == nil {
		return ""
	}

	var parts []string

	if structure := projectStructure(index.Responsibilities); structure != "" {
		parts = append(parts, structure)
	}
	if symbols := relevantSymbols(index.Symbols, task.Title+" "+task.Description); symbols != "" {
		parts = append(parts, symbols)
	}
	if len(parts) == 0 {
		return ""
	}
	return "## Codebase Overview\n\n" + strings.Join(parts, "\n\n")
}

// projectStructure lists directory-level responsibilities: paths with at
// most two segments, or paths with no dot (plain directories).
func projectStructure(responsibilities map[string]string) string {
	paths := make([]string, 0, len(responsibilities))
	for path := range responsibilities {
		if strings.Count(path, "/") <= 1 || !strings.Contains(path, ".") {
			paths = append(paths, path)
		}
	}
	if len(paths) == 0 {
		return ""
	}
	sort.Strings(paths)
	if len(paths) > maxStructureEntries {
		paths = paths[:maxStructureEntries]
	}

	var b strings.Builder
	b.WriteString("### Project Structure\n")
	for _, path := range paths {
		fmt.Fprintf(&b, "\n- %s: %s", path, responsibilities[path])
	}
	return b.String()
}

// relevantSymbols lists symbols whose lowercased name appears in the task
// title or description.
func relevantSymbols(symbols map[string][]string, taskText string) string {
	haystack := strings.ToLower(taskText)

	names := make([]string, 0, len(symbols))
	for name := range symbols {
		if name != "" && strings.Contains(haystack, strings.ToLower(name)) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	if len(names) > maxSymbolEntries {
		names = names[:maxSymbolEntries]
	}

	var b strings.Builder
	b.WriteString("### Potentially Relevant Symbols\n")
	for _, name := range names {
		fmt.Fprintf(&b, "\n- `%s` is defined in: %s", name, strings.Join(symbols[name], ", "))
	}
	return b.String()
}

func attachedDocs(docs []v1.Doc) string {
	if len(docs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Attached Documents")
	for _, doc := range docs {
		content := doc.Content
		if content == "" {
			content = "(No content)"
		}
		fmt.Fprintf(&b, "\n\n### %s\n%s", doc.Title, content)
	}
	return b.String()
}

func acceptanceCriteria(items []v1.ChecklistItem) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Acceptance Criteria")
	for _, item := range items {
		mark := " "
		if item.Done {
			mark = "x"
		}
		fmt.Fprintf(&b, "\n- [%s] %s", mark, item.Text)
	}
	return b.String()
}

func taskHistory(comments []v1.Comment) string {
	if len(comments) == 0 {
		return ""
	}
	ordered := make([]v1.Comment, len(comments))
	copy(ordered, comments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	var b strings.Builder
	b.WriteString("## Task History & Feedback")
	for _, comment := range ordered {
		fmt.Fprintf(&b, "\n\n### %s (%s)\n%s",
			comment.Author, comment.CreatedAt.Local().Format("2006-01-02 15:04:05"), comment.Text)
	}
	return b.String()
}
