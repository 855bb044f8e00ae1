// Package artifacts synchronizes agent-authored files under
// .locus/artifacts/ to the server as docs in the "Artifacts" group.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/locusai/locus-agent/internal/common/logger"
	"github.com/locusai/locus-agent/internal/common/workspace"
	"github.com/locusai/locus-agent/internal/tracing"
	v1 "github.com/locusai/locus-agent/pkg/api/v1"
)

const (
	// GroupName is the doc group artifacts are filed under. Created on
	// demand, exactly once per workspace.
	GroupName = "Artifacts"
	// GroupOrder sorts the artifacts group after user-created groups.
	GroupOrder = 999
)

// DocsAPI is the subset of the server client the syncer uses. Extracted as
// an interface to enable testing with a fake server.
type DocsAPI interface {
	ListDocGroups(ctx context.Context) ([]v1.DocGroup, error)
	CreateDocGroup(ctx context.Context, req v1.CreateDocGroupRequest) (*v1.DocGroup, error)
	ListDocs(ctx context.Context) ([]v1.Doc, error)
	CreateDoc(ctx context.Context, req v1.CreateDocRequest) (*v1.Doc, error)
	UpdateDoc(ctx context.Context, docID string, req v1.UpdateDocRequest) error
}

// Syncer pushes local artifact files to the server.
type Syncer struct {
	projectPath string
	api         DocsAPI
	logger      *logger.Logger
}

// NewSyncer creates a Syncer for one project directory.
func NewSyncer(projectPath string, api DocsAPI, log *logger.Logger) *Syncer {
	return &Syncer{
		projectPath: projectPath,
		api:         api,
		logger:      log.WithFields(zap.String("component", "artifact-syncer")),
	}
}

// Sync uploads every artifact file whose server copy is missing or differs.
// Content equality with server state means no write at all.
func (s *Syncer) Sync(ctx context.Context) error {
	ctx, span := tracing.Start(ctx, "artifacts.sync")
	defer span.End()

	files, err := s.listArtifactFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}

	groupID, err := s.ensureGroup(ctx)
	if err != nil {
		return err
	}

	docs, err := s.api.ListDocs(ctx)
	if err != nil {
		return fmt.Errorf("list docs: %w", err)
	}
	byTitle := make(map[string]*v1.Doc, len(docs))
	for i := range docs {
		byTitle[docs[i].Title] = &docs[i]
	}

	var created, updated int
	for _, file := range files {
		title := strings.TrimSuffix(filepath.Base(file), ".md")
		if title == "" {
			continue
		}
		content, err := os.ReadFile(file)
		if err != nil {
			s.logger.Warn("cannot read artifact", zap.String("file", file), zap.Error(err))
			continue
		}
		text := string(content)

		existing := byTitle[title]
		switch {
		case existing == nil:
			if _, err := s.api.CreateDoc(ctx, v1.CreateDocRequest{Title: title, Content: text, GroupID: &groupID}); err != nil {
				return fmt.Errorf("create doc %q: %w", title, err)
			}
			created++
		case existing.Content != text || existing.GroupID == nil || *existing.GroupID != groupID:
			if err := s.api.UpdateDoc(ctx, existing.ID, v1.UpdateDocRequest{Content: &text, GroupID: &groupID}); err != nil {
				return fmt.Errorf("update doc %q: %w", title, err)
			}
			updated++
		}
	}

	if created > 0 || updated > 0 {
		s.logger.Info("artifacts synchronized", zap.Int("created", created), zap.Int("updated", updated))
	}
	return nil
}

// ensureGroup returns the Artifacts group id, creating the group when the
// workspace does not have one yet.
func (s *Syncer) ensureGroup(ctx context.Context) (string, error) {
	groups, err := s.api.ListDocGroups(ctx)
	if err != nil {
		return "", fmt.Errorf("list doc groups: %w", err)
	}
	for _, group := range groups {
		if group.Name == GroupName {
			return group.ID, nil
		}
	}
	group, err := s.api.CreateDocGroup(ctx, v1.CreateDocGroupRequest{Name: GroupName, Order: GroupOrder})
	if err != nil {
		return "", fmt.Errorf("create doc group: %w", err)
	}
	return group.ID, nil
}

// listArtifactFiles returns the sorted regular files directly under the
// artifacts directory. A missing directory means nothing to sync.
func (s *Syncer) listArtifactFiles() ([]string, error) {
	dir := workspace.ArtifactsDir(s.projectPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read artifacts dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
