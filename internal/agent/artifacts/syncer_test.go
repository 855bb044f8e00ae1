package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locusai/locus-agent/internal/common/logger"
	"github.com/locusai/locus-agent/internal/common/workspace"
	v1 "github.com/locusai/locus-agent/pkg/api/v1"
)

// fakeDocsAPI is an in-memory docs backend recording write traffic.
type fakeDocsAPI struct {
	groups []v1.DocGroup
	docs   []v1.Doc

	creates       int
	updates       int
	groupsCreated int
	nextID        int
}

func (f *fakeDocsAPI) ListDocGroups(_ context.Context) ([]v1.DocGroup, error) {
	return f.groups, nil
}

func (f *fakeDocsAPI) CreateDocGroup(_ context.Context, req v1.CreateDocGroupRequest) (*v1.DocGroup, error) {
	f.groupsCreated++
	f.nextID++
	group := v1.DocGroup{ID: fmt.Sprintf("group-%d", f.nextID), Name: req.Name, Order: req.Order}
	f.groups = append(f.groups, group)
	return &group, nil
}

func (f *fakeDocsAPI) ListDocs(_ context.Context) ([]v1.Doc, error) {
	return f.docs, nil
}

func (f *fakeDocsAPI) CreateDoc(_ context.Context, req v1.CreateDocRequest) (*v1.Doc, error) {
	f.creates++
	f.nextID++
	doc := v1.Doc{ID: fmt.Sprintf("doc-%d", f.nextID), Title: req.Title, Content: req.Content, GroupID: req.GroupID}
	f.docs = append(f.docs, doc)
	return &doc, nil
}

func (f *fakeDocsAPI) UpdateDoc(_ context.Context, docID string, req v1.UpdateDocRequest) error {
	f.updates++
	for i := range f.docs {
		if f.docs[i].ID == docID {
			if req.Content != nil {
				f.docs[i].Content = *req.Content
			}
			if req.GroupID != nil {
				f.docs[i].GroupID = req.GroupID
			}
			return nil
		}
	}
	return fmt.Errorf("doc %s not found", docID)
}

func writeArtifact(t *testing.T, projectPath, name, content string) {
	t.Helper()
	dir := workspace.ArtifactsDir(projectPath)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestSyncCreatesGroupAndDocs(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "design-notes.md", "# Notes")
	writeArtifact(t, dir, "benchmarks.md", "fast enough")
	api := &fakeDocsAPI{}

	require.NoError(t, NewSyncer(dir, api, logger.Default()).Sync(context.Background()))

	require.Len(t, api.groups, 1)
	assert.Equal(t, GroupName, api.groups[0].Name)
	assert.Equal(t, GroupOrder, api.groups[0].Order)

	require.Len(t, api.docs, 2)
	titles := []string{api.docs[0].Title, api.docs[1].Title}
	assert.ElementsMatch(t, []string{"design-notes", "benchmarks"}, titles)
	for _, doc := range api.docs {
		require.NotNil(t, doc.GroupID)
		assert.Equal(t, api.groups[0].ID, *doc.GroupID)
	}
}

func TestSyncSecondRunIsNoOp(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "design-notes.md", "# Notes")
	api := &fakeDocsAPI{}
	syncer := NewSyncer(dir, api, logger.Default())

	require.NoError(t, syncer.Sync(context.Background()))
	require.NoError(t, syncer.Sync(context.Background()))

	// Unchanged content means zero writes on the second run, and the group
	// is only ever created once.
	assert.Equal(t, 1, api.creates)
	assert.Equal(t, 0, api.updates)
	assert.Equal(t, 1, api.groupsCreated)
}

func TestSyncUpdatesChangedContent(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "design-notes.md", "v1")
	api := &fakeDocsAPI{}
	syncer := NewSyncer(dir, api, logger.Default())

	require.NoError(t, syncer.Sync(context.Background()))
	writeArtifact(t, dir, "design-notes.md", "v2")
	require.NoError(t, syncer.Sync(context.Background()))

	assert.Equal(t, 1, api.creates)
	assert.Equal(t, 1, api.updates)
	assert.Equal(t, "v2", api.docs[0].Content)
}

func TestSyncAdoptsUngroupedDoc(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, dir, "design-notes.md", "# Notes")
	// Same title already on the server but outside the Artifacts group.
	api := &fakeDocsAPI{docs: []v1.Doc{{ID: "doc-legacy", Title: "design-notes", Content: "# Notes"}}}

	require.NoError(t, NewSyncer(dir, api, logger.Default()).Sync(context.Background()))

	assert.Equal(t, 0, api.creates)
	assert.Equal(t, 1, api.updates)
	require.NotNil(t, api.docs[0].GroupID)
}

func TestSyncMissingArtifactsDir(t *testing.T) {
	dir := t.TempDir()
	api := &fakeDocsAPI{}

	require.NoError(t, NewSyncer(dir, api, logger.Default()).Sync(context.Background()))
	assert.Equal(t, 0, api.groupsCreated)
	assert.Equal(t, 0, api.creates)
}
