package workspace

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCreatesLayout(t *testing.T) {
	dir := t.TempDir()

	created, err := Init(dir)
	require.NoError(t, err)
	assert.True(t, created)

	assert.DirExists(t, ArtifactsDir(dir))
	assert.FileExists(t, ConfigPath(dir))
	assert.FileExists(t, ContextPath(dir))
	assert.True(t, IsInitialized(dir))

	cfg, err := LoadProjectConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, ConfigVersion, cfg.Version)
	assert.False(t, cfg.CreatedAt.IsZero())
}

func TestInitIdempotent(t *testing.T) {
	dir := t.TempDir()

	created, err := Init(dir)
	require.NoError(t, err)
	require.True(t, created)

	first, err := LoadProjectConfig(dir)
	require.NoError(t, err)

	created, err = Init(dir)
	require.NoError(t, err)
	assert.False(t, created)

	second, err := LoadProjectConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestInitPreservesExistingContextFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(ContextPath(dir), []byte("my notes"), 0o644))

	_, err := Init(dir)
	require.NoError(t, err)

	data, err := os.ReadFile(ContextPath(dir))
	require.NoError(t, err)
	assert.Equal(t, "my notes", string(data))
}

func TestRequireInitialized(t *testing.T) {
	dir := t.TempDir()
	assert.ErrorIs(t, RequireInitialized(dir), ErrNotInitialized)

	_, err := Init(dir)
	require.NoError(t, err)
	assert.NoError(t, RequireInitialized(dir))
}
