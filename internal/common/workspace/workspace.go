// Package workspace manages the project-local .locus directory: the config
// file, the codebase index, and the artifacts directory.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNotInitialized is returned when a command that requires `locus init`
// runs in a project without a .locus directory.
var ErrNotInitialized = errors.New("project is not initialized: run `locus init` first")

const (
	// DirName is the name of the project-local state directory.
	DirName = ".locus"
	// ConfigFileName is the agent config file inside DirName.
	ConfigFileName = "config.json"
	// IndexFileName is the persisted codebase index inside DirName.
	IndexFileName = "codebase-index.json"
	// ArtifactsDirName holds agent-authored markdown inside DirName.
	ArtifactsDirName = "artifacts"
	// ContextFileName is the project context file at the project root.
	ContextFileName = "CLAUDE.md"

	// ConfigVersion is written into new config files.
	ConfigVersion = 1
)

// ProjectConfig is the on-disk shape of .locus/config.json.
type ProjectConfig struct {
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
	ProjectPath string    `json:"projectPath"`
}

// Dir returns the .locus directory for a project root.
func Dir(projectPath string) string {
	return filepath.Join(projectPath, DirName)
}

// ConfigPath returns the config file path for a project root.
func ConfigPath(projectPath string) string {
	return filepath.Join(Dir(projectPath), ConfigFileName)
}

// IndexPath returns the codebase index path for a project root.
func IndexPath(projectPath string) string {
	return filepath.Join(Dir(projectPath), IndexFileName)
}

// ArtifactsDir returns the artifacts directory for a project root.
func ArtifactsDir(projectPath string) string {
	return filepath.Join(Dir(projectPath), ArtifactsDirName)
}

// ContextPath returns the CLAUDE.md path for a project root.
func ContextPath(projectPath string) string {
	return filepath.Join(projectPath, ContextFileName)
}

// IsInitialized reports whether the project has a .locus directory with a
// config file.
func IsInitialized(projectPath string) bool {
	info, err := os.Stat(ConfigPath(projectPath))
	return err == nil && !info.IsDir()
}

// RequireInitialized returns ErrNotInitialized when the project has not been
// initialized.
func RequireInitialized(projectPath string) error {
	if !IsInitialized(projectPath) {
		return ErrNotInitialized
	}
	return nil
}

// Init creates the .locus directory, the config file, and a CLAUDE.md
// template. It is a no-op when the project is already initialized.
func Init(projectPath string) (created bool, err error) {
	if IsInitialized(projectPath) {
		return false, nil
	}

	if err := os.MkdirAll(ArtifactsDir(projectPath), 0755); err != nil {
		return false, fmt.Errorf("create %s: %w", Dir(projectPath), err)
	}

	cfg := ProjectConfig{
		Version:     ConfigVersion,
		CreatedAt:   time.Now().UTC(),
		ProjectPath: ".",
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshal project config: %w", err)
	}
	if err := os.WriteFile(ConfigPath(projectPath), append(data, '\n'), 0644); err != nil {
		return false, fmt.Errorf("write %s: %w", ConfigFileName, err)
	}

	// Never clobber an existing CLAUDE.md.
	contextPath := ContextPath(projectPath)
	if _, err := os.Stat(contextPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(contextPath, []byte(contextTemplate), 0644); err != nil {
			return false, fmt.Errorf("write %s: %w", ContextFileName, err)
		}
	}

	return true, nil
}

// LoadProjectConfig reads .locus/config.json.
func LoadProjectConfig(projectPath string) (*ProjectConfig, error) {
	data, err := os.ReadFile(ConfigPath(projectPath))
	if err != nil {
		return nil, err
	}
	var cfg ProjectConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ConfigFileName, err)
	}
	return &cfg, nil
}

const contextTemplate = `# Project Context

Describe your project here. The Locus agent injects this file into every
task prompt, so include whatever an engineer new to the codebase would need:

- What the project does and who uses it
- Build, test, and run commands
- Code layout and conventions
- Anything the agent must never touch
`
