package indexer

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Directories never descended into.
var ignoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"out":          true,
	"__tests__":    true,
}

// File basename patterns excluded from the index.
var ignoredFilePatterns = []string{
	"*.test.*",
	"*.spec.*",
	"*.d.ts",
	"tsconfig.tsbuildinfo",
	"bun.lock",
	"package-lock.json",
	"yarn.lock",
}

// EnumerateFiles walks the project tree and returns the project-relative,
// forward-slash paths of every indexable file, sorted. Everything under
// .locus/ is skipped except .locus/artifacts/**.
func EnumerateFiles(projectPath string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(projectPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(projectPath, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if ignoredDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		if !includePath(rel) {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// includePath applies the file-level ignore rules to a relative path.
func includePath(rel string) bool {
	// .locus is agent state, not source; artifacts are the one exception
	// because the agent is expected to read its own prior write-ups.
	if rel == ".locus" || strings.HasPrefix(rel, ".locus/") {
		return strings.HasPrefix(rel, ".locus/artifacts/")
	}

	base := filepath.Base(rel)
	for _, pattern := range ignoredFilePatterns {
		if ok, _ := doublestar.Match(pattern, base); ok {
			return false
		}
	}
	return true
}
