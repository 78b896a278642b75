package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// CollectFiles walks root and returns supported document paths in
// lexical order. A .gitignore at the root is honored; hidden directories
// are skipped.
func CollectFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		if !Supported(root) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, root)
		}
		return []string{root}, nil
	}

	var ignorer *gitignore.GitIgnore
	if ig, err := gitignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
		ignorer = ig
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if d.IsDir() {
			if rel != "." && (d.Name()[0] == '.' || (ignorer != nil && ignorer.MatchesPath(rel))) {
				return filepath.SkipDir
			}
			return nil
		}
		if ignorer != nil && ignorer.MatchesPath(rel) {
			return nil
		}
		if Supported(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	return paths, nil
}
