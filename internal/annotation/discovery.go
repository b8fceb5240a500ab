package annotation

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

// DefaultPattern selects Pascal-VOC annotation files.
const DefaultPattern = "*.xml"

// Discover lists the regular files directly inside dir whose base name
// matches one of the include patterns and none of the exclude patterns.
// With no include patterns DefaultPattern is used. Names are returned
// relative to dir, sorted.
func Discover(dir string, includePatterns, excludePatterns []string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	if len(includePatterns) == 0 {
		includePatterns = []string{DefaultPattern}
	}

	var names []string
	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if shouldIncludeFile(path, includePatterns, excludePatterns) {
			names = append(names, d.Name())
		}
		return nil
	}
	if err := filepath.WalkDir(dir, walkFn); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	slices.Sort(names)
	return names, nil
}

// shouldIncludeFile determines if a file should be included based on include/exclude patterns.
func shouldIncludeFile(path string, includePatterns, excludePatterns []string) bool {
	if matchesAnyPattern(path, excludePatterns) {
		return false
	}
	return matchesAnyPattern(path, includePatterns)
}

// matchesAnyPattern checks if a file's base name matches any of the given patterns.
func matchesAnyPattern(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
