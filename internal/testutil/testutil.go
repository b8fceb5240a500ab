// Package testutil holds helpers shared by the package tests: project
// paths and Pascal-VOC fixtures.
package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

var errNoModule = errors.New("go.mod not found above testutil")

// ProjectRoot is the directory holding go.mod, found by walking up from
// this source file.
func ProjectRoot() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("no caller information")
	}
	for dir := filepath.Dir(file); ; {
		if FileExists(filepath.Join(dir, "go.mod")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errNoModule
		}
		dir = parent
	}
}

// TestData joins elem below the project's testdata directory.
func TestData(t *testing.T, elem ...string) string {
	t.Helper()
	root, err := ProjectRoot()
	require.NoError(t, err)
	return filepath.Join(append([]string{root, "testdata"}, elem...)...)
}

// EnsureDir creates path and its parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o750)
}

// FileExists reports whether path can be stat'ed.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadFile returns the content of path or fails the test.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // G304: test helper reading files it created
	require.NoError(t, err, "Failed to read %s", path)
	return string(data)
}
