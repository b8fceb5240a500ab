// Package support holds the step definitions of the CLI integration suite.
package support

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
)

// TestContext holds the state for integration tests.
type TestContext struct {
	// Command execution state
	LastCommand string
	LastOutput  string
	LastStderr  string
	LastError   error

	// Test environment
	TempDir   string
	GTDir     string
	PredDir   string
	savedEnv  map[string]*string
	savedWD   string
	Variables map[string]string

	// HTTP state
	HTTPServer         *httptest.Server
	LastHTTPStatusCode int
	LastHTTPResponse   string
	LastHTTPHeaders    map[string]string
}

// NewTestContext creates a workspace with empty gt/ and pred/ directories.
// The process works inside the workspace until Cleanup so that no config
// file outside it is picked up.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "deteval-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	ctx := &TestContext{
		TempDir:         tempDir,
		GTDir:           filepath.Join(tempDir, "gt"),
		PredDir:         filepath.Join(tempDir, "pred"),
		savedEnv:        map[string]*string{},
		LastHTTPHeaders: map[string]string{},
	}
	for _, dir := range []string{ctx.GTDir, ctx.PredDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	ctx.Variables = map[string]string{
		"GT_DIR":   ctx.GTDir,
		"PRED_DIR": ctx.PredDir,
		"TMP":      tempDir,
	}

	if ctx.savedWD, err = os.Getwd(); err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	if err := os.Chdir(tempDir); err != nil {
		return nil, fmt.Errorf("failed to enter temp directory: %w", err)
	}
	ctx.SetEnv("HOME", tempDir)
	ctx.SetEnv("XDG_CONFIG_HOME", tempDir)
	return ctx, nil
}

// SetEnv sets an environment variable until Cleanup.
func (testCtx *TestContext) SetEnv(name, value string) {
	if _, saved := testCtx.savedEnv[name]; !saved {
		if old, ok := os.LookupEnv(name); ok {
			testCtx.savedEnv[name] = &old
		} else {
			testCtx.savedEnv[name] = nil
		}
	}
	_ = os.Setenv(name, value)
}

// Substitute replaces ${NAME} references with workspace paths.
func (testCtx *TestContext) Substitute(s string) string {
	for name, value := range testCtx.Variables {
		s = strings.ReplaceAll(s, "${"+name+"}", value)
	}
	return s
}

// Cleanup stops the server, restores the environment and removes the
// workspace.
func (testCtx *TestContext) Cleanup() error {
	var errs []error

	if testCtx.HTTPServer != nil {
		testCtx.HTTPServer.Close()
		testCtx.HTTPServer = nil
	}

	for name, value := range testCtx.savedEnv {
		if value == nil {
			_ = os.Unsetenv(name)
		} else {
			_ = os.Setenv(name, *value)
		}
	}

	if testCtx.savedWD != "" {
		if err := os.Chdir(testCtx.savedWD); err != nil {
			errs = append(errs, fmt.Errorf("failed to restore working directory: %w", err))
		}
	}

	if err := os.RemoveAll(testCtx.TempDir); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err))
	}

	return errors.Join(errs...)
}
