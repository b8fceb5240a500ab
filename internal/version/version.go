// Package version holds build information injected with -ldflags, e.g.
// -X github.com/MeKo-Tech/deteval/internal/version.Version=v1.2.0.
package version

import "fmt"

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns version, commit and build date.
func Info() (string, string, string) {
	return Version, GitCommit, BuildDate
}

// String formats the build information for --version output.
func String() string {
	return fmt.Sprintf("deteval %s (commit: %s, built: %s)", Version, GitCommit, BuildDate)
}
