// Package version carries build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/pysugar/agent-nexus/internal/version.Version=v0.3.0"
package version

import "fmt"

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// String renders the build metadata on one line.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildTime)
}
