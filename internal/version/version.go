package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// GoVersion returns the Go runtime version string.
func GoVersion() string { return runtime.Version() }

// String renders the full version line used by the version subcommands.
func String(binary string) string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s)",
		binary, Version, GitCommit, BuildTime, GoVersion())
}
