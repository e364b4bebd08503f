// Package version provides build metadata and version information.
package version

import (
	"fmt"
	"runtime"
)

// Set with -ldflags "-X github.com/NERVsystems/osmtally/pkg/version.BuildVersion=..."
var (
	BuildVersion = "0.1.0"
	BuildCommit  = "unknown"
	BuildDate    = "unknown"

	// GoVersion is the version of Go used to build
	GoVersion = runtime.Version()
)

// String returns a formatted version string
func String() string {
	return fmt.Sprintf("osmtally version %s (%s) built on %s with %s",
		BuildVersion, BuildCommit, BuildDate, GoVersion)
}

// Info returns a map of version information
func Info() map[string]string {
	return map[string]string{
		"version":    BuildVersion,
		"commit":     BuildCommit,
		"build_date": BuildDate,
		"go_version": GoVersion,
	}
}
