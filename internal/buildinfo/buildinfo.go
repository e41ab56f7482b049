// Package buildinfo carries ldflags-stamped build metadata, used for the
// controller's own version reporting, plus a User-Agent-like identity
// string.
package buildinfo

import "fmt"

// Stamped via -ldflags at build time; zero values mean a dev build.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// String returns a one-line human-readable build summary.
func String() string {
	return fmt.Sprintf("ofcore %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}

// UserAgent returns the controller's identity string, "ofcored/<version>".
// No package in this module sends it to the backend.
func UserAgent() string {
	return fmt.Sprintf("ofcored/%s", Version)
}
