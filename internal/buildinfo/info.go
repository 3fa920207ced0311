// Package buildinfo carries release metadata stamped in with -ldflags -X.
package buildinfo

import "fmt"

var (
	// Version is the release tag.
	Version = "dev"
	// Commit is the source revision.
	Commit = "none"
	// Date is the build time.
	Date = "unknown"
)

// String formats the metadata for --version.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date)
}
