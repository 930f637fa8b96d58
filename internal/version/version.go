// Package version holds build information, set via -ldflags at build time.
package version

var (
	// Version is the semantic version of this build.
	Version = "0.1.0"
	// BuildTime is when this binary was built.
	BuildTime = "unknown"
)
