// Package version holds the build version string.
package version

// Version is the service version, overridden at build time via
// -ldflags "-X github.com/felinebridge/cockpit/internal/version.Version=...".
var Version = "0.4.0"
