// Package version holds the build version string.
package version

// Version is the application version, overridable at build time via
// -ldflags "-X github.com/luizidebook/morro-digital-sub002/pkg/version.Version=...".
var Version = "0.3.0"
