// Package version holds the build-time version string reported over SMTP
// banners and the HTTP API.
package version

// Version is set at build time via -ldflags; it defaults to "dev" for local
// builds run straight from source.
var Version = "dev"
