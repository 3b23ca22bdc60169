// Package version holds the build version, set with
// -ldflags '-X github.com/nshruti113/packet-analysis-service/internal/version.Version=1.2.3'.
package version

// Version defaults to the development build.
var Version = "0.1.0"
