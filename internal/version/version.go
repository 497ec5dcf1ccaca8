// Package version carries the SDK's own version string, used only to
// tag error output the way pktd's pktconfig/version package
// tags logs and panics across subsystems.
package version

// Version is the SDK release tag baked in at build time via -ldflags,
// matching the convention of pktconfig/version.Version().
var Version = "v0.0.0-dev"
