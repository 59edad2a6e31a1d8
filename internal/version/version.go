package version

// Version is the release version, overridable at build time via
// -ldflags "-X igia/internal/version.Version=...".
var Version = "0.3.0"
