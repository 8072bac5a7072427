package version

// Version is overridden at build time via -ldflags "-X dashsync-go/internal/version.Version=...".
var Version = "dev"
