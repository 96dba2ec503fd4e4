package util

// Version is the build version, set with -ldflags "-X .../internal/util.Version=...".
var Version = "dev"
