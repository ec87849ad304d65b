package common

// PackageName identifies the service in logs and metrics.
const PackageName = "tee-randomness-service"

// Version is set at build time via -ldflags.
var Version = "dev"
