package enclave

import (
	"go.uber.org/zap"
)

// NewLogger builds the enclave service logger. There is no file or journald
// sink inside an enclave, so output goes to stderr where the host's console
// forwarding picks it up.
func NewLogger(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		return cfg.Build()
	}

	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}
