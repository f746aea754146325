package utils

import "go.uber.org/zap"

// NewLogger returns the root zap logger. Debug mode uses the development
// config (console encoder, debug level); otherwise production config
// (JSON, info level) with caller annotation disabled to keep log lines short.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableCaller = true
	return cfg.Build()
}
