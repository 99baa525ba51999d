// Package utils holds process setup helpers shared by the commands.
package utils

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger returns a zap logger named "rulebook". When debug is true it uses the development
// config (human-readable, debug level); otherwise the production config (JSON, info level).
// Both write to stderr so command output on stdout stays parseable.
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Named("rulebook"), nil
}
