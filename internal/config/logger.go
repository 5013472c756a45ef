package config

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the process logger: development output when APP_ENV is
// development, JSON production output otherwise, at LOG_LEVEL.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zapConfig = zap.NewDevelopmentConfig()
	}

	if cfg.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
		}
		zapConfig.Level = level
	}

	return zapConfig.Build()
}
