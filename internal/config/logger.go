package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the zap logger described by the log section
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.WarnLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	if cfg.Output != "" {
		zc.OutputPaths = []string{cfg.Output}
		zc.ErrorOutputPaths = []string{cfg.Output}
	}
	return zc.Build()
}
