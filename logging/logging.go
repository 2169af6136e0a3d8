// Package logging builds the zap logger used by the homie command.
package logging

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/duke1swd/homieGo/config"
)

// New builds a logger writing to stdout at the configured level.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	logCfg := zap.NewProductionConfig()
	if cfg.Development {
		logCfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging level: %w", err)
	}
	logCfg.Level = level
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil

	return logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}
