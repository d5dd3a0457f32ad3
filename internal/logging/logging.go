// Package logging builds the zap logger used by every component.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/dhtrecords/internal/config"
)

// New builds a logger from cfg. "json" selects zap's production encoder and
// "console" its development encoder; the level applies to both.
func New(cfg config.Log) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	var zc zap.Config
	switch cfg.Format {
	case "", "json":
		zc = zap.NewProductionConfig()
	case "console":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("log format %q: want json or console", cfg.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableStacktrace = level > zapcore.DebugLevel
	zc.OutputPaths = []string{"stderr"}

	return zc.Build()
}

// ForPartition returns l with the partition field attached.
func ForPartition(l *zap.Logger, partition string) *zap.Logger {
	return l.With(zap.String("partition", partition))
}
