package cli

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/dhtrecords/internal/config"
	"github.com/roach88/dhtrecords/internal/logging"
	"github.com/roach88/dhtrecords/internal/node"
)

// loadConfig reads the partition config named by --config, reporting a
// failure through f.
func loadConfig(opts *RootOptions, f *OutputFormatter) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		f.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	f.VerboseLog("Loaded config for partition %s from %s", cfg.Partition, opts.Config)
	return cfg, nil
}

// newLogger builds the configured logger. --verbose lowers the level to debug.
func newLogger(opts *RootOptions, cfg *config.Config, f *OutputFormatter) (*zap.Logger, error) {
	lc := cfg.Log
	if opts.Verbose {
		lc.Level = zapcore.DebugLevel.String()
	}
	l, err := logging.New(lc)
	if err != nil {
		f.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "invalid log config", err)
	}
	return l, nil
}

// openPartition starts the configured partition's node without serving it.
// Release it with closePartition.
func openPartition(ctx context.Context, opts *RootOptions, f *OutputFormatter) (*node.Node, *zap.Logger, error) {
	cfg, err := loadConfig(opts, f)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(opts, cfg, f)
	if err != nil {
		return nil, nil, err
	}
	n, err := node.New(ctx, cfg, node.WithLogger(logger))
	if err != nil {
		_ = logger.Sync()
		f.Error(ErrCodeStore, err.Error(), map[string]string{"store": cfg.StorePath()})
		return nil, nil, WrapExitError(ExitCommandError, "failed to open partition", err)
	}
	return n, logger, nil
}

func closePartition(n *node.Node, logger *zap.Logger) {
	if err := n.Close(); err != nil {
		logger.Error("error closing partition", zap.Error(err))
	}
	_ = logger.Sync()
}
