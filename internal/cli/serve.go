package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen      string
	MetricsAddr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the partition over gRPC",
		Long: `Open the partition store, issue the configured grants and serve calls
from peer partitions until interrupted.

Example:
  dhtrecords serve -c observation.yaml
  dhtrecords serve -c observation.yaml --listen :7401 --metrics-addr :9401`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "gRPC listen address (overrides config)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "Prometheus metrics address (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	n, logger, err := openPartition(ctx, opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer closePartition(n, logger)

	cfg := n.Config()
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}
	if opts.MetricsAddr != "" {
		cfg.MetricsAddr = opts.MetricsAddr
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", zap.Stringer("signal", sig))
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Partition %s serving on %s. Press Ctrl-C to stop.\n", cfg.Partition, cfg.Listen)

	if err := n.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		f.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "serve error", err)
	}
	logger.Info("partition stopped gracefully")
	return nil
}
