package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/dhtrecords/internal/config"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [config]",
		Short: "Check a partition config against its schema",
		Long: `Check a partition config against its schema without opening the store.

The path defaults to --config.

Exit codes:
  0 - Config is valid
  2 - Config is missing or invalid`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Config
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}
	return cmd
}

// ValidateResult is the JSON payload of a successful validate.
type ValidateResult struct {
	Path      string `json:"path"`
	Partition string `json:"partition"`
	Grants    int    `json:"grants"`
	Claims    int    `json:"claims"`
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cfg, err := config.Load(path)
	if err != nil {
		f.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	if opts.Format == "json" {
		return f.Success(ValidateResult{
			Path:      path,
			Partition: cfg.Partition,
			Grants:    len(cfg.Grants),
			Claims:    len(cfg.Claims),
		})
	}
	return f.Success("✓ " + path + ": partition " + cfg.Partition + " is valid")
}
