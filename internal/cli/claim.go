package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/dhtrecords/internal/ir"
)

// ClaimOptions holds flags for claim add.
type ClaimOptions struct {
	*RootOptions
	Claim ir.Claim
}

// NewClaimCommand creates the claim command group.
func NewClaimCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Manage claims on grants issued by other partitions",
	}
	cmd.AddCommand(newClaimListCommand(rootOpts))
	cmd.AddCommand(newClaimAddCommand(rootOpts))
	return cmd
}

func newClaimListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List stored claims",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClaimList(rootOpts, cmd)
		},
	}
}

func newClaimAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClaimOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <permission>",
		Short: "Store a claim used to call a permission on another partition",
		Long: `Store (or replace) the claim for a permission on another partition.

Example:
  dhtrecords claim add index_resource_specification_conforming_resources \
    --partition specification --secret 6f1c... --module index --function update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Claim.Permission = args[0]
			return runClaimAdd(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Claim.Partition, "partition", "", "partition the grant was issued by (required)")
	cmd.Flags().StringVar(&opts.Claim.Grantor, "grantor", "", "grantor name (defaults to --partition)")
	cmd.Flags().StringVar(&opts.Claim.Secret, "secret", "", "grant secret (required)")
	cmd.Flags().StringVar(&opts.Claim.Module, "module", "", "remote module (required)")
	cmd.Flags().StringVar(&opts.Claim.Function, "function", "", "remote function (required)")
	_ = cmd.MarkFlagRequired("partition")
	_ = cmd.MarkFlagRequired("secret")
	_ = cmd.MarkFlagRequired("module")
	_ = cmd.MarkFlagRequired("function")

	return cmd
}

func runClaimList(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()
	n, logger, err := openPartition(ctx, opts, f)
	if err != nil {
		return err
	}
	defer closePartition(n, logger)

	claims, err := n.Store().Claims(ctx)
	if err != nil {
		f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "list claims", err)
	}
	for i := range claims {
		claims[i].Secret = ""
	}
	if opts.Format == "json" {
		return f.Success(claims)
	}

	if len(claims) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No claims stored.")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PARTITION\tPERMISSION\tCALLS")
	for _, c := range claims {
		fmt.Fprintf(tw, "%s\t%s\t%s.%s\n", c.Partition, c.Permission, c.Module, c.Function)
	}
	return tw.Flush()
}

func runClaimAdd(opts *ClaimOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	c := opts.Claim
	if c.Grantor == "" {
		c.Grantor = c.Partition
	}

	ctx := cmd.Context()
	n, logger, err := openPartition(ctx, opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer closePartition(n, logger)

	if err := n.Store().PutClaim(ctx, c); err != nil {
		f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "add claim", err)
	}
	return f.Success(fmt.Sprintf("✓ Stored claim %s on %s (%s.%s)", c.Permission, c.Partition, c.Module, c.Function))
}
