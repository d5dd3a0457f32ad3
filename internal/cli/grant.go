package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/dhtrecords/internal/ir"
	"github.com/roach88/dhtrecords/internal/store"
)

// GrantOptions holds flags for the grant commands.
type GrantOptions struct {
	*RootOptions
	Secret string
}

// NewGrantCommand creates the grant command group.
func NewGrantCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Manage capability grants issued by this partition",
	}
	cmd.AddCommand(newGrantListCommand(rootOpts))
	cmd.AddCommand(newGrantIssueCommand(rootOpts))
	cmd.AddCommand(newGrantRevokeCommand(rootOpts))
	return cmd
}

func newGrantListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List issued grants",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrantList(rootOpts, cmd)
		},
	}
}

func newGrantIssueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GrantOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "issue <id> <module.function>...",
		Short: "Issue a grant for one or more functions",
		Long: `Issue a grant allowing holders of its secret to call the listed functions.

A function may be module.* to cover the whole module. The secret is printed
once; hand it to the calling partition as a claim.

Example:
  dhtrecords grant issue resource-index index.update`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrantIssue(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Secret, "secret", "", "grant secret (generated when empty)")

	return cmd
}

func newGrantRevokeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "revoke <id>",
		Short:         "Revoke a grant",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrantRevoke(rootOpts, args[0], cmd)
		},
	}
}

func runGrantList(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()
	n, logger, err := openPartition(ctx, opts, f)
	if err != nil {
		return err
	}
	defer closePartition(n, logger)

	grants, err := n.Store().Grants(ctx)
	if err != nil {
		f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "list grants", err)
	}
	if opts.Format == "json" {
		// Secrets stay out of listings.
		for i := range grants {
			grants[i].Secret = ""
		}
		return f.Success(grants)
	}

	if len(grants) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No grants issued.")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFUNCTIONS\tSTATUS")
	for _, g := range grants {
		status := "active"
		if g.Revoked {
			status = "revoked"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", g.ID, strings.Join(g.Functions, ","), status)
	}
	return tw.Flush()
}

func runGrantIssue(opts *GrantOptions, id string, functions []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	for _, fn := range functions {
		module, function, ok := strings.Cut(fn, ".")
		if !ok || module == "" || function == "" {
			f.Error(ErrCodeBadArgument, fmt.Sprintf("%q is not module.function", fn), nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("%q is not module.function", fn))
		}
	}

	ctx := cmd.Context()
	n, logger, err := openPartition(ctx, opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer closePartition(n, logger)

	secret := opts.Secret
	if secret == "" {
		secret = uuid.NewString()
	}
	g, err := n.Store().PutGrant(ctx, ir.Grant{
		ID:        id,
		Grantor:   n.Config().Partition,
		Secret:    secret,
		Functions: functions,
	})
	if errors.Is(err, store.ErrDuplicate) {
		f.Error(ErrCodeBadArgument, fmt.Sprintf("grant %s or its secret already exists", id), nil)
		return WrapExitError(ExitFailure, "issue grant", err)
	}
	if err != nil {
		f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "issue grant", err)
	}

	if opts.Format == "json" {
		return f.Success(g)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ Issued grant %s for %s\n", g.ID, strings.Join(g.Functions, ", "))
	fmt.Fprintf(w, "Secret: %s\n", g.Secret)
	return nil
}

func runGrantRevoke(opts *RootOptions, id string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()
	n, logger, err := openPartition(ctx, opts, f)
	if err != nil {
		return err
	}
	defer closePartition(n, logger)

	err = n.Store().RevokeGrant(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		f.Error(ErrCodeNotFound, fmt.Sprintf("grant %s not found", id), nil)
		return WrapExitError(ExitFailure, "revoke grant", err)
	}
	if err != nil {
		f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "revoke grant", err)
	}
	return f.Success(fmt.Sprintf("✓ Revoked grant %s", id))
}
