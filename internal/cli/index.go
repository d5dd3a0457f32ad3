package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dhtrecords/internal/indexes"
	"github.com/roach88/dhtrecords/internal/ir"
)

// IndexOptions holds flags for the index commands.
type IndexOptions struct {
	*RootOptions
	Tag string
}

// NewIndexCommand creates the index command group.
func NewIndexCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect index edges",
	}
	cmd.AddCommand(newIndexReadCommand(rootOpts))
	return cmd
}

func newIndexReadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IndexOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "read <base> <relation>",
		Short: "List the targets linked from a base under a relation",
		Long: `List the targets linked from a base under a relation, oldest first.

The base is an identity address, or @name for a named anchor.

Examples:
  dhtrecords index read @spec:harvesting conforming_resources
  dhtrecords index read 3f2a... stage --tag process`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexRead(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Tag, "tag", "", "relation tag")

	return cmd
}

// parseBase resolves "@name" to the anchor address and validates anything
// else as an identity address.
func parseBase(s string) (ir.IdentityAddress, error) {
	if name, ok := strings.CutPrefix(s, "@"); ok {
		if name == "" {
			return "", fmt.Errorf("anchor name is empty")
		}
		return ir.AnchorAddress(name), nil
	}
	return ir.ParseIdentity(s)
}

func runIndexRead(opts *IndexOptions, base, relation string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	source, err := parseBase(base)
	if err != nil {
		f.Error(ErrCodeBadArgument, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid base", err)
	}

	ctx := cmd.Context()
	n, logger, err := openPartition(ctx, opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer closePartition(n, logger)

	rel := indexes.Relation{Type: relation, Tag: opts.Tag}
	targets, err := n.Engine().Read(ctx, source, rel)
	if err != nil {
		f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "index read failed", err)
	}

	if opts.Format == "json" {
		out := make([]string, len(targets))
		for i, t := range targets {
			out[i] = t.String()
		}
		return f.Success(map[string]any{
			"base":     source.String(),
			"relation": rel.String(),
			"targets":  out,
		})
	}

	w := cmd.OutOrStdout()
	if len(targets) == 0 {
		fmt.Fprintf(w, "No %s targets from %s\n", rel, source.Short())
		return nil
	}
	for _, t := range targets {
		fmt.Fprintln(w, t)
	}
	return nil
}
