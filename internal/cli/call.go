package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/dhtrecords/internal/rpc"
)

// CallOptions holds flags for the call command.
type CallOptions struct {
	*RootOptions
	Payload string
	To      string // target partition for a capability call
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "call <module.function | permission>",
		Short: "Call a module function",
		Long: `Call a module function on this partition, or a permission on another.

Without --to the function runs on the local partition as its own agent, with
no capability check. With --to the argument is a permission id; the stored
claim for it supplies the module, function and secret of the remote call.

Examples:
  dhtrecords call economic_event.list
  dhtrecords call economic_resource.create --payload '{"resource":{"name":"apples"}}'
  dhtrecords call index_resource_specification_conforming_resources --to specification --payload '{...}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "JSON payload")
	cmd.Flags().StringVar(&opts.To, "to", "", "target partition (argument is then a permission id)")

	return cmd
}

func runCall(opts *CallOptions, target string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	if !json.Valid([]byte(opts.Payload)) {
		f.Error(ErrCodeBadArgument, "payload is not valid JSON", opts.Payload)
		return NewExitError(ExitCommandError, "payload is not valid JSON")
	}
	module, function, ok := strings.Cut(target, ".")
	if opts.To == "" && (!ok || module == "" || function == "") {
		f.Error(ErrCodeBadArgument, fmt.Sprintf("%q is not module.function", target), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%q is not module.function", target))
	}

	ctx := cmd.Context()
	n, logger, err := openPartition(ctx, opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer closePartition(n, logger)

	if opts.To != "" {
		f.VerboseLog("Calling %s on %s", target, opts.To)
		var reply json.RawMessage
		if err := n.Client().Invoke(ctx, opts.To, target, json.RawMessage(opts.Payload), &reply); err != nil {
			f.Error(ErrCodeCallFailed, err.Error(), nil)
			return WrapExitError(ExitFailure, "call failed", err)
		}
		return f.Success(reply)
	}

	f.VerboseLog("Calling %s.%s on %s", module, function, n.Config().Partition)
	partition := n.Config().Partition
	resp := n.Server().HandleLocal(ctx, &rpc.Request{
		RequestID: uuid.NewString(),
		Caller:    partition,
		Partition: partition,
		Module:    module,
		Function:  function,
		Payload:   json.RawMessage(opts.Payload),
	})
	if resp.Outcome != rpc.OutcomeOK {
		f.Error(ErrCodeCallFailed, resp.Message, map[string]string{"outcome": string(resp.Outcome)})
		return NewExitError(ExitFailure, fmt.Sprintf("%s.%s: %s", module, function, resp.Message))
	}
	if len(resp.Payload) == 0 {
		return f.Success("ok")
	}
	return f.Success(resp.Payload)
}
