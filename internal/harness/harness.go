package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/dhtrecords/internal/ir"
	"github.com/roach88/dhtrecords/internal/node"
	"github.com/roach88/dhtrecords/internal/rpc"
)

// Harness holds the cluster a scenario runs against.
type Harness struct {
	nodes  map[string]*node.Node
	mesh   *rpc.Mesh
	vars   map[string]string
	logger *zap.Logger
}

// Option configures Run.
type Option func(*runOptions)

type runOptions struct {
	dataDir string
	logger  *zap.Logger
}

// WithDataDir places partition stores under dir instead of a temporary
// directory removed after the run.
func WithDataDir(dir string) Option {
	return func(o *runOptions) { o.dataDir = dir }
}

// WithLogger sets the logger handed to every node.
func WithLogger(l *zap.Logger) Option {
	return func(o *runOptions) { o.logger = l }
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Start one node per partition, joined by a mesh
// 2. Execute steps, checking expect clauses and saving variables
// 3. Evaluate assertions against the trace and the nodes' indexes
//
// A failed expectation or assertion is recorded on the result. An error is
// returned only when the cluster cannot be built or a step cannot be sent.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := runOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dataDir == "" {
		dir, err := os.MkdirTemp("", "scenario-"+scenario.Name+"-")
		if err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		defer os.RemoveAll(dir)
		o.dataDir = dir
	}

	h, err := start(ctx, scenario, o)
	if err != nil {
		return nil, err
	}
	defer h.close()

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	actx := &AssertionContext{Ctx: ctx, Harness: h}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	for k, v := range h.vars {
		result.Vars[k] = v
	}
	return result, nil
}

func start(ctx context.Context, scenario *Scenario, o runOptions) (*Harness, error) {
	h := &Harness{
		nodes:  make(map[string]*node.Node, len(scenario.Partitions)),
		mesh:   rpc.NewMesh(),
		vars:   make(map[string]string),
		logger: o.logger.Named("harness"),
	}
	for _, p := range scenario.Partitions {
		cfg := p
		cfg.DataDir = filepath.Join(o.dataDir, p.Partition)
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			h.close()
			return nil, fmt.Errorf("create data dir for %s: %w", p.Partition, err)
		}
		n, err := node.New(ctx, &cfg, node.WithLogger(o.logger), node.WithTransport(h.mesh))
		if err != nil {
			h.close()
			return nil, fmt.Errorf("start partition %s: %w", p.Partition, err)
		}
		h.mesh.Join(n.Server())
		h.nodes[p.Partition] = n
	}
	return h, nil
}

func (h *Harness) close() {
	for _, n := range h.nodes {
		if err := n.Close(); err != nil {
			h.logger.Warn("close partition", zap.String("partition", n.Config().Partition), zap.Error(err))
		}
	}
}

// Node returns the running node for partition.
func (h *Harness) Node(partition string) (*node.Node, bool) {
	n, ok := h.nodes[partition]
	return n, ok
}

// execute runs one step and records it on result.
func (h *Harness) execute(ctx context.Context, index int, step Step, result *Result) error {
	switch {
	case step.Disconnect != "":
		h.mesh.Disconnect(step.Disconnect)
		result.AddMeshTrace(EventDisconnect, step.Disconnect)
		return nil
	case step.Reconnect != "":
		h.mesh.Reconnect(step.Reconnect)
		result.AddMeshTrace(EventReconnect, step.Reconnect)
		return nil
	}

	payload, err := h.payload(step.Payload)
	if err != nil {
		return err
	}

	var (
		name    string
		outcome string
		message string
		body    json.RawMessage
	)
	if step.From != "" {
		name = step.Permission
		outcome, message, body = h.callFrom(ctx, step, payload)
	} else {
		name = step.Call
		outcome, message, body = h.callLocal(ctx, index, step, payload)
	}
	result.AddCallTrace(step.Partition, step.From, name, outcome)

	h.logger.Debug("step completed",
		zap.Int("step", index),
		zap.String("partition", step.Partition),
		zap.String("call", name),
		zap.String("outcome", outcome))

	expect := step.Expect
	if expect == nil {
		expect = &ExpectClause{Outcome: OutcomeOK}
	}
	if outcome != expect.Outcome {
		result.AddError(fmt.Sprintf("steps[%d] %s: expected outcome %s, got %s: %s", index, name, expect.Outcome, outcome, message))
		return nil
	}
	if expect.Error != "" && !strings.Contains(message, expect.Error) {
		result.AddError(fmt.Sprintf("steps[%d] %s: expected error containing %q, got %q", index, name, expect.Error, message))
	}

	var doc any
	if outcome == OutcomeOK && len(body) > 0 {
		if err := json.Unmarshal(body, &doc); err != nil {
			return fmt.Errorf("decode response of %s: %w", name, err)
		}
	}
	for path, want := range expect.Result {
		want, err := h.substitute(want)
		if err != nil {
			return err
		}
		if diff, ok := matchPath(doc, path, want); !ok {
			result.AddError(fmt.Sprintf("steps[%d] %s: field %q mismatch (-want +got):\n%s", index, name, path, diff))
		}
	}
	for varName, path := range step.Save {
		v, ok := lookup(doc, path)
		s, isString := v.(string)
		if !ok || !isString {
			result.AddError(fmt.Sprintf("steps[%d]: cannot save %s: no string at %q", index, varName, path))
			continue
		}
		h.vars[varName] = s
	}
	return nil
}

// callLocal dispatches on the partition's server without a capability, as
// the partition's own agent would.
func (h *Harness) callLocal(ctx context.Context, index int, step Step, payload json.RawMessage) (string, string, json.RawMessage) {
	module, function, _ := strings.Cut(step.Call, ".")
	resp := h.nodes[step.Partition].Server().HandleLocal(ctx, &rpc.Request{
		RequestID: fmt.Sprintf("step-%d", index),
		Caller:    step.Partition,
		Partition: step.Partition,
		Module:    module,
		Function:  function,
		Payload:   payload,
	})
	msg := resp.Message
	if resp.Outcome == rpc.OutcomeUnauthorized {
		msg = fmt.Sprintf("%s may not call %s.%s", resp.Principal, resp.Module, resp.Function)
	}
	return string(resp.Outcome), msg, resp.Payload
}

// callFrom makes a capability-checked call through the caller's client.
func (h *Harness) callFrom(ctx context.Context, step Step, payload json.RawMessage) (string, string, json.RawMessage) {
	var reply json.RawMessage
	err := h.nodes[step.From].Client().Invoke(ctx, step.Partition, step.Permission, payload, &reply)
	switch {
	case err == nil:
		return OutcomeOK, "", reply
	case rpc.IsUnauthorized(err):
		return OutcomeUnauthorized, err.Error(), nil
	case rpc.IsNotConfigured(err):
		return OutcomeNotConfigured, err.Error(), nil
	default:
		return OutcomeNetworkError, err.Error(), nil
	}
}

func (h *Harness) payload(p map[string]any) (json.RawMessage, error) {
	if p == nil {
		return json.RawMessage(`{}`), nil
	}
	v, err := h.substitute(p)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// substitute replaces "$name" strings with saved values and "@name" strings
// with anchor addresses, recursively.
func (h *Harness) substitute(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return h.resolve(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			s, err := h.substitute(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = s
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			s, err := h.substitute(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = s
		}
		return out, nil
	default:
		return v, nil
	}
}

func (h *Harness) resolve(s string) (string, error) {
	switch {
	case strings.HasPrefix(s, "$"):
		v, ok := h.vars[s[1:]]
		if !ok {
			return "", fmt.Errorf("undefined variable %s", s)
		}
		return v, nil
	case strings.HasPrefix(s, "@"):
		return ir.AnchorAddress(s[1:]).String(), nil
	default:
		return s, nil
	}
}
