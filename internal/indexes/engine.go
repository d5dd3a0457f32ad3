package indexes

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/dhtrecords/internal/ir"
	"github.com/roach88/dhtrecords/internal/metrics"
	"github.com/roach88/dhtrecords/internal/records"
	"github.com/roach88/dhtrecords/internal/rpc"
	"github.com/roach88/dhtrecords/internal/store"
)

// Engine writes and reads index edges in one partition.
type Engine struct {
	store   *store.Store
	calls   rpc.Invoker
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithInvoker sets the client used for the remote half of remote pairs.
func WithInvoker(c rpc.Invoker) Option {
	return func(e *Engine) { e.calls = c }
}

// WithMetrics records edge churn on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the engine's logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an engine over s.
func New(s *store.Store, opts ...Option) *Engine {
	e := &Engine{store: s, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the partition store the engine writes to.
func (e *Engine) Store() *store.Store { return e.store }

// Read returns the targets linked from source under rel, oldest first.
func (e *Engine) Read(ctx context.Context, source ir.IdentityAddress, rel Relation) ([]ir.IdentityAddress, error) {
	links, err := e.store.Links(ctx, source, rel.Type, rel.Tag)
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", rel, err)
	}
	targets := make([]ir.IdentityAddress, len(links))
	for i, l := range links {
		targets[i] = l.Target
	}
	return targets, nil
}

// CreateLocal writes source -rel-> target.
func (e *Engine) CreateLocal(ctx context.Context, source ir.IdentityAddress, rel Relation, target ir.IdentityAddress) error {
	_, err := e.apply(ctx, rel, []store.LinkSpec{spec(source, rel, target)}, nil)
	return err
}

// RemoveLocal removes source -rel-> target.
func (e *Engine) RemoveLocal(ctx context.Context, source ir.IdentityAddress, rel Relation, target ir.IdentityAddress) error {
	_, err := e.apply(ctx, rel, nil, []store.LinkSpec{spec(source, rel, target)})
	return err
}

// CreateLocalPair writes source -Forward-> target and target -Inverse->
// source in one transaction.
func (e *Engine) CreateLocalPair(ctx context.Context, source ir.IdentityAddress, idx Index, target ir.IdentityAddress) error {
	if err := idx.validate(); err != nil {
		return err
	}
	_, err := e.apply(ctx, idx.Forward, pairSpecs(source, idx, []ir.IdentityAddress{target}), nil)
	return err
}

// RemoveLocalPair removes both edges of a local pair in one transaction.
func (e *Engine) RemoveLocalPair(ctx context.Context, source ir.IdentityAddress, idx Index, target ir.IdentityAddress) error {
	if err := idx.validate(); err != nil {
		return err
	}
	_, err := e.apply(ctx, idx.Forward, nil, pairSpecs(source, idx, []ir.IdentityAddress{target}))
	return err
}

// CreateRemote writes source -Forward-> target locally, then asks the
// target's partition to write target -Inverse-> source.
//
// If the remote call fails the local edge stays; the result is PairOneSided
// and the error is REMOTE_REQUEST wrapping the call failure.
func (e *Engine) CreateRemote(ctx context.Context, source ir.IdentityAddress, idx Index, target ir.IdentityAddress) (PairResult, error) {
	if err := idx.validate(); err != nil {
		return PairResult{}, err
	}
	if _, err := e.apply(ctx, idx.Forward, []store.LinkSpec{spec(source, idx.Forward, target)}, nil); err != nil {
		return PairResult{}, err
	}
	return e.remote(ctx, idx, UpdateRequest{
		Source:   source,
		Relation: idx.Inverse,
		Add:      []ir.IdentityAddress{target},
	})
}

// RemoveRemote removes the local forward edge, then asks the target's
// partition to remove the reciprocal.
func (e *Engine) RemoveRemote(ctx context.Context, source ir.IdentityAddress, idx Index, target ir.IdentityAddress) (PairResult, error) {
	if err := idx.validate(); err != nil {
		return PairResult{}, err
	}
	if _, err := e.apply(ctx, idx.Forward, nil, []store.LinkSpec{spec(source, idx.Forward, target)}); err != nil {
		return PairResult{}, err
	}
	return e.remote(ctx, idx, UpdateRequest{
		Source:   source,
		Relation: idx.Inverse,
		Remove:   []ir.IdentityAddress{target},
	})
}

// Create writes the edges idx describes from source to target.
func (e *Engine) Create(ctx context.Context, idx Index, source, target ir.IdentityAddress) (PairResult, error) {
	_, result, err := e.Update(ctx, idx, source, []ir.IdentityAddress{target}, nil)
	return result, err
}

// Remove removes the edges idx describes from source to target.
func (e *Engine) Remove(ctx context.Context, idx Index, source, target ir.IdentityAddress) (PairResult, error) {
	_, result, err := e.Update(ctx, idx, source, nil, []ir.IdentityAddress{target})
	return result, err
}

// Update moves source's targets under idx from prev to now, writing only
// the difference, and returns the delta it applied. Local edges are written
// in one transaction; for a remote pair the reciprocal changes follow in one
// call.
func (e *Engine) Update(ctx context.Context, idx Index, source ir.IdentityAddress, now, prev []ir.IdentityAddress) (Delta, PairResult, error) {
	if err := idx.validate(); err != nil {
		return Delta{}, PairResult{}, err
	}
	d := Diff(now, prev)
	if d.Empty() {
		return d, PairResult{State: PairComplete, Partition: idx.Partition}, nil
	}

	var add, remove []store.LinkSpec
	switch idx.Kind {
	case KindLocalPair:
		add = pairSpecs(source, idx, d.Added)
		remove = pairSpecs(source, idx, d.Removed)
	default:
		add = forwardSpecs(source, idx.Forward, d.Added)
		remove = forwardSpecs(source, idx.Forward, d.Removed)
	}
	if _, err := e.apply(ctx, idx.Forward, add, remove); err != nil {
		return Delta{}, PairResult{}, err
	}

	if idx.Kind != KindRemotePair {
		return d, PairResult{State: PairComplete}, nil
	}
	result, err := e.remote(ctx, idx, UpdateRequest{
		Source:   source,
		Relation: idx.Inverse,
		Add:      d.Added,
		Remove:   d.Removed,
	})
	return d, result, err
}

// remote sends the reciprocal half of a remote pair.
func (e *Engine) remote(ctx context.Context, idx Index, req UpdateRequest) (PairResult, error) {
	result := PairResult{State: PairComplete, Partition: idx.Partition}

	var err error
	if e.calls == nil {
		err = rpc.NotConfigured("", idx.Permission)
	} else {
		_, err = rpc.Call[UpdateResponse](ctx, e.calls, idx.Partition, idx.Permission, req)
	}
	if err == nil {
		return result, nil
	}

	e.metrics.OneSidedPair(idx.Partition)
	e.logger.Warn("remote index pair left one-sided",
		zap.String("relation", idx.Forward.String()),
		zap.String("remote_partition", idx.Partition),
		zap.String("source", req.Source.Short()),
		zap.Int("add", len(req.Add)),
		zap.Int("remove", len(req.Remove)),
		zap.Error(err))
	result.State = PairOneSided
	result.RemoteErr = err
	return result, records.NewRemoteRequestError(req.Source.String(), err)
}

func (e *Engine) apply(ctx context.Context, rel Relation, add, remove []store.LinkSpec) (store.LinkChanges, error) {
	if rel.Type == "" {
		return store.LinkChanges{}, fmt.Errorf("index: link type is empty")
	}
	changes, err := e.store.ApplyLinks(ctx, add, remove)
	if err != nil {
		return store.LinkChanges{}, fmt.Errorf("update index %s: %w", rel, err)
	}
	e.metrics.IndexEdges(rel.Type, len(changes.Added), len(changes.Removed))
	return changes, nil
}

func spec(source ir.IdentityAddress, rel Relation, target ir.IdentityAddress) store.LinkSpec {
	return store.LinkSpec{Base: source, Target: target, Type: rel.Type, Tag: rel.Tag}
}

func forwardSpecs(source ir.IdentityAddress, rel Relation, targets []ir.IdentityAddress) []store.LinkSpec {
	specs := make([]store.LinkSpec, 0, len(targets))
	for _, t := range targets {
		specs = append(specs, spec(source, rel, t))
	}
	return specs
}

func pairSpecs(source ir.IdentityAddress, idx Index, targets []ir.IdentityAddress) []store.LinkSpec {
	specs := make([]store.LinkSpec, 0, 2*len(targets))
	for _, t := range targets {
		specs = append(specs, spec(source, idx.Forward, t), spec(t, idx.Inverse, source))
	}
	return specs
}
