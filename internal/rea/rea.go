// Package rea maps a small set of economic entities onto the record store
// and index engine: economic resources, economic events, processes and
// proposals.
//
// Each entity is a thin layer of field mappings. Identities, revisions and
// concurrency come from package records; relationships between entities are
// index edges written through package indexes. Requests use ir.Maybe so an
// update can tell an omitted field from an explicit null.
package rea

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/roach88/dhtrecords/internal/config"
	"github.com/roach88/dhtrecords/internal/indexes"
	"github.com/roach88/dhtrecords/internal/ir"
	"github.com/roach88/dhtrecords/internal/metrics"
	"github.com/roach88/dhtrecords/internal/pagination"
	"github.com/roach88/dhtrecords/internal/records"
	"github.com/roach88/dhtrecords/internal/rpc"
	"github.com/roach88/dhtrecords/internal/store"
)

// Roles under which the entity modules are registered. A partition's
// configuration may map a role to a different module name.
const (
	RoleResource = "economic_resource"
	RoleEvent    = "economic_event"
	RoleProcess  = "process"
	RoleProposal = "proposal"
)

// SpecificationPermission is the claim permission a partition uses to index
// resources against the partition holding resource specifications.
const SpecificationPermission = "index_resource_specification_conforming_resources"

// Functions served by every entity module.
const (
	FunctionCreate = "create"
	FunctionGet    = "get"
	FunctionUpdate = "update"
	FunctionDelete = "delete"
	FunctionList   = "list"

	// FunctionInventoryFromEvent is served by the resource module only and
	// is called by the event module of the same partition.
	FunctionInventoryFromEvent = "create_inventory_from_event"
)

var (
	resourceDef = records.EntryDef{Type: "economic_resource"}
	eventDef    = records.EntryDef{Type: "economic_event"}
	processDef  = records.EntryDef{Type: "process"}
	proposalDef = records.EntryDef{Type: "proposal"}
)

// Index relations between entities.
var (
	relContainedIn = indexes.Relation{Type: "contained_in"}
	relContains    = indexes.Relation{Type: "contains"}
	relConformsTo  = indexes.Relation{Type: "conforms_to"}
	relConforming  = indexes.Relation{Type: "conforming_resources"}
	relAffectedBy  = indexes.Relation{Type: "affected_by"}
	relInventory   = indexes.Relation{Type: "resource_inventoried_as"}
	relToInventory = indexes.Relation{Type: "to_resource_inventoried_as"}
	relInputOf     = indexes.Relation{Type: "input_of"}
	relInputs      = indexes.Relation{Type: "inputs"}
	relOutputOf    = indexes.Relation{Type: "output_of"}
	relOutputs     = indexes.Relation{Type: "outputs"}
)

var (
	containedIn = indexes.LocalPair(relContainedIn, relContains)
	inventory   = indexes.LocalPair(relInventory, relAffectedBy)
	toInventory = indexes.LocalPair(relToInventory, relAffectedBy)
	inputOf     = indexes.LocalPair(relInputOf, relInputs)
	outputOf    = indexes.LocalPair(relOutputOf, relOutputs)
)

// ErrInventoryConflict is returned when an event both creates a new
// inventoried resource and names an existing one.
var ErrInventoryConflict = errors.New("cannot create a new economic resource and name an inventoried resource in the same event")

// ByAddress selects a record by identity or revision.
type ByAddress struct {
	Address string `json:"address"`
}

// ByRevision selects one revision of a record.
type ByRevision struct {
	RevisionID ir.RevisionPointer `json:"revisionId"`
}

// Service serves the entity modules of one partition.
type Service struct {
	engine  *indexes.Engine
	store   *store.Store
	cfg     *config.Config
	local   rpc.LocalInvoker
	metrics *metrics.Metrics
	logger  *zap.Logger

	conformsTo indexes.Index
}

// Option configures a Service.
type Option func(*Service)

// WithConfig sets the partition configuration used to name modules.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

// WithLocalInvoker routes calls between this partition's modules through c.
// Without one, the modules call each other directly.
func WithLocalInvoker(c rpc.LocalInvoker) Option {
	return func(s *Service) { s.local = c }
}

// WithSpecifications indexes resource conforms_to against the resource
// specifications held by partition, reached with permission. Without it,
// conforms_to is indexed locally only.
func WithSpecifications(partition, permission string) Option {
	return func(s *Service) {
		s.conformsTo = indexes.RemotePair(relConformsTo, partition, permission, relConforming)
	}
}

// WithMetrics counts record operations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Service writing through e.
func New(e *indexes.Engine, opts ...Option) *Service {
	s := &Service{
		engine:     e,
		store:      e.Store(),
		logger:     zap.NewNop(),
		conformsTo: indexes.Local(relConformsTo),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Module returns the module name serving role in this partition.
func (s *Service) Module(role string) string {
	if m := s.cfg.Module(role); m != "" {
		return m
	}
	return role
}

// Register serves every entity module on srv.
func (s *Service) Register(srv *rpc.Server) {
	res := s.Module(RoleResource)
	srv.Register(res, FunctionCreate, rpc.Handle(s.CreateResource))
	srv.Register(res, FunctionGet, rpc.Handle(func(ctx context.Context, p ByAddress) (ResourceResponse, error) {
		return s.GetResource(ctx, p.Address)
	}))
	srv.Register(res, FunctionUpdate, rpc.Handle(s.UpdateResource))
	srv.Register(res, FunctionDelete, rpc.Handle(func(ctx context.Context, p ByRevision) (bool, error) {
		return s.DeleteResource(ctx, p.RevisionID)
	}))
	srv.Register(res, FunctionList, rpc.Handle(s.ListResources))
	srv.Register(res, FunctionInventoryFromEvent, rpc.Handle(s.CreateInventoryFromEvent))

	evt := s.Module(RoleEvent)
	srv.Register(evt, FunctionCreate, rpc.Handle(s.CreateEvent))
	srv.Register(evt, FunctionGet, rpc.Handle(func(ctx context.Context, p ByAddress) (EventResponse, error) {
		return s.GetEvent(ctx, p.Address)
	}))
	srv.Register(evt, FunctionUpdate, rpc.Handle(s.UpdateEvent))
	srv.Register(evt, FunctionDelete, rpc.Handle(func(ctx context.Context, p ByRevision) (bool, error) {
		return s.DeleteEvent(ctx, p.RevisionID)
	}))
	srv.Register(evt, FunctionList, rpc.Handle(s.ListEvents))

	proc := s.Module(RoleProcess)
	srv.Register(proc, FunctionCreate, rpc.Handle(s.CreateProcess))
	srv.Register(proc, FunctionGet, rpc.Handle(func(ctx context.Context, p ByAddress) (ProcessResponse, error) {
		return s.GetProcess(ctx, p.Address)
	}))
	srv.Register(proc, FunctionUpdate, rpc.Handle(s.UpdateProcess))
	srv.Register(proc, FunctionDelete, rpc.Handle(func(ctx context.Context, p ByRevision) (bool, error) {
		return s.DeleteProcess(ctx, p.RevisionID)
	}))
	srv.Register(proc, FunctionList, rpc.Handle(s.ListProcesses))

	prop := s.Module(RoleProposal)
	srv.Register(prop, FunctionCreate, rpc.Handle(s.CreateProposal))
	srv.Register(prop, FunctionGet, rpc.Handle(func(ctx context.Context, p ByAddress) (ProposalResponse, error) {
		return s.GetProposal(ctx, p.Address)
	}))
	srv.Register(prop, FunctionUpdate, rpc.Handle(s.UpdateProposal))
	srv.Register(prop, FunctionDelete, rpc.Handle(func(ctx context.Context, p ByRevision) (bool, error) {
		return s.DeleteProposal(ctx, p.RevisionID)
	}))
	srv.Register(prop, FunctionList, rpc.Handle(s.ListProposals))
}

// observe counts one operation and passes err through.
func (s *Service) observe(def records.EntryDef, op string, err error) error {
	result := "ok"
	switch {
	case err == nil:
	case records.IsNotFound(err):
		result = "not_found"
	case records.IsRevisionMismatch(err):
		result = "conflict"
	case records.IsRemoteRequest(err):
		result = "one_sided"
	default:
		result = "error"
	}
	s.metrics.RecordOp(def.Type, op, result)
	if err != nil {
		s.logger.Debug("record operation failed",
			zap.String("entry_type", def.Type),
			zap.String("op", op),
			zap.Error(err))
	}
	return err
}

// list reads every live record of def and pages the responses built by
// build. Deleted records are skipped; other per-record failures are logged
// and skipped.
func list[T, R any](ctx context.Context, s *Service, def records.EntryDef, req pagination.Request, build func(records.Record[T]) (R, error), id func(R) ir.IdentityAddress) (pagination.Connection[R], error) {
	var items []R
	for rec, err := range records.QueryRoot[T](ctx, s.store, def) {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return pagination.Connection[R]{}, ctxErr
			}
			if !records.IsNotFound(err) {
				s.logger.Warn("skipping unreadable record",
					zap.String("entry_type", def.Type),
					zap.Error(err))
			}
			continue
		}
		item, err := build(rec)
		if err != nil {
			return pagination.Connection[R]{}, err
		}
		items = append(items, item)
	}
	s.metrics.RecordOp(def.Type, "list", "ok")
	return pagination.Paginate(items, id, req), nil
}

// optional returns a one-element slice for a set address.
func optional(a *ir.IdentityAddress) []ir.IdentityAddress {
	if a == nil {
		return nil
	}
	return []ir.IdentityAddress{*a}
}
