package rea

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/dhtrecords/internal/config"
	"github.com/roach88/dhtrecords/internal/indexes"
	"github.com/roach88/dhtrecords/internal/ir"
	"github.com/roach88/dhtrecords/internal/pagination"
	"github.com/roach88/dhtrecords/internal/records"
	"github.com/roach88/dhtrecords/internal/rpc"
)

// ResourceEntry is the stored form of an economic resource.
type ResourceEntry struct {
	Name               *string             `json:"name,omitempty"`
	ConformsTo         *ir.IdentityAddress `json:"conforms_to,omitempty"`
	ContainedIn        *ir.IdentityAddress `json:"contained_in,omitempty"`
	TrackingIdentifier *string             `json:"tracking_identifier,omitempty"`
	Note               *string             `json:"note,omitempty"`
}

// Resource is an economic resource as returned to callers, including its
// index fields and the values folded from the events affecting it.
type Resource struct {
	ID                 ir.IdentityAddress  `json:"id"`
	RevisionID         ir.RevisionPointer  `json:"revisionId"`
	Name               *string             `json:"name,omitempty"`
	ConformsTo         *ir.IdentityAddress `json:"conformsTo,omitempty"`
	ContainedIn        *ir.IdentityAddress `json:"containedIn,omitempty"`
	TrackingIdentifier *string             `json:"trackingIdentifier,omitempty"`
	Note               *string             `json:"note,omitempty"`

	// Stage is the process specification of the process that most
	// recently output this resource.
	Stage *ir.IdentityAddress `json:"stage,omitempty"`

	// State is the most recent pass or fail action applied to the resource.
	State *string `json:"state,omitempty"`

	Contains   []ir.IdentityAddress `json:"contains,omitempty"`
	AffectedBy []ir.IdentityAddress `json:"affectedBy,omitempty"`
}

// ResourceResponse wraps a Resource.
type ResourceResponse struct {
	EconomicResource Resource `json:"economicResource"`
}

// CreateResourceRequest holds the resource fields an event may set when it
// creates a new inventoried resource.
type CreateResourceRequest struct {
	Name               ir.Maybe[string]             `json:"name,omitzero"`
	ConformsTo         ir.Maybe[ir.IdentityAddress] `json:"conformsTo,omitzero"`
	ContainedIn        ir.Maybe[ir.IdentityAddress] `json:"containedIn,omitzero"`
	TrackingIdentifier ir.Maybe[string]             `json:"trackingIdentifier,omitzero"`
	Note               ir.Maybe[string]             `json:"note,omitzero"`
}

// CreateResourceParams wraps a CreateResourceRequest.
type CreateResourceParams struct {
	Resource CreateResourceRequest `json:"resource"`
}

// UpdateResourceRequest changes an economic resource. conformsTo is fixed
// at creation.
type UpdateResourceRequest struct {
	RevisionID         ir.RevisionPointer           `json:"revisionId"`
	Name               ir.Maybe[string]             `json:"name,omitzero"`
	ContainedIn        ir.Maybe[ir.IdentityAddress] `json:"containedIn,omitzero"`
	TrackingIdentifier ir.Maybe[string]             `json:"trackingIdentifier,omitzero"`
	Note               ir.Maybe[string]             `json:"note,omitzero"`
}

// UpdateResourceParams wraps an UpdateResourceRequest.
type UpdateResourceParams struct {
	Resource UpdateResourceRequest `json:"resource"`
}

// InventoryParams is the payload of create_inventory_from_event.
type InventoryParams struct {
	Event    CreateEventRequest    `json:"event"`
	Resource CreateResourceRequest `json:"resource"`
}

// CreateResource creates a standalone economic resource.
func (s *Service) CreateResource(ctx context.Context, p CreateResourceParams) (ResourceResponse, error) {
	rec, err := s.createResource(ctx, p.Resource)
	if err != nil {
		return ResourceResponse{}, err
	}
	return s.resourceResponse(ctx, rec)
}

// CreateInventoryFromEvent creates the resource an event brings into
// inventory. The event must not already name an inventoried resource. The
// new resource's conformsTo
// defaults to the event's resourceConformsTo.
func (s *Service) CreateInventoryFromEvent(ctx context.Context, p InventoryParams) (ResourceResponse, error) {
	if p.Event.ResourceInventoriedAs.IsSome() {
		return ResourceResponse{}, s.observe(resourceDef, "create", ErrInventoryConflict)
	}
	req := p.Resource
	if req.ConformsTo.IsUndefined() {
		req.ConformsTo = p.Event.ResourceConformsTo
	}
	rec, err := s.createResource(ctx, req)
	if err != nil {
		return ResourceResponse{}, err
	}
	return s.resourceResponse(ctx, rec)
}

func (s *Service) createResource(ctx context.Context, req CreateResourceRequest) (records.Record[ResourceEntry], error) {
	entry := ResourceEntry{
		Name:               req.Name.Ptr(),
		ConformsTo:         req.ConformsTo.Ptr(),
		ContainedIn:        req.ContainedIn.Ptr(),
		TrackingIdentifier: req.TrackingIdentifier.Ptr(),
		Note:               req.Note.Ptr(),
	}
	rec, err := records.Create(ctx, s.store, resourceDef, entry)
	if err != nil {
		return rec, s.observe(resourceDef, "create", err)
	}

	if entry.ContainedIn != nil {
		if _, err := s.engine.Create(ctx, containedIn, rec.Identity, *entry.ContainedIn); err != nil {
			return rec, s.observe(resourceDef, "create", err)
		}
	}
	if entry.ConformsTo != nil {
		// A one-sided pair leaves the resource usable; the reciprocal is
		// repaired by re-sending the index update.
		if _, err := s.engine.Create(ctx, s.conformsTo, rec.Identity, *entry.ConformsTo); err != nil {
			if !records.IsRemoteRequest(err) {
				return rec, s.observe(resourceDef, "create", err)
			}
			s.logger.Warn("resource specification index is one-sided",
				zap.String("resource", rec.Identity.Short()),
				zap.Error(err))
		}
	}
	return rec, s.observe(resourceDef, "create", nil)
}

// GetResource reads an economic resource by identity or revision.
func (s *Service) GetResource(ctx context.Context, address string) (ResourceResponse, error) {
	rec, err := records.Read[ResourceEntry](ctx, s.store, resourceDef, address)
	if err != nil {
		return ResourceResponse{}, s.observe(resourceDef, "get", err)
	}
	resp, err := s.resourceResponse(ctx, rec)
	return resp, s.observe(resourceDef, "get", err)
}

// UpdateResource applies req to the resource revision it names and moves
// the containedIn index to match.
func (s *Service) UpdateResource(ctx context.Context, p UpdateResourceParams) (ResourceResponse, error) {
	req := p.Resource
	up, err := records.Update(ctx, s.store, resourceDef, req.RevisionID, func(e ResourceEntry) (ResourceEntry, error) {
		e.Name = req.Name.Apply(e.Name)
		e.ContainedIn = req.ContainedIn.Apply(e.ContainedIn)
		e.TrackingIdentifier = req.TrackingIdentifier.Apply(e.TrackingIdentifier)
		e.Note = req.Note.Apply(e.Note)
		return e, nil
	})
	if err != nil {
		return ResourceResponse{}, s.observe(resourceDef, "update", err)
	}

	if _, _, err := s.engine.Update(ctx, containedIn, up.Identity,
		optional(up.Entry.ContainedIn), optional(up.Prior.ContainedIn)); err != nil {
		return ResourceResponse{}, s.observe(resourceDef, "update", err)
	}
	resp, err := s.resourceResponse(ctx, up.Record)
	return resp, s.observe(resourceDef, "update", err)
}

// requireInventory checks that each resource e names is live.
func (s *Service) requireInventory(ctx context.Context, e EventEntry) error {
	for _, id := range []*ir.IdentityAddress{e.ToResourceInventoriedAs, e.ResourceInventoriedAs} {
		if id == nil {
			continue
		}
		if _, err := records.LatestRevision(ctx, s.store, *id); err != nil {
			return fmt.Errorf("inventory %s: %w", id.Short(), err)
		}
	}
	return nil
}

// linkInventory indexes event against the resources it names, receiver
// first.
func (s *Service) linkInventory(ctx context.Context, event ir.IdentityAddress, e EventEntry) error {
	for _, side := range []struct {
		resource *ir.IdentityAddress
		idx      indexes.Index
	}{
		{e.ToResourceInventoriedAs, toInventory},
		{e.ResourceInventoriedAs, inventory},
	} {
		if side.resource == nil {
			continue
		}
		if _, err := s.engine.Create(ctx, side.idx, event, *side.resource); err != nil {
			return err
		}
	}
	return nil
}

// DeleteResource deletes the resource at revision. Index edges stay.
func (s *Service) DeleteResource(ctx context.Context, revision ir.RevisionPointer) (bool, error) {
	ok, err := records.Delete(ctx, s.store, revision)
	return ok, s.observe(resourceDef, "delete", err)
}

// ListResources pages every live resource in creation order.
func (s *Service) ListResources(ctx context.Context, req pagination.Request) (pagination.Connection[Resource], error) {
	return list(ctx, s, resourceDef, req,
		func(rec records.Record[ResourceEntry]) (Resource, error) {
			resp, err := s.resourceResponse(ctx, rec)
			return resp.EconomicResource, err
		},
		func(r Resource) ir.IdentityAddress { return r.ID })
}

// ResourceState returns the action of the most recent pass or fail event
// affecting resource.
func (s *Service) ResourceState(ctx context.Context, resource ir.IdentityAddress) (string, bool, error) {
	events, err := s.engine.Read(ctx, resource, relAffectedBy)
	if err != nil {
		return "", false, err
	}
	state, ok := indexes.Latest(events, func(id ir.IdentityAddress) (string, bool, error) {
		evt, err := records.Read[EventEntry](ctx, s.store, eventDef, id.String())
		if err != nil {
			return "", false, err
		}
		switch evt.Entry.Action {
		case ActionPass, ActionFail:
			return evt.Entry.Action, true, nil
		}
		return "", false, nil
	})
	return state, ok, nil
}

// ResourceStage returns the process specification of the process the most
// recent output event affecting resource belongs to.
func (s *Service) ResourceStage(ctx context.Context, resource ir.IdentityAddress) (ir.IdentityAddress, bool, error) {
	events, err := s.engine.Read(ctx, resource, relAffectedBy)
	if err != nil {
		return "", false, err
	}
	stage, ok := indexes.Latest(events, func(id ir.IdentityAddress) (ir.IdentityAddress, bool, error) {
		evt, err := records.Read[EventEntry](ctx, s.store, eventDef, id.String())
		if err != nil {
			return "", false, err
		}
		if evt.Entry.OutputOf == nil {
			return "", false, nil
		}
		proc, err := records.Read[ProcessEntry](ctx, s.store, processDef, evt.Entry.OutputOf.String())
		if err != nil {
			return "", false, err
		}
		if proc.Entry.BasedOn == nil {
			return "", false, nil
		}
		return *proc.Entry.BasedOn, true, nil
	})
	return stage, ok, nil
}

func (s *Service) resourceResponse(ctx context.Context, rec records.Record[ResourceEntry]) (ResourceResponse, error) {
	contains, err := s.engine.Read(ctx, rec.Identity, relContains)
	if err != nil {
		return ResourceResponse{}, err
	}
	affectedBy, err := s.engine.Read(ctx, rec.Identity, relAffectedBy)
	if err != nil {
		return ResourceResponse{}, err
	}
	r := Resource{
		ID:                 rec.Identity,
		RevisionID:         rec.Revision,
		Name:               rec.Entry.Name,
		ConformsTo:         rec.Entry.ConformsTo,
		ContainedIn:        rec.Entry.ContainedIn,
		TrackingIdentifier: rec.Entry.TrackingIdentifier,
		Note:               rec.Entry.Note,
		Contains:           contains,
		AffectedBy:         affectedBy,
	}
	if state, ok, err := s.ResourceState(ctx, rec.Identity); err != nil {
		return ResourceResponse{}, err
	} else if ok {
		r.State = &state
	}
	if stage, ok, err := s.ResourceStage(ctx, rec.Identity); err != nil {
		return ResourceResponse{}, err
	} else if ok {
		r.Stage = &stage
	}
	return ResourceResponse{EconomicResource: r}, nil
}

// inventoryFromEvent creates the event's new resource, through the local
// resource module when an invoker is configured.
func (s *Service) inventoryFromEvent(ctx context.Context, p InventoryParams) (ResourceResponse, error) {
	if s.local == nil {
		return s.CreateInventoryFromEvent(ctx, p)
	}
	return rpc.CallLocal[ResourceResponse](ctx, s.local, config.ModuleFor(RoleResource), FunctionInventoryFromEvent, p)
}
