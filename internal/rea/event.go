package rea

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/dhtrecords/internal/indexes"
	"github.com/roach88/dhtrecords/internal/ir"
	"github.com/roach88/dhtrecords/internal/pagination"
	"github.com/roach88/dhtrecords/internal/records"
)

// Actions the resource folds look for.
const (
	ActionPass = "pass"
	ActionFail = "fail"
)

// EventEntry is the stored form of an economic event.
type EventEntry struct {
	Action                  string              `json:"action"`
	Provider                *string             `json:"provider,omitempty"`
	Receiver                *string             `json:"receiver,omitempty"`
	ResourceInventoriedAs   *ir.IdentityAddress `json:"resource_inventoried_as,omitempty"`
	ToResourceInventoriedAs *ir.IdentityAddress `json:"to_resource_inventoried_as,omitempty"`
	ResourceConformsTo      *ir.IdentityAddress `json:"resource_conforms_to,omitempty"`
	InputOf                 *ir.IdentityAddress `json:"input_of,omitempty"`
	OutputOf                *ir.IdentityAddress `json:"output_of,omitempty"`
	HasPointInTime          *time.Time          `json:"has_point_in_time,omitempty"`
	Note                    *string             `json:"note,omitempty"`
}

// Event is an economic event as returned to callers.
type Event struct {
	ID                      ir.IdentityAddress  `json:"id"`
	RevisionID              ir.RevisionPointer  `json:"revisionId"`
	Action                  string              `json:"action"`
	Provider                *string             `json:"provider,omitempty"`
	Receiver                *string             `json:"receiver,omitempty"`
	ResourceInventoriedAs   *ir.IdentityAddress `json:"resourceInventoriedAs,omitempty"`
	ToResourceInventoriedAs *ir.IdentityAddress `json:"toResourceInventoriedAs,omitempty"`
	ResourceConformsTo      *ir.IdentityAddress `json:"resourceConformsTo,omitempty"`
	InputOf                 *ir.IdentityAddress `json:"inputOf,omitempty"`
	OutputOf                *ir.IdentityAddress `json:"outputOf,omitempty"`
	HasPointInTime          *time.Time          `json:"hasPointInTime,omitempty"`
	Note                    *string             `json:"note,omitempty"`
}

// EventResponse wraps an Event and, when the event created one, the new
// inventoried resource.
type EventResponse struct {
	EconomicEvent    Event     `json:"economicEvent"`
	EconomicResource *Resource `json:"economicResource,omitempty"`
}

// CreateEventRequest describes a new economic event.
type CreateEventRequest struct {
	Action                  string                       `json:"action"`
	Provider                ir.Maybe[string]             `json:"provider,omitzero"`
	Receiver                ir.Maybe[string]             `json:"receiver,omitzero"`
	ResourceInventoriedAs   ir.Maybe[ir.IdentityAddress] `json:"resourceInventoriedAs,omitzero"`
	ToResourceInventoriedAs ir.Maybe[ir.IdentityAddress] `json:"toResourceInventoriedAs,omitzero"`
	ResourceConformsTo      ir.Maybe[ir.IdentityAddress] `json:"resourceConformsTo,omitzero"`
	InputOf                 ir.Maybe[ir.IdentityAddress] `json:"inputOf,omitzero"`
	OutputOf                ir.Maybe[ir.IdentityAddress] `json:"outputOf,omitzero"`
	HasPointInTime          ir.Maybe[time.Time]          `json:"hasPointInTime,omitzero"`
	Note                    ir.Maybe[string]             `json:"note,omitzero"`
}

// CreateEventParams wraps a CreateEventRequest. NewInventoriedResource, when
// set, creates the resource the event brings into inventory.
type CreateEventParams struct {
	Event                  CreateEventRequest     `json:"event"`
	NewInventoriedResource *CreateResourceRequest `json:"newInventoriedResource,omitempty"`
}

// UpdateEventRequest changes the descriptive fields of an event. The
// fields that place it in the resource and process indexes are fixed.
type UpdateEventRequest struct {
	RevisionID     ir.RevisionPointer  `json:"revisionId"`
	HasPointInTime ir.Maybe[time.Time] `json:"hasPointInTime,omitzero"`
	Note           ir.Maybe[string]    `json:"note,omitzero"`
}

// UpdateEventParams wraps an UpdateEventRequest.
type UpdateEventParams struct {
	Event UpdateEventRequest `json:"event"`
}

// CreateEvent records an economic event and indexes it against the
// resources and processes it names.
func (s *Service) CreateEvent(ctx context.Context, p CreateEventParams) (EventResponse, error) {
	req := p.Event
	if req.Action == "" {
		return EventResponse{}, s.observe(eventDef, "create", errors.New("event action is empty"))
	}

	var created *Resource
	if p.NewInventoriedResource != nil {
		res, err := s.inventoryFromEvent(ctx, InventoryParams{Event: req, Resource: *p.NewInventoriedResource})
		if err != nil {
			return EventResponse{}, s.observe(eventDef, "create", fmt.Errorf("create inventory: %w", err))
		}
		created = &res.EconomicResource
		req.ResourceInventoriedAs = ir.Some(created.ID)
	}

	entry := EventEntry{
		Action:                  req.Action,
		Provider:                req.Provider.Ptr(),
		Receiver:                req.Receiver.Ptr(),
		ResourceInventoriedAs:   req.ResourceInventoriedAs.Ptr(),
		ToResourceInventoriedAs: req.ToResourceInventoriedAs.Ptr(),
		ResourceConformsTo:      req.ResourceConformsTo.Ptr(),
		InputOf:                 req.InputOf.Ptr(),
		OutputOf:                req.OutputOf.Ptr(),
		HasPointInTime:          req.HasPointInTime.Ptr(),
		Note:                    req.Note.Ptr(),
	}
	if err := s.requireInventory(ctx, entry); err != nil {
		return EventResponse{}, s.observe(eventDef, "create", err)
	}
	rec, err := records.Create(ctx, s.store, eventDef, entry)
	if err != nil {
		return EventResponse{}, s.observe(eventDef, "create", err)
	}

	if err := s.linkInventory(ctx, rec.Identity, entry); err != nil {
		return EventResponse{}, s.observe(eventDef, "create", err)
	}
	if entry.InputOf != nil {
		if _, err := s.engine.Create(ctx, inputOf, rec.Identity, *entry.InputOf); err != nil {
			return EventResponse{}, s.observe(eventDef, "create", err)
		}
	}
	if entry.OutputOf != nil {
		if _, err := s.engine.Create(ctx, outputOf, rec.Identity, *entry.OutputOf); err != nil {
			return EventResponse{}, s.observe(eventDef, "create", err)
		}
	}

	// Re-read so the resource reflects the edge to this event.
	if created != nil {
		res, err := s.GetResource(ctx, created.ID.String())
		if err != nil {
			return EventResponse{}, s.observe(eventDef, "create", err)
		}
		created = &res.EconomicResource
	}
	return EventResponse{EconomicEvent: eventFrom(rec), EconomicResource: created}, s.observe(eventDef, "create", nil)
}

// GetEvent reads an economic event by identity or revision.
func (s *Service) GetEvent(ctx context.Context, address string) (EventResponse, error) {
	rec, err := records.Read[EventEntry](ctx, s.store, eventDef, address)
	if err != nil {
		return EventResponse{}, s.observe(eventDef, "get", err)
	}
	return EventResponse{EconomicEvent: eventFrom(rec)}, s.observe(eventDef, "get", nil)
}

// UpdateEvent applies req to the event revision it names.
func (s *Service) UpdateEvent(ctx context.Context, p UpdateEventParams) (EventResponse, error) {
	req := p.Event
	up, err := records.Update(ctx, s.store, eventDef, req.RevisionID, func(e EventEntry) (EventEntry, error) {
		e.HasPointInTime = req.HasPointInTime.Apply(e.HasPointInTime)
		e.Note = req.Note.Apply(e.Note)
		return e, nil
	})
	if err != nil {
		return EventResponse{}, s.observe(eventDef, "update", err)
	}
	return EventResponse{EconomicEvent: eventFrom(up.Record)}, s.observe(eventDef, "update", nil)
}

// DeleteEvent deletes the event at revision and removes it from the
// resource and process indexes, so it no longer counts towards resource
// state or stage.
func (s *Service) DeleteEvent(ctx context.Context, revision ir.RevisionPointer) (bool, error) {
	rec, err := records.Read[EventEntry](ctx, s.store, eventDef, revision.String())
	if err != nil {
		return false, s.observe(eventDef, "delete", err)
	}
	ok, err := records.Delete(ctx, s.store, revision)
	if err != nil {
		return false, s.observe(eventDef, "delete", err)
	}

	e := rec.Entry
	for _, unlink := range []struct {
		target *ir.IdentityAddress
		pair   indexes.Index
	}{
		{e.ResourceInventoriedAs, inventory},
		{e.ToResourceInventoriedAs, toInventory},
		{e.InputOf, inputOf},
		{e.OutputOf, outputOf},
	} {
		if unlink.target == nil {
			continue
		}
		if _, err := s.engine.Remove(ctx, unlink.pair, rec.Identity, *unlink.target); err != nil {
			return ok, s.observe(eventDef, "delete", err)
		}
	}
	return ok, s.observe(eventDef, "delete", nil)
}

// ListEvents pages every live event in creation order.
func (s *Service) ListEvents(ctx context.Context, req pagination.Request) (pagination.Connection[Event], error) {
	return list(ctx, s, eventDef, req,
		func(rec records.Record[EventEntry]) (Event, error) { return eventFrom(rec), nil },
		func(e Event) ir.IdentityAddress { return e.ID })
}

func eventFrom(rec records.Record[EventEntry]) Event {
	e := rec.Entry
	return Event{
		ID:                      rec.Identity,
		RevisionID:              rec.Revision,
		Action:                  e.Action,
		Provider:                e.Provider,
		Receiver:                e.Receiver,
		ResourceInventoriedAs:   e.ResourceInventoriedAs,
		ToResourceInventoriedAs: e.ToResourceInventoriedAs,
		ResourceConformsTo:      e.ResourceConformsTo,
		InputOf:                 e.InputOf,
		OutputOf:                e.OutputOf,
		HasPointInTime:          e.HasPointInTime,
		Note:                    e.Note,
	}
}
