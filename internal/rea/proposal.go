package rea

import (
	"context"
	"time"

	"github.com/roach88/dhtrecords/internal/ir"
	"github.com/roach88/dhtrecords/internal/pagination"
	"github.com/roach88/dhtrecords/internal/records"
)

// ProposalEntry is the stored form of a proposal.
type ProposalEntry struct {
	Name         *string    `json:"name,omitempty"`
	HasBeginning *time.Time `json:"has_beginning,omitempty"`
	HasEnd       *time.Time `json:"has_end,omitempty"`
	UnitBased    *bool      `json:"unit_based,omitempty"`
	Created      *time.Time `json:"created,omitempty"`
	Note         *string    `json:"note,omitempty"`
	InScopeOf    []string   `json:"in_scope_of,omitempty"`
}

// Proposal is a proposal as returned to callers.
type Proposal struct {
	ID           ir.IdentityAddress `json:"id"`
	RevisionID   ir.RevisionPointer `json:"revisionId"`
	Name         *string            `json:"name,omitempty"`
	HasBeginning *time.Time         `json:"hasBeginning,omitempty"`
	HasEnd       *time.Time         `json:"hasEnd,omitempty"`
	UnitBased    *bool              `json:"unitBased,omitempty"`
	Created      *time.Time         `json:"created,omitempty"`
	Note         *string            `json:"note,omitempty"`
	InScopeOf    []string           `json:"inScopeOf,omitempty"`
}

// ProposalResponse wraps a Proposal.
type ProposalResponse struct {
	Proposal Proposal `json:"proposal"`
}

// CreateProposalRequest describes a new proposal.
type CreateProposalRequest struct {
	Name         ir.Maybe[string]    `json:"name,omitzero"`
	HasBeginning ir.Maybe[time.Time] `json:"hasBeginning,omitzero"`
	HasEnd       ir.Maybe[time.Time] `json:"hasEnd,omitzero"`
	UnitBased    ir.Maybe[bool]      `json:"unitBased,omitzero"`
	Created      ir.Maybe[time.Time] `json:"created,omitzero"`
	Note         ir.Maybe[string]    `json:"note,omitzero"`
	InScopeOf    ir.Maybe[[]string]  `json:"inScopeOf,omitzero"`
}

// CreateProposalParams wraps a CreateProposalRequest.
type CreateProposalParams struct {
	Proposal CreateProposalRequest `json:"proposal"`
}

// UpdateProposalRequest changes a proposal. created is fixed.
type UpdateProposalRequest struct {
	RevisionID   ir.RevisionPointer  `json:"revisionId"`
	Name         ir.Maybe[string]    `json:"name,omitzero"`
	HasBeginning ir.Maybe[time.Time] `json:"hasBeginning,omitzero"`
	HasEnd       ir.Maybe[time.Time] `json:"hasEnd,omitzero"`
	UnitBased    ir.Maybe[bool]      `json:"unitBased,omitzero"`
	Note         ir.Maybe[string]    `json:"note,omitzero"`
	InScopeOf    ir.Maybe[[]string]  `json:"inScopeOf,omitzero"`
}

// UpdateProposalParams wraps an UpdateProposalRequest.
type UpdateProposalParams struct {
	Proposal UpdateProposalRequest `json:"proposal"`
}

// CreateProposal creates a proposal.
func (s *Service) CreateProposal(ctx context.Context, p CreateProposalParams) (ProposalResponse, error) {
	req := p.Proposal
	var scope []string
	if v := req.InScopeOf.Ptr(); v != nil {
		scope = *v
	}
	rec, err := records.Create(ctx, s.store, proposalDef, ProposalEntry{
		Name:         req.Name.Ptr(),
		HasBeginning: req.HasBeginning.Ptr(),
		HasEnd:       req.HasEnd.Ptr(),
		UnitBased:    req.UnitBased.Ptr(),
		Created:      req.Created.Ptr(),
		Note:         req.Note.Ptr(),
		InScopeOf:    scope,
	})
	if err != nil {
		return ProposalResponse{}, s.observe(proposalDef, "create", err)
	}
	return ProposalResponse{Proposal: proposalFrom(rec)}, s.observe(proposalDef, "create", nil)
}

// GetProposal reads a proposal by identity or revision.
func (s *Service) GetProposal(ctx context.Context, address string) (ProposalResponse, error) {
	rec, err := records.Read[ProposalEntry](ctx, s.store, proposalDef, address)
	if err != nil {
		return ProposalResponse{}, s.observe(proposalDef, "get", err)
	}
	return ProposalResponse{Proposal: proposalFrom(rec)}, s.observe(proposalDef, "get", nil)
}

// UpdateProposal applies req to the proposal revision it names.
func (s *Service) UpdateProposal(ctx context.Context, p UpdateProposalParams) (ProposalResponse, error) {
	req := p.Proposal
	up, err := records.Update(ctx, s.store, proposalDef, req.RevisionID, func(e ProposalEntry) (ProposalEntry, error) {
		e.Name = req.Name.Apply(e.Name)
		e.HasBeginning = req.HasBeginning.Apply(e.HasBeginning)
		e.HasEnd = req.HasEnd.Apply(e.HasEnd)
		e.UnitBased = req.UnitBased.Apply(e.UnitBased)
		e.Note = req.Note.Apply(e.Note)
		if scope := req.InScopeOf.Apply(&e.InScopeOf); scope != nil {
			e.InScopeOf = *scope
		} else {
			e.InScopeOf = nil
		}
		return e, nil
	})
	if err != nil {
		return ProposalResponse{}, s.observe(proposalDef, "update", err)
	}
	return ProposalResponse{Proposal: proposalFrom(up.Record)}, s.observe(proposalDef, "update", nil)
}

// DeleteProposal deletes the proposal at revision.
func (s *Service) DeleteProposal(ctx context.Context, revision ir.RevisionPointer) (bool, error) {
	ok, err := records.Delete(ctx, s.store, revision)
	return ok, s.observe(proposalDef, "delete", err)
}

// ListProposals pages every live proposal in creation order.
func (s *Service) ListProposals(ctx context.Context, req pagination.Request) (pagination.Connection[Proposal], error) {
	return list(ctx, s, proposalDef, req,
		func(rec records.Record[ProposalEntry]) (Proposal, error) { return proposalFrom(rec), nil },
		func(p Proposal) ir.IdentityAddress { return p.ID })
}

func proposalFrom(rec records.Record[ProposalEntry]) Proposal {
	e := rec.Entry
	return Proposal{
		ID:           rec.Identity,
		RevisionID:   rec.Revision,
		Name:         e.Name,
		HasBeginning: e.HasBeginning,
		HasEnd:       e.HasEnd,
		UnitBased:    e.UnitBased,
		Created:      e.Created,
		Note:         e.Note,
		InScopeOf:    e.InScopeOf,
	}
}
