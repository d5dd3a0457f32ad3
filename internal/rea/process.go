package rea

import (
	"context"
	"time"

	"github.com/roach88/dhtrecords/internal/ir"
	"github.com/roach88/dhtrecords/internal/pagination"
	"github.com/roach88/dhtrecords/internal/records"
)

// ProcessEntry is the stored form of a process.
type ProcessEntry struct {
	Name         string              `json:"name"`
	BasedOn      *ir.IdentityAddress `json:"based_on,omitempty"`
	HasBeginning *time.Time          `json:"has_beginning,omitempty"`
	HasEnd       *time.Time          `json:"has_end,omitempty"`
	Finished     bool                `json:"finished,omitempty"`
	Note         *string             `json:"note,omitempty"`
}

// Process is a process as returned to callers, with the events indexed as
// its inputs and outputs.
type Process struct {
	ID           ir.IdentityAddress   `json:"id"`
	RevisionID   ir.RevisionPointer   `json:"revisionId"`
	Name         string               `json:"name"`
	BasedOn      *ir.IdentityAddress  `json:"basedOn,omitempty"`
	HasBeginning *time.Time           `json:"hasBeginning,omitempty"`
	HasEnd       *time.Time           `json:"hasEnd,omitempty"`
	Finished     bool                 `json:"finished"`
	Note         *string              `json:"note,omitempty"`
	Inputs       []ir.IdentityAddress `json:"inputs,omitempty"`
	Outputs      []ir.IdentityAddress `json:"outputs,omitempty"`
}

// ProcessResponse wraps a Process.
type ProcessResponse struct {
	Process Process `json:"process"`
}

// CreateProcessRequest describes a new process.
type CreateProcessRequest struct {
	Name         string                       `json:"name"`
	BasedOn      ir.Maybe[ir.IdentityAddress] `json:"basedOn,omitzero"`
	HasBeginning ir.Maybe[time.Time]          `json:"hasBeginning,omitzero"`
	HasEnd       ir.Maybe[time.Time]          `json:"hasEnd,omitzero"`
	Finished     ir.Maybe[bool]               `json:"finished,omitzero"`
	Note         ir.Maybe[string]             `json:"note,omitzero"`
}

// CreateProcessParams wraps a CreateProcessRequest.
type CreateProcessParams struct {
	Process CreateProcessRequest `json:"process"`
}

// UpdateProcessRequest changes a process.
type UpdateProcessRequest struct {
	RevisionID   ir.RevisionPointer           `json:"revisionId"`
	Name         ir.Maybe[string]             `json:"name,omitzero"`
	BasedOn      ir.Maybe[ir.IdentityAddress] `json:"basedOn,omitzero"`
	HasBeginning ir.Maybe[time.Time]          `json:"hasBeginning,omitzero"`
	HasEnd       ir.Maybe[time.Time]          `json:"hasEnd,omitzero"`
	Finished     ir.Maybe[bool]               `json:"finished,omitzero"`
	Note         ir.Maybe[string]             `json:"note,omitzero"`
}

// UpdateProcessParams wraps an UpdateProcessRequest.
type UpdateProcessParams struct {
	Process UpdateProcessRequest `json:"process"`
}

// CreateProcess creates a process.
func (s *Service) CreateProcess(ctx context.Context, p CreateProcessParams) (ProcessResponse, error) {
	req := p.Process
	finished, _ := req.Finished.Get()
	rec, err := records.Create(ctx, s.store, processDef, ProcessEntry{
		Name:         req.Name,
		BasedOn:      req.BasedOn.Ptr(),
		HasBeginning: req.HasBeginning.Ptr(),
		HasEnd:       req.HasEnd.Ptr(),
		Finished:     finished,
		Note:         req.Note.Ptr(),
	})
	if err != nil {
		return ProcessResponse{}, s.observe(processDef, "create", err)
	}
	resp, err := s.processResponse(ctx, rec)
	return resp, s.observe(processDef, "create", err)
}

// GetProcess reads a process by identity or revision.
func (s *Service) GetProcess(ctx context.Context, address string) (ProcessResponse, error) {
	rec, err := records.Read[ProcessEntry](ctx, s.store, processDef, address)
	if err != nil {
		return ProcessResponse{}, s.observe(processDef, "get", err)
	}
	resp, err := s.processResponse(ctx, rec)
	return resp, s.observe(processDef, "get", err)
}

// UpdateProcess applies req to the process revision it names.
func (s *Service) UpdateProcess(ctx context.Context, p UpdateProcessParams) (ProcessResponse, error) {
	req := p.Process
	up, err := records.Update(ctx, s.store, processDef, req.RevisionID, func(e ProcessEntry) (ProcessEntry, error) {
		if name, ok := req.Name.Get(); ok {
			e.Name = name
		}
		e.BasedOn = req.BasedOn.Apply(e.BasedOn)
		e.HasBeginning = req.HasBeginning.Apply(e.HasBeginning)
		e.HasEnd = req.HasEnd.Apply(e.HasEnd)
		if f := req.Finished.Apply(&e.Finished); f != nil {
			e.Finished = *f
		} else {
			e.Finished = false
		}
		e.Note = req.Note.Apply(e.Note)
		return e, nil
	})
	if err != nil {
		return ProcessResponse{}, s.observe(processDef, "update", err)
	}
	resp, err := s.processResponse(ctx, up.Record)
	return resp, s.observe(processDef, "update", err)
}

// DeleteProcess deletes the process at revision. Events keep their
// inputOf and outputOf fields.
func (s *Service) DeleteProcess(ctx context.Context, revision ir.RevisionPointer) (bool, error) {
	ok, err := records.Delete(ctx, s.store, revision)
	return ok, s.observe(processDef, "delete", err)
}

// ListProcesses pages every live process in creation order.
func (s *Service) ListProcesses(ctx context.Context, req pagination.Request) (pagination.Connection[Process], error) {
	return list(ctx, s, processDef, req,
		func(rec records.Record[ProcessEntry]) (Process, error) {
			resp, err := s.processResponse(ctx, rec)
			return resp.Process, err
		},
		func(p Process) ir.IdentityAddress { return p.ID })
}

func (s *Service) processResponse(ctx context.Context, rec records.Record[ProcessEntry]) (ProcessResponse, error) {
	inputs, err := s.engine.Read(ctx, rec.Identity, relInputs)
	if err != nil {
		return ProcessResponse{}, err
	}
	outputs, err := s.engine.Read(ctx, rec.Identity, relOutputs)
	if err != nil {
		return ProcessResponse{}, err
	}
	e := rec.Entry
	return ProcessResponse{Process: Process{
		ID:           rec.Identity,
		RevisionID:   rec.Revision,
		Name:         e.Name,
		BasedOn:      e.BasedOn,
		HasBeginning: e.HasBeginning,
		HasEnd:       e.HasEnd,
		Finished:     e.Finished,
		Note:         e.Note,
		Inputs:       inputs,
		Outputs:      outputs,
	}}, nil
}
