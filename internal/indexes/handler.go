package indexes

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/dhtrecords/internal/ir"
	"github.com/roach88/dhtrecords/internal/rpc"
	"github.com/roach88/dhtrecords/internal/store"
)

// Module and function under which the engine serves reciprocal edge writes.
const (
	Module         = "index"
	FunctionUpdate = "update"
)

// UpdateRequest asks a partition to link each of its records in Add to
// Source under Relation, and unlink each in Remove.
type UpdateRequest struct {
	Source   ir.IdentityAddress   `json:"source"`
	Relation Relation             `json:"relation"`
	Add      []ir.IdentityAddress `json:"add,omitempty"`
	Remove   []ir.IdentityAddress `json:"remove,omitempty"`
}

// UpdateResponse reports how many reciprocal edges changed. Re-sending a
// request is harmless: already-live links and absent links count zero.
type UpdateResponse struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// Register serves index.update on srv.
func (e *Engine) Register(srv *rpc.Server) {
	srv.Register(Module, FunctionUpdate, rpc.Handle(e.HandleUpdate))
}

// HandleUpdate applies the reciprocal half of a remote pair.
func (e *Engine) HandleUpdate(ctx context.Context, req UpdateRequest) (UpdateResponse, error) {
	if req.Source == "" {
		return UpdateResponse{}, fmt.Errorf("index update: source is empty")
	}
	add := make([]store.LinkSpec, 0, len(req.Add))
	for _, base := range req.Add {
		add = append(add, spec(base, req.Relation, req.Source))
	}
	remove := make([]store.LinkSpec, 0, len(req.Remove))
	for _, base := range req.Remove {
		remove = append(remove, spec(base, req.Relation, req.Source))
	}

	changes, err := e.apply(ctx, req.Relation, add, remove)
	if err != nil {
		return UpdateResponse{}, err
	}
	e.logger.Debug("reciprocal index updated",
		zap.String("relation", req.Relation.String()),
		zap.String("source", req.Source.Short()),
		zap.Int("added", len(changes.Added)),
		zap.Int("removed", len(changes.Removed)))
	return UpdateResponse{Added: len(changes.Added), Removed: len(changes.Removed)}, nil
}
