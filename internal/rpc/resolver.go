package rpc

import (
	"context"

	"github.com/roach88/dhtrecords/internal/ir"
	"github.com/roach88/dhtrecords/internal/store"
)

// Resolver finds the claim a partition holds for a permission on another
// partition. It returns store.ErrNotFound when none exists.
// *store.Store implements it.
type Resolver interface {
	Claim(ctx context.Context, partition, permission string) (ir.Claim, error)
}

// StaticClaims resolves from a fixed list, typically the claims section of a
// partition's configuration.
type StaticClaims []ir.Claim

// Claim implements Resolver.
func (sc StaticClaims) Claim(_ context.Context, partition, permission string) (ir.Claim, error) {
	for _, c := range sc {
		if c.Partition == partition && c.Permission == permission {
			return c, nil
		}
	}
	return ir.Claim{}, store.ErrNotFound
}
