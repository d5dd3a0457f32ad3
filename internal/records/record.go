package records

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/roach88/dhtrecords/internal/ir"
	"github.com/roach88/dhtrecords/internal/store"
)

// DefaultRootLink is the link type from a root anchor to each record.
const DefaultRootLink = "all"

// EntryDef names one kind of record.
type EntryDef struct {
	// Type is the entry type written into every header, e.g. "economic_resource".
	Type string

	// RootLink overrides DefaultRootLink for the root index.
	RootLink string
}

// Root returns the anchor every record of this type is linked from.
func (d EntryDef) Root() ir.IdentityAddress {
	return ir.AnchorAddress("root:" + d.Type)
}

func (d EntryDef) rootLink() string {
	if d.RootLink != "" {
		return d.RootLink
	}
	return DefaultRootLink
}

// Record is one resolved version of a record.
type Record[T any] struct {
	Revision ir.RevisionPointer `json:"revision"`
	Identity ir.IdentityAddress `json:"identity"`
	Entry    T                  `json:"entry"`
}

// Updated is the result of Update: the new version plus the payload it
// replaced, so callers can compute index deltas.
type Updated[T any] struct {
	Record[T]
	Prior T `json:"prior"`
}

// Create writes the first version of a record and links it from the type's
// root anchor. The record's identity is the address of this first version.
func Create[T any](ctx context.Context, s *store.Store, def EntryDef, payload T) (Record[T], error) {
	c, err := encode(payload)
	if err != nil {
		return Record[T]{}, newIntegrityError("", "payload is not canonically encodable", err)
	}

	h, err := s.AppendCreate(ctx, def.Type, c, def.Root(), def.rootLink())
	if err != nil {
		return Record[T]{}, fromStore("", err)
	}

	// Hand back what was stored, not what was passed in, so
	// Read(Create(p).Identity) == Create(p).
	entry, err := decode[T](h.Identity.String(), c.Raw)
	if err != nil {
		return Record[T]{}, err
	}
	return Record[T]{Revision: h.Hash, Identity: h.Identity, Entry: entry}, nil
}

// Read resolves address, which may be an identity or any revision of the
// record, to the latest version of the record.
func Read[T any](ctx context.Context, s *store.Store, def EntryDef, address string) (Record[T], error) {
	h, err := s.Resolve(ctx, address)
	if err != nil {
		return Record[T]{}, fromStore(address, err)
	}
	head, err := s.Head(ctx, h)
	if err != nil {
		return Record[T]{}, fromStore(address, err)
	}
	if head.Action == ir.ActionDelete {
		return Record[T]{}, NewNotFoundError(address)
	}

	entry, err := load[T](ctx, s, def, head)
	if err != nil {
		return Record[T]{}, err
	}
	return Record[T]{Revision: head.Hash, Identity: head.Identity, Entry: entry}, nil
}

// Update appends a new version chained to prior. apply receives the payload
// stored at prior and returns the payload to write.
//
// Fails with REVISION_MISMATCH if prior is not the head of its chain and with
// ENTRY_NOT_FOUND if prior is unknown or its chain has been deleted.
func Update[T any](ctx context.Context, s *store.Store, def EntryDef, prior ir.RevisionPointer, apply func(T) (T, error)) (Updated[T], error) {
	address := prior.String()

	h, err := s.Header(ctx, prior)
	if err != nil {
		return Updated[T]{}, fromStore(address, err)
	}
	if h.Action == ir.ActionDelete {
		return Updated[T]{}, NewNotFoundError(address)
	}
	old, err := load[T](ctx, s, def, h)
	if err != nil {
		return Updated[T]{}, err
	}

	next, err := apply(old)
	if err != nil {
		return Updated[T]{}, err
	}
	c, err := encode(next)
	if err != nil {
		return Updated[T]{}, newIntegrityError(address, "payload is not canonically encodable", err)
	}

	nh, _, err := s.AppendUpdate(ctx, prior, c)
	if err != nil {
		return Updated[T]{}, fromStore(address, err)
	}
	entry, err := decode[T](nh.Hash.String(), c.Raw)
	if err != nil {
		return Updated[T]{}, err
	}
	return Updated[T]{
		Record: Record[T]{Revision: nh.Hash, Identity: nh.Identity, Entry: entry},
		Prior:  old,
	}, nil
}

// Replace returns an apply function for Update that ignores the prior
// payload.
func Replace[T any](payload T) func(T) (T, error) {
	return func(T) (T, error) { return payload, nil }
}

// Delete terminates the chain at revision. Index edges are left alone.
//
// Fails with ENTRY_NOT_FOUND if the chain is already deleted or revision is
// unknown, and with REVISION_MISMATCH if revision has been superseded.
func Delete(ctx context.Context, s *store.Store, revision ir.RevisionPointer) (bool, error) {
	if _, err := s.AppendDelete(ctx, revision); err != nil {
		return false, fromStore(revision.String(), err)
	}
	return true, nil
}

// LatestRevision returns the head revision of the record at identity.
func LatestRevision(ctx context.Context, s *store.Store, identity ir.IdentityAddress) (ir.RevisionPointer, error) {
	h, err := s.Resolve(ctx, identity.String())
	if err != nil {
		return "", fromStore(identity.String(), err)
	}
	head, err := s.Head(ctx, h)
	if err != nil {
		return "", fromStore(identity.String(), err)
	}
	if head.Action == ir.ActionDelete {
		return "", NewNotFoundError(identity.String())
	}
	return head.Hash, nil
}

// QueryRoot enumerates every record linked from the type's root anchor, in
// creation order. A record that fails to read is yielded as an error and the
// sequence continues; deleted records therefore appear as ENTRY_NOT_FOUND.
//
// The link list is fetched when iteration starts. The sequence is single-pass.
func QueryRoot[T any](ctx context.Context, s *store.Store, def EntryDef) iter.Seq2[Record[T], error] {
	return func(yield func(Record[T], error) bool) {
		links, err := s.Links(ctx, def.Root(), def.rootLink(), "")
		if err != nil {
			yield(Record[T]{}, fromStore(def.Root().String(), err))
			return
		}
		for _, l := range links {
			if err := ctx.Err(); err != nil {
				yield(Record[T]{}, err)
				return
			}
			rec, err := Read[T](ctx, s, def, l.Target.String())
			if !yield(rec, err) {
				return
			}
		}
	}
}

func load[T any](ctx context.Context, s *store.Store, def EntryDef, h ir.Header) (T, error) {
	var zero T
	entryType, payload, err := s.Payload(ctx, h.Hash)
	if err != nil {
		return zero, fromStore(h.Hash.String(), err)
	}
	if entryType != def.Type {
		return zero, newDeserializationError(h.Hash.String(),
			fmt.Sprintf("entry type %q, expected %q", entryType, def.Type), nil)
	}
	return decode[T](h.Hash.String(), payload)
}

// encode hashes the canonical form of v but keeps v's own JSON for storage,
// so Unicode text is stored and read back unnormalized.
func encode(v any) (store.Content, error) {
	canonical, err := ir.Canonicalize(v)
	if err != nil {
		return store.Content{}, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return store.Content{}, err
	}
	return store.Content{Canonical: canonical, Raw: raw}, nil
}

func decode[T any](address string, payload []byte) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		var zero T
		return zero, newDeserializationError(address, "stored payload does not decode", err)
	}
	return v, nil
}
