package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dhtrecords/internal/ir"
)

func TestAppendCreate_IdentityIsEntryHash(t *testing.T) {
	s := createTestStore(t)

	h := createTestRecord(t, s, `{"name":"widget"}`)

	assert.Equal(t, ir.ActionCreate, h.Action)
	assert.Equal(t, ir.IdentityAddress(h.EntryHash), h.Identity)
	want, err := ir.CreateEntryAddress("thing", []byte(`{"name":"widget"}`), h.Seq)
	require.NoError(t, err)
	assert.Equal(t, want, h.EntryHash)
	assert.Empty(t, h.Prev)
	assert.Len(t, string(h.Hash), ir.AddressLen)

	entryType, payload, err := s.Entry(context.Background(), h.EntryHash)
	require.NoError(t, err)
	assert.Equal(t, "thing", entryType)
	assert.Equal(t, `{"name":"widget"}`, string(payload))
}

func TestAppendCreate_EqualPayloadsAreDistinctRecords(t *testing.T) {
	s := createTestStore(t)
	first := createTestRecord(t, s, `{"name":"widget"}`)
	second := createTestRecord(t, s, `{"name":"widget"}`)

	assert.NotEqual(t, first.Identity, second.Identity)
	assert.NotEqual(t, first.Hash, second.Hash)
}

func TestPayload_KeepsAuthorEncoding(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	// NFD "cafe" + combining acute; the canonical form is NFC.
	raw := []byte("{\"name\":\"cafe\u0301\"}")
	canonical := []byte("{\"name\":\"caf\u00e9\"}")

	h, err := s.AppendCreate(ctx, "thing", Content{Canonical: canonical, Raw: raw}, "", "")
	require.NoError(t, err)

	entryType, payload, err := s.Payload(ctx, h.Hash)
	require.NoError(t, err)
	assert.Equal(t, "thing", entryType)
	assert.Equal(t, raw, payload)

	_, stored, err := s.Entry(ctx, h.EntryHash)
	require.NoError(t, err)
	assert.Equal(t, canonical, stored)

	del, err := s.AppendDelete(ctx, h.Hash)
	require.NoError(t, err)
	_, _, err = s.Payload(ctx, del.Hash)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendCreate_WritesAnchorLink(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	anchor := ir.AnchorAddress("all_things")

	h, err := s.AppendCreate(ctx, "thing", content(`{"n":1}`), anchor, "root")
	require.NoError(t, err)

	links, err := s.Links(ctx, anchor, "root", "")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, h.Identity, links[0].Target)
}

func TestAppendUpdate_ChainsToPrior(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	created := createTestRecord(t, s, `{"v":1}`)

	updated, prev, err := s.AppendUpdate(ctx, created.Hash, content(`{"v":2}`))
	require.NoError(t, err)

	assert.Equal(t, created, prev)
	assert.Equal(t, ir.ActionUpdate, updated.Action)
	assert.Equal(t, created.Hash, updated.Prev)
	assert.Equal(t, created.Identity, updated.Identity)
	assert.NotEqual(t, created.Hash, updated.Hash)

	head, err := s.Head(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, updated.Hash, head.Hash)
}

func TestAppendUpdate_StalePriorConflicts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	created := createTestRecord(t, s, `{"v":1}`)

	_, _, err := s.AppendUpdate(ctx, created.Hash, content(`{"v":2}`))
	require.NoError(t, err)

	_, _, err = s.AppendUpdate(ctx, created.Hash, content(`{"v":3}`))
	assert.True(t, errors.Is(err, ErrConflict), "got %v", err)
}

func TestAppendUpdate_UnknownPrior(t *testing.T) {
	s := createTestStore(t)

	_, _, err := s.AppendUpdate(context.Background(), ir.RevisionPointer(testAddr(3)), content(`{}`))
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestAppendUpdate_RevertToEarlierContent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	created := createTestRecord(t, s, `{"v":1}`)

	u1, _, err := s.AppendUpdate(ctx, created.Hash, content(`{"v":2}`))
	require.NoError(t, err)
	u2, _, err := s.AppendUpdate(ctx, u1.Hash, content(`{"v":1}`))
	require.NoError(t, err)
	u3, _, err := s.AppendUpdate(ctx, u2.Hash, content(`{"v":2}`))
	require.NoError(t, err)

	assert.Equal(t, u1.EntryHash, u3.EntryHash, "identical content shares an entry")
	assert.NotEqual(t, u1.Hash, u3.Hash, "but every write mints a new header")
}

func TestAppendUpdate_RaceExactlyOneWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	created := createTestRecord(t, s, `{"v":1}`)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = s.AppendUpdate(ctx, created.Hash, content(`{"writer":`+string(rune('0'+i))+`}`))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, ErrConflict), "loser must see ErrConflict, got %v", err)
	}
	assert.Equal(t, 1, wins)
}

func TestAppendDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	created := createTestRecord(t, s, `{"v":1}`)

	del, err := s.AppendDelete(ctx, created.Hash)
	require.NoError(t, err)
	assert.Equal(t, ir.ActionDelete, del.Action)
	assert.Empty(t, del.EntryHash)

	_, err = s.AppendDelete(ctx, created.Hash)
	assert.True(t, errors.Is(err, ErrNotFound), "second delete: got %v", err)

	_, err = s.AppendDelete(ctx, del.Hash)
	assert.True(t, errors.Is(err, ErrNotFound), "deleting the delete header: got %v", err)

	_, _, err = s.AppendUpdate(ctx, created.Hash, content(`{"v":2}`))
	assert.True(t, errors.Is(err, ErrNotFound), "update after delete: got %v", err)
}

func TestAppendDelete_SupersededRevision(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	created := createTestRecord(t, s, `{"v":1}`)
	_, _, err := s.AppendUpdate(ctx, created.Hash, content(`{"v":2}`))
	require.NoError(t, err)

	_, err = s.AppendDelete(ctx, created.Hash)
	assert.True(t, errors.Is(err, ErrConflict), "got %v", err)
}

func TestResolve(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	created := createTestRecord(t, s, `{"v":1}`)
	updated, _, err := s.AppendUpdate(ctx, created.Hash, content(`{"v":2}`))
	require.NoError(t, err)

	byIdentity, err := s.Resolve(ctx, string(created.Identity))
	require.NoError(t, err)
	assert.Equal(t, created.Hash, byIdentity.Hash)

	byRevision, err := s.Resolve(ctx, string(updated.Hash))
	require.NoError(t, err)
	assert.Equal(t, updated.Hash, byRevision.Hash)

	_, err = s.Resolve(ctx, string(testAddr(9)))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHistory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	created := createTestRecord(t, s, `{"v":1}`)
	u, _, err := s.AppendUpdate(ctx, created.Hash, content(`{"v":2}`))
	require.NoError(t, err)
	d, err := s.AppendDelete(ctx, u.Hash)
	require.NoError(t, err)

	history, err := s.History(ctx, created.Identity)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []ir.RevisionPointer{created.Hash, u.Hash, d.Hash},
		[]ir.RevisionPointer{history[0].Hash, history[1].Hash, history[2].Hash})

	_, err = s.History(ctx, testAddr(4))
	assert.ErrorIs(t, err, ErrNotFound)
}
