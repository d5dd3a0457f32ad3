package records

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dhtrecords/internal/ir"
	"github.com/roach88/dhtrecords/internal/store"
)

type widget struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags,omitempty"`
	Note  *string  `json:"note,omitempty"`
}

var widgetDef = EntryDef{Type: "widget"}

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateRead_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	note := "fragile"
	in := widget{Name: "sprocket", Count: 3, Tags: []string{"b", "a"}, Note: &note}

	created, err := Create(ctx, s, widgetDef, in)
	require.NoError(t, err)
	assert.Equal(t, in, created.Entry)

	byIdentity, err := Read[widget](ctx, s, widgetDef, created.Identity.String())
	require.NoError(t, err)
	assert.Equal(t, created, byIdentity)

	byRevision, err := Read[widget](ctx, s, widgetDef, created.Revision.String())
	require.NoError(t, err)
	assert.Equal(t, created, byRevision)
}

func TestCreateRead_KeepsUnnormalizedText(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	// Decomposed form: "e" followed by U+0301 COMBINING ACUTE ACCENT.
	in := widget{Name: "cafe\u0301", Tags: []string{"\u212b"}}

	created, err := Create(ctx, s, widgetDef, in)
	require.NoError(t, err)
	assert.Equal(t, in, created.Entry)

	got, err := Read[widget](ctx, s, widgetDef, created.Identity.String())
	require.NoError(t, err)
	assert.Equal(t, in, got.Entry)
	assert.Len(t, got.Entry.Name, 6)

	up, err := Update(ctx, s, widgetDef, created.Revision, func(w widget) (widget, error) {
		w.Count = 1
		return w, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "cafe\u0301", up.Prior.Name)

	latest, err := Read[widget](ctx, s, widgetDef, created.Identity.String())
	require.NoError(t, err)
	assert.Equal(t, "cafe\u0301", latest.Entry.Name)
	assert.Equal(t, []string{"\u212b"}, latest.Entry.Tags)
}

func TestCreate_RejectsFloats(t *testing.T) {
	s := createTestStore(t)

	_, err := Create(context.Background(), s, EntryDef{Type: "measure"}, map[string]any{"qty": 1.5})
	assert.True(t, IsIntegrity(err), "got %v", err)
}

func TestCreate_EqualPayloadsAreDistinctRecords(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first, err := Create(ctx, s, widgetDef, widget{Name: "twin"})
	require.NoError(t, err)
	second, err := Create(ctx, s, widgetDef, widget{Name: "twin"})
	require.NoError(t, err)
	assert.NotEqual(t, first.Identity, second.Identity)

	var names []string
	for rec, err := range QueryRoot[widget](ctx, s, widgetDef) {
		require.NoError(t, err)
		names = append(names, rec.Entry.Name)
	}
	assert.Equal(t, []string{"twin", "twin"}, names)

	_, err = Delete(ctx, s, first.Revision)
	require.NoError(t, err)
	still, err := Read[widget](ctx, s, widgetDef, second.Identity.String())
	require.NoError(t, err)
	assert.Equal(t, second, still)
}

// fussy refuses to decode a name it was nonetheless able to encode.
type fussy struct {
	Name string `json:"name"`
}

func (f *fussy) UnmarshalJSON(b []byte) error {
	type plain fussy
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	if p.Name == "unreadable" {
		return errors.New("unreadable name")
	}
	*f = fussy(p)
	return nil
}

func TestUpdate_DecodeFailureNamesNewRevision(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	def := EntryDef{Type: "fussy"}

	rec, err := Create(ctx, s, def, fussy{Name: "fine"})
	require.NoError(t, err)

	_, err = Update(ctx, s, def, rec.Revision, Replace(fussy{Name: "unreadable"}))
	require.True(t, IsDeserialization(err), "got %v", err)

	head, err := LatestRevision(ctx, s, rec.Identity)
	require.NoError(t, err)
	require.NotEqual(t, rec.Revision, head)

	var ie *IntegrityError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, head.String(), ie.Address)
}

func TestUpdate_IdentityStable(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec, err := Create(ctx, s, widgetDef, widget{Name: "w", Count: 0})
	require.NoError(t, err)
	identity := rec.Identity
	seen := map[ir.RevisionPointer]bool{rec.Revision: true}

	for i := 1; i <= 5; i++ {
		up, err := Update(ctx, s, widgetDef, rec.Revision, func(w widget) (widget, error) {
			w.Count++
			return w, nil
		})
		require.NoError(t, err)
		assert.Equal(t, identity, up.Identity)
		assert.Equal(t, i, up.Entry.Count)
		assert.Equal(t, i-1, up.Prior.Count)
		assert.False(t, seen[up.Revision], "revision must change on every update")
		seen[up.Revision] = true
		rec = up.Record
	}

	latest, err := Read[widget](ctx, s, widgetDef, identity.String())
	require.NoError(t, err)
	assert.Equal(t, rec, latest)

	head, err := LatestRevision(ctx, s, identity)
	require.NoError(t, err)
	assert.Equal(t, rec.Revision, head)
}

func TestRead_FromOldRevisionFollowsChain(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec, err := Create(ctx, s, widgetDef, widget{Name: "v1"})
	require.NoError(t, err)
	up, err := Update(ctx, s, widgetDef, rec.Revision, Replace(widget{Name: "v2"}))
	require.NoError(t, err)

	got, err := Read[widget](ctx, s, widgetDef, rec.Revision.String())
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Entry.Name)
	assert.Equal(t, up.Revision, got.Revision)
}

func TestUpdate_RevisionMismatch(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec, err := Create(ctx, s, widgetDef, widget{Name: "v1"})
	require.NoError(t, err)
	_, err = Update(ctx, s, widgetDef, rec.Revision, Replace(widget{Name: "v2"}))
	require.NoError(t, err)

	_, err = Update(ctx, s, widgetDef, rec.Revision, Replace(widget{Name: "v3"}))
	assert.True(t, IsRevisionMismatch(err), "got %v", err)
}

func TestUpdate_RaceExactlyOneWins(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec, err := Create(ctx, s, widgetDef, widget{Name: "contended"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = Update(ctx, s, widgetDef, rec.Revision, Replace(widget{Name: "contended", Count: i + 1}))
		}(i)
	}
	wg.Wait()

	ok, mismatched := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case IsRevisionMismatch(err):
			mismatched++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, mismatched)
}

func TestUpdate_ApplyErrorWritesNothing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec, err := Create(ctx, s, widgetDef, widget{Name: "v1"})
	require.NoError(t, err)

	_, err = Update(ctx, s, widgetDef, rec.Revision, func(widget) (widget, error) {
		return widget{}, assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	head, err := LatestRevision(ctx, s, rec.Identity)
	require.NoError(t, err)
	assert.Equal(t, rec.Revision, head)
}

func TestDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec, err := Create(ctx, s, widgetDef, widget{Name: "doomed"})
	require.NoError(t, err)

	ok, err := Delete(ctx, s, rec.Revision)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Delete(ctx, s, rec.Revision)
	assert.False(t, ok)
	assert.True(t, IsNotFound(err), "deleting a deleted revision: got %v", err)

	_, err = Read[widget](ctx, s, widgetDef, rec.Identity.String())
	assert.True(t, IsNotFound(err), "got %v", err)

	_, err = Update(ctx, s, widgetDef, rec.Revision, Replace(widget{Name: "zombie"}))
	assert.True(t, IsNotFound(err), "got %v", err)

	_, err = LatestRevision(ctx, s, rec.Identity)
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestDelete_Superseded(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec, err := Create(ctx, s, widgetDef, widget{Name: "v1"})
	require.NoError(t, err)
	_, err = Update(ctx, s, widgetDef, rec.Revision, Replace(widget{Name: "v2"}))
	require.NoError(t, err)

	_, err = Delete(ctx, s, rec.Revision)
	assert.True(t, IsRevisionMismatch(err), "got %v", err)
}

func TestRead_Errors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := Read[widget](ctx, s, widgetDef, string(ir.AnchorAddress("nothing here")))
	assert.True(t, IsNotFound(err), "got %v", err)

	rec, err := Create(ctx, s, widgetDef, widget{Name: "w"})
	require.NoError(t, err)

	_, err = Read[widget](ctx, s, EntryDef{Type: "gadget"}, rec.Identity.String())
	assert.True(t, IsDeserialization(err), "wrong entry type: got %v", err)

	_, err = Read[[]string](ctx, s, widgetDef, rec.Identity.String())
	assert.True(t, IsDeserialization(err), "wrong shape: got %v", err)
}

func TestQueryRoot_YieldsPerItemErrors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	var created []Record[widget]
	for _, name := range []string{"a", "b", "c"} {
		rec, err := Create(ctx, s, widgetDef, widget{Name: name})
		require.NoError(t, err)
		created = append(created, rec)
	}
	_, err := Delete(ctx, s, created[1].Revision)
	require.NoError(t, err)

	// Records of another type live under another anchor.
	_, err = Create(ctx, s, EntryDef{Type: "gadget"}, widget{Name: "g"})
	require.NoError(t, err)

	var names []string
	var failures int
	for rec, err := range QueryRoot[widget](ctx, s, widgetDef) {
		if err != nil {
			assert.True(t, IsNotFound(err), "got %v", err)
			failures++
			continue
		}
		names = append(names, rec.Entry.Name)
	}
	assert.Equal(t, []string{"a", "c"}, names)
	assert.Equal(t, 1, failures)
}

func TestQueryRoot_StopsWhenConsumerStops(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := Create(ctx, s, widgetDef, widget{Name: name})
		require.NoError(t, err)
	}

	n := 0
	for range QueryRoot[widget](ctx, s, widgetDef) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}
