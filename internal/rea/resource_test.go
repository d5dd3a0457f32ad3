package rea

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dhtrecords/internal/ir"
	"github.com/roach88/dhtrecords/internal/pagination"
	"github.com/roach88/dhtrecords/internal/records"
)

func TestCreateResource_ContainedIn(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	crate, err := s.CreateResource(ctx, CreateResourceParams{Resource: CreateResourceRequest{Name: ir.Some("crate")}})
	require.NoError(t, err)
	crateID := crate.EconomicResource.ID

	apple, err := s.CreateResource(ctx, CreateResourceParams{Resource: CreateResourceRequest{
		Name:        ir.Some("apple"),
		ContainedIn: ir.Some(crateID),
	}})
	require.NoError(t, err)
	assert.Equal(t, &crateID, apple.EconomicResource.ContainedIn)

	got, err := s.GetResource(ctx, crateID.String())
	require.NoError(t, err)
	assert.Equal(t, []ir.IdentityAddress{apple.EconomicResource.ID}, got.EconomicResource.Contains)
}

func TestUpdateResource_MovesContainer(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	a, err := s.CreateResource(ctx, CreateResourceParams{Resource: CreateResourceRequest{Name: ir.Some("a")}})
	require.NoError(t, err)
	b, err := s.CreateResource(ctx, CreateResourceParams{Resource: CreateResourceRequest{Name: ir.Some("b")}})
	require.NoError(t, err)
	item, err := s.CreateResource(ctx, CreateResourceParams{Resource: CreateResourceRequest{
		Name:        ir.Some("item"),
		Note:        ir.Some("fragile"),
		ContainedIn: ir.Some(a.EconomicResource.ID),
	}})
	require.NoError(t, err)

	moved, err := s.UpdateResource(ctx, UpdateResourceParams{Resource: UpdateResourceRequest{
		RevisionID:  item.EconomicResource.RevisionID,
		ContainedIn: ir.Some(b.EconomicResource.ID),
		Note:        ir.Null[string](),
	}})
	require.NoError(t, err)

	r := moved.EconomicResource
	assert.Equal(t, item.EconomicResource.ID, r.ID, "identity is stable across updates")
	assert.NotEqual(t, item.EconomicResource.RevisionID, r.RevisionID)
	assert.Equal(t, ptr("item"), r.Name, "omitted field is kept")
	assert.Nil(t, r.Note, "null clears the field")
	assert.Equal(t, &b.EconomicResource.ID, r.ContainedIn)

	fromA, err := s.GetResource(ctx, a.EconomicResource.ID.String())
	require.NoError(t, err)
	assert.Empty(t, fromA.EconomicResource.Contains)
	fromB, err := s.GetResource(ctx, b.EconomicResource.ID.String())
	require.NoError(t, err)
	assert.Equal(t, []ir.IdentityAddress{r.ID}, fromB.EconomicResource.Contains)

	_, err = s.UpdateResource(ctx, UpdateResourceParams{Resource: UpdateResourceRequest{
		RevisionID: item.EconomicResource.RevisionID,
		Name:       ir.Some("stale"),
	}})
	assert.True(t, records.IsRevisionMismatch(err), "got %v", err)
}

func TestResourceState_LatestPassOrFail(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	res, err := s.CreateResource(ctx, CreateResourceParams{Resource: CreateResourceRequest{Name: ir.Some("widget")}})
	require.NoError(t, err)
	id := res.EconomicResource.ID

	for _, action := range []string{"create", ActionPass, "note"} {
		_, err := s.CreateEvent(ctx, CreateEventParams{Event: CreateEventRequest{
			Action:                action,
			ResourceInventoriedAs: ir.Some(id),
		}})
		require.NoError(t, err, action)
	}

	got, err := s.GetResource(ctx, id.String())
	require.NoError(t, err)
	require.NotNil(t, got.EconomicResource.State)
	assert.Equal(t, ActionPass, *got.EconomicResource.State)
	assert.Len(t, got.EconomicResource.AffectedBy, 3)

	_, err = s.CreateEvent(ctx, CreateEventParams{Event: CreateEventRequest{
		Action:                ActionFail,
		ResourceInventoriedAs: ir.Some(id),
	}})
	require.NoError(t, err)
	state, ok, err := s.ResourceState(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ActionFail, state)
}

func TestResourceState_NoneWithoutPassOrFail(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	res, err := s.CreateResource(ctx, CreateResourceParams{Resource: CreateResourceRequest{Name: ir.Some("widget")}})
	require.NoError(t, err)
	_, err = s.CreateEvent(ctx, CreateEventParams{Event: CreateEventRequest{
		Action:                "use",
		ResourceInventoriedAs: ir.Some(res.EconomicResource.ID),
	}})
	require.NoError(t, err)

	got, err := s.GetResource(ctx, res.EconomicResource.ID.String())
	require.NoError(t, err)
	assert.Nil(t, got.EconomicResource.State)
	assert.Nil(t, got.EconomicResource.Stage)
}

func TestResourceStage_FromLatestOutputProcess(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	cutting := ir.AnchorAddress("spec:cutting")
	sanding := ir.AnchorAddress("spec:sanding")

	cut, err := s.CreateProcess(ctx, CreateProcessParams{Process: CreateProcessRequest{Name: "cut", BasedOn: ir.Some(cutting)}})
	require.NoError(t, err)
	sand, err := s.CreateProcess(ctx, CreateProcessParams{Process: CreateProcessRequest{Name: "sand", BasedOn: ir.Some(sanding)}})
	require.NoError(t, err)
	unplanned, err := s.CreateProcess(ctx, CreateProcessParams{Process: CreateProcessRequest{Name: "inspect"}})
	require.NoError(t, err)

	res, err := s.CreateResource(ctx, CreateResourceParams{Resource: CreateResourceRequest{Name: ir.Some("board")}})
	require.NoError(t, err)
	board := res.EconomicResource.ID

	output := func(process ir.IdentityAddress, action string) EventResponse {
		t.Helper()
		evt, err := s.CreateEvent(ctx, CreateEventParams{Event: CreateEventRequest{
			Action:                action,
			ResourceInventoriedAs: ir.Some(board),
			OutputOf:              ir.Some(process),
		}})
		require.NoError(t, err)
		return evt
	}
	output(cut.Process.ID, "produce")
	sanded := output(sand.Process.ID, "modify")
	output(unplanned.Process.ID, "accept")
	_, err = s.CreateEvent(ctx, CreateEventParams{Event: CreateEventRequest{
		Action:                "use",
		ResourceInventoriedAs: ir.Some(board),
	}})
	require.NoError(t, err)

	stage, ok, err := s.ResourceStage(ctx, board)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sanding, stage, "skips events without a process and processes without a specification")

	proc, err := s.GetProcess(ctx, sand.Process.ID.String())
	require.NoError(t, err)
	assert.Equal(t, []ir.IdentityAddress{sanded.EconomicEvent.ID}, proc.Process.Outputs)

	// Removing the sanding output falls back to the cutting stage.
	ok2, err := s.DeleteEvent(ctx, sanded.EconomicEvent.RevisionID)
	require.NoError(t, err)
	assert.True(t, ok2)
	stage, ok, err = s.ResourceStage(ctx, board)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cutting, stage)

	proc, err = s.GetProcess(ctx, sand.Process.ID.String())
	require.NoError(t, err)
	assert.Empty(t, proc.Process.Outputs)
}

func TestListResources_SkipsDeleted(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	var revs []ir.RevisionPointer
	for _, name := range []string{"one", "two", "three"} {
		res, err := s.CreateResource(ctx, CreateResourceParams{Resource: CreateResourceRequest{Name: ir.Some(name)}})
		require.NoError(t, err)
		revs = append(revs, res.EconomicResource.RevisionID)
	}
	ok, err := s.DeleteResource(ctx, revs[1])
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.DeleteResource(ctx, revs[1])
	assert.True(t, records.IsNotFound(err), "deleting a deleted record: %v", err)

	conn, err := s.ListResources(ctx, pagination.Request{})
	require.NoError(t, err)
	require.Len(t, conn.Edges, 2)
	assert.Equal(t, ptr("one"), conn.Edges[0].Node.Name)
	assert.Equal(t, ptr("three"), conn.Edges[1].Node.Name)
	require.NotNil(t, conn.PageInfo.TotalCount)
	assert.Equal(t, 2, *conn.PageInfo.TotalCount)

	page, err := s.ListResources(ctx, pagination.Request{After: conn.Edges[0].Cursor, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Edges, 1)
	assert.Equal(t, ptr("three"), page.Edges[0].Node.Name)
	assert.False(t, page.PageInfo.HasNextPage)
}

func TestConformsTo_RemotePair(t *testing.T) {
	c := newSpecCluster(t)
	ctx := context.Background()
	apples := ir.AnchorAddress("spec:apples")

	res, err := c.obs.CreateResource(ctx, CreateResourceParams{Resource: CreateResourceRequest{
		Name:       ir.Some("apple"),
		ConformsTo: ir.Some(apples),
	}})
	require.NoError(t, err)

	fwd, err := c.obs.engine.Read(ctx, res.EconomicResource.ID, relConformsTo)
	require.NoError(t, err)
	assert.Equal(t, []ir.IdentityAddress{apples}, fwd)
	back, err := c.spec.Read(ctx, apples, relConforming)
	require.NoError(t, err)
	assert.Equal(t, []ir.IdentityAddress{res.EconomicResource.ID}, back)
}

func TestConformsTo_OneSidedStillCreates(t *testing.T) {
	c := newSpecCluster(t)
	ctx := context.Background()
	pears := ir.AnchorAddress("spec:pears")
	c.mesh.Disconnect(specification)

	res, err := c.obs.CreateResource(ctx, CreateResourceParams{Resource: CreateResourceRequest{
		Name:       ir.Some("pear"),
		ConformsTo: ir.Some(pears),
	}})
	require.NoError(t, err, "resource is written even when the reciprocal is not")

	got, err := c.obs.GetResource(ctx, res.EconomicResource.ID.String())
	require.NoError(t, err)
	assert.Equal(t, &pears, got.EconomicResource.ConformsTo)
	back, err := c.spec.Read(ctx, pears, relConforming)
	require.NoError(t, err)
	assert.Empty(t, back)
}
