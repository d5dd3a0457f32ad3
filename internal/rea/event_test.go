package rea

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dhtrecords/internal/config"
	"github.com/roach88/dhtrecords/internal/indexes"
	"github.com/roach88/dhtrecords/internal/ir"
	"github.com/roach88/dhtrecords/internal/pagination"
	"github.com/roach88/dhtrecords/internal/records"
	"github.com/roach88/dhtrecords/internal/rpc"
)

func TestCreateEvent_NewInventoriedResource(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	grain := ir.AnchorAddress("spec:grain")

	resp, err := s.CreateEvent(ctx, CreateEventParams{
		Event: CreateEventRequest{
			Action:             "produce",
			ResourceConformsTo: ir.Some(grain),
			HasPointInTime:     ir.Some(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)),
		},
		NewInventoriedResource: &CreateResourceRequest{Name: ir.Some("silo 4")},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.EconomicResource)

	res := resp.EconomicResource
	evt := resp.EconomicEvent
	assert.Equal(t, &res.ID, evt.ResourceInventoriedAs)
	assert.Equal(t, &grain, res.ConformsTo, "conformsTo defaults to the event's resourceConformsTo")
	assert.Equal(t, []ir.IdentityAddress{evt.ID}, res.AffectedBy)

	got, err := s.GetEvent(ctx, evt.ID.String())
	require.NoError(t, err)
	assert.Equal(t, evt, got.EconomicEvent)
	assert.Nil(t, got.EconomicResource)
}

func TestCreateEvent_InventoryConflict(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	existing, err := s.CreateResource(ctx, CreateResourceParams{Resource: CreateResourceRequest{Name: ir.Some("bin")}})
	require.NoError(t, err)

	_, err = s.CreateEvent(ctx, CreateEventParams{
		Event: CreateEventRequest{
			Action:                "produce",
			ResourceInventoriedAs: ir.Some(existing.EconomicResource.ID),
		},
		NewInventoriedResource: &CreateResourceRequest{Name: ir.Some("other bin")},
	})
	require.ErrorIs(t, err, ErrInventoryConflict)

	conn, err := s.ListEvents(ctx, pagination.Request{})
	require.NoError(t, err)
	assert.Empty(t, conn.Edges, "nothing is written")
}

func TestCreateEvent_TransferLinksBothSides(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	from, err := s.CreateResource(ctx, CreateResourceParams{Resource: CreateResourceRequest{Name: ir.Some("from")}})
	require.NoError(t, err)
	to, err := s.CreateResource(ctx, CreateResourceParams{Resource: CreateResourceRequest{Name: ir.Some("to")}})
	require.NoError(t, err)

	evt, err := s.CreateEvent(ctx, CreateEventParams{Event: CreateEventRequest{
		Action:                  "transfer",
		Provider:                ir.Some("alice"),
		Receiver:                ir.Some("bob"),
		ResourceInventoriedAs:   ir.Some(from.EconomicResource.ID),
		ToResourceInventoriedAs: ir.Some(to.EconomicResource.ID),
	}})
	require.NoError(t, err)

	for _, id := range []ir.IdentityAddress{from.EconomicResource.ID, to.EconomicResource.ID} {
		got, err := s.GetResource(ctx, id.String())
		require.NoError(t, err)
		assert.Equal(t, []ir.IdentityAddress{evt.EconomicEvent.ID}, got.EconomicResource.AffectedBy)
	}
}

func TestCreateEvent_Validation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.CreateEvent(ctx, CreateEventParams{Event: CreateEventRequest{}})
	assert.Error(t, err)

	_, err = s.CreateEvent(ctx, CreateEventParams{Event: CreateEventRequest{
		Action:                "use",
		ResourceInventoriedAs: ir.Some(ir.AnchorAddress("nowhere")),
	}})
	assert.True(t, records.IsNotFound(err), "unknown inventoried resource: %v", err)

	conn, err := s.ListEvents(ctx, pagination.Request{})
	require.NoError(t, err)
	assert.Empty(t, conn.Edges)
}

func TestUpdateEvent(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	evt, err := s.CreateEvent(ctx, CreateEventParams{Event: CreateEventRequest{Action: "work", Note: ir.Some("draft")}})
	require.NoError(t, err)

	up, err := s.UpdateEvent(ctx, UpdateEventParams{Event: UpdateEventRequest{
		RevisionID: evt.EconomicEvent.RevisionID,
		Note:       ir.Some("final"),
	}})
	require.NoError(t, err)
	assert.Equal(t, evt.EconomicEvent.ID, up.EconomicEvent.ID)
	assert.Equal(t, "work", up.EconomicEvent.Action)
	assert.Equal(t, ptr("final"), up.EconomicEvent.Note)

	old, err := s.GetEvent(ctx, evt.EconomicEvent.RevisionID.String())
	require.NoError(t, err)
	assert.Equal(t, up.EconomicEvent, old.EconomicEvent, "reading an old revision resolves to the head")
}

func TestInventoryFromEvent_ThroughLocalModule(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		Partition: observation,
		Modules:   map[string]string{RoleResource: "resources"},
	}
	srv := rpc.NewServer(observation, nil)
	client := rpc.NewClient(cfg, nil, nil, rpc.WithLocalServer(srv))
	s := New(indexes.New(createTestStore(t)), WithConfig(cfg), WithLocalInvoker(client))
	s.Register(srv)

	resp, err := s.CreateEvent(ctx, CreateEventParams{
		Event:                  CreateEventRequest{Action: "raise", Note: ir.Null[string]()},
		NewInventoriedResource: &CreateResourceRequest{Name: ir.Some("stock")},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.EconomicResource)
	assert.Equal(t, ptr("stock"), resp.EconomicResource.Name)
	assert.Contains(t, srv.Functions(), "resources."+FunctionInventoryFromEvent)

	// A local call to a role with no configured module fails before dispatch.
	unconfigured := New(indexes.New(createTestStore(t)), WithLocalInvoker(
		rpc.NewClient(&config.Config{Partition: observation}, nil, nil, rpc.WithLocalServer(srv))))
	_, err = unconfigured.CreateEvent(ctx, CreateEventParams{
		Event:                  CreateEventRequest{Action: "raise"},
		NewInventoriedResource: &CreateResourceRequest{Name: ir.Some("stock")},
	})
	assert.True(t, rpc.IsNotConfigured(err), "got %v", err)
}

func TestLocalCall_KeepsIntegrityErrorCode(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		Partition: observation,
		Modules:   map[string]string{RoleResource: "resources"},
	}
	srv := rpc.NewServer(observation, nil)
	client := rpc.NewClient(cfg, nil, nil, rpc.WithLocalServer(srv))
	s := New(indexes.New(createTestStore(t)), WithConfig(cfg), WithLocalInvoker(client))
	s.Register(srv)

	missing := ir.AnchorAddress("nobody").String()
	_, err := rpc.CallLocal[ResourceResponse](ctx, client, config.ModuleFor(RoleResource), FunctionGet, ByAddress{Address: missing})
	assert.True(t, rpc.IsNetwork(err), "got %v", err)
	assert.True(t, records.IsNotFound(err), "callee's code must survive the call: %v", err)
}

func TestRegister_ServesJSON(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	srv := rpc.NewServer(observation, nil)
	s.Register(srv)

	call := func(module, function, payload string) *rpc.Response {
		t.Helper()
		return srv.HandleLocal(ctx, &rpc.Request{
			Partition: observation,
			Module:    module,
			Function:  function,
			Payload:   json.RawMessage(payload),
		})
	}

	resp := call(RoleResource, FunctionCreate, `{"resource":{"name":"apple","note":null}}`)
	require.Equal(t, rpc.OutcomeOK, resp.Outcome, resp.Message)

	var created ResourceResponse
	require.NoError(t, json.Unmarshal(resp.Payload, &created))
	assert.Equal(t, ptr("apple"), created.EconomicResource.Name)
	assert.Nil(t, created.EconomicResource.Note)

	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(resp.Payload, &raw))
	assert.Contains(t, raw["economicResource"], "revisionId", "responses use lower camel case")

	resp = call(RoleResource, FunctionGet, `{"address":"`+created.EconomicResource.ID.String()+`"}`)
	require.Equal(t, rpc.OutcomeOK, resp.Outcome, resp.Message)

	resp = call(RoleResource, FunctionDelete, `{"revisionId":"`+created.EconomicResource.RevisionID.String()+`"}`)
	require.Equal(t, rpc.OutcomeOK, resp.Outcome, resp.Message)
	assert.JSONEq(t, `true`, string(resp.Payload))

	resp = call(RoleResource, FunctionGet, `{"address":"`+created.EconomicResource.ID.String()+`"}`)
	assert.Equal(t, rpc.OutcomeNetworkError, resp.Outcome)
	assert.Contains(t, resp.Message, string(records.ErrCodeEntryNotFound))

	resp = call(RoleProposal, FunctionList, `{"limit":10}`)
	require.Equal(t, rpc.OutcomeOK, resp.Outcome, resp.Message)
	assert.JSONEq(t,
		`{"edges":[],"pageInfo":{"startCursor":"0","endCursor":"0","hasNextPage":false,"hasPreviousPage":false,"pageLimit":10,"totalCount":0}}`,
		string(resp.Payload))
}
