package rea

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dhtrecords/internal/config"
	"github.com/roach88/dhtrecords/internal/indexes"
	"github.com/roach88/dhtrecords/internal/ir"
	"github.com/roach88/dhtrecords/internal/rpc"
	"github.com/roach88/dhtrecords/internal/store"
)

const (
	observation   = "observation"
	specification = "specification"
	specSecret    = "spec-secret"
	specPerm      = SpecificationPermission
)

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	return New(indexes.New(createTestStore(t)), opts...)
}

// specCluster is an observation partition whose resources conform to
// specifications held by a second partition.
type specCluster struct {
	mesh *rpc.Mesh
	obs  *Service
	spec *indexes.Engine
}

func newSpecCluster(t *testing.T) *specCluster {
	t.Helper()
	ctx := context.Background()

	specStore := createTestStore(t)
	_, err := specStore.PutGrant(ctx, ir.Grant{
		ID: "g1", Grantor: specification, Secret: specSecret,
		Functions: []string{indexes.Module + "." + indexes.FunctionUpdate},
	})
	require.NoError(t, err)
	specEngine := indexes.New(specStore)
	specSrv := rpc.NewServer(specification, specStore)
	specEngine.Register(specSrv)

	mesh := rpc.NewMesh()
	mesh.Join(specSrv)

	client := rpc.NewClient(&config.Config{Partition: observation}, rpc.StaticClaims{{
		Partition:  specification,
		Permission: specPerm,
		Grantor:    specification,
		Secret:     specSecret,
		Module:     indexes.Module,
		Function:   indexes.FunctionUpdate,
	}}, mesh)

	obs := New(indexes.New(createTestStore(t), indexes.WithInvoker(client)),
		WithSpecifications(specification, specPerm))
	return &specCluster{mesh: mesh, obs: obs, spec: specEngine}
}

func ptr[T any](v T) *T { return &v }
