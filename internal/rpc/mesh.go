package rpc

import (
	"context"
	"fmt"
	"sync"
)

// Mesh is an in-process Transport connecting the Servers of several
// partitions. Partitions can be cut off to simulate an unreachable peer.
type Mesh struct {
	mu      sync.RWMutex
	servers map[string]*Server
	down    map[string]bool
}

// NewMesh creates an empty mesh.
func NewMesh() *Mesh {
	return &Mesh{
		servers: make(map[string]*Server),
		down:    make(map[string]bool),
	}
}

// Join attaches srv under its partition name.
func (m *Mesh) Join(srv *Server) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers[srv.Partition()] = srv
}

// Disconnect makes partition unreachable until Reconnect.
func (m *Mesh) Disconnect(partition string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down[partition] = true
}

// Reconnect undoes Disconnect.
func (m *Mesh) Reconnect(partition string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.down, partition)
}

// Send implements Transport.
func (m *Mesh) Send(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	srv, ok := m.servers[req.Partition]
	down := m.down[req.Partition]
	m.mu.RUnlock()

	if !ok || down {
		return nil, fmt.Errorf("partition %s unreachable", req.Partition)
	}
	return srv.Handle(ctx, req), nil
}
