package rpc

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	serviceName = "dhtrecords.Partition"
	callMethod  = "/" + serviceName + "/Call"
)

// partitionServer is the handler type of the gRPC service.
type partitionServer interface {
	Call(ctx context.Context, req *Request) (*Response, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*partitionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: callHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dhtrecords/partition",
}

func callHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Request)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(partitionServer).Call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: callMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(partitionServer).Call(ctx, req.(*Request))
	}
	return interceptor(ctx, in, info, handler)
}

type grpcService struct {
	srv *Server
}

func (g grpcService) Call(ctx context.Context, req *Request) (*Response, error) {
	return g.srv.Handle(ctx, req), nil
}

// RegisterGRPC exposes srv on gs. Every request arriving this way is treated
// as remote and must present a grant.
func RegisterGRPC(gs *grpc.Server, srv *Server) {
	gs.RegisterService(&serviceDesc, grpcService{srv: srv})
}

// GRPCTransport sends requests to peer partitions over gRPC.
// Connections are dialed on first use and cached per partition.
type GRPCTransport struct {
	peers    map[string]string
	dialOpts []grpc.DialOption
	logger   *zap.Logger

	conns     sync.Map // partition -> *grpc.ClientConn
	singleRun singleflight.Group
}

// GRPCOption configures a GRPCTransport.
type GRPCOption func(*GRPCTransport)

// WithDialOptions appends options used when dialing peers.
func WithDialOptions(opts ...grpc.DialOption) GRPCOption {
	return func(t *GRPCTransport) { t.dialOpts = append(t.dialOpts, opts...) }
}

// WithTransportLogger sets the transport's logger.
func WithTransportLogger(l *zap.Logger) GRPCOption {
	return func(t *GRPCTransport) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewGRPCTransport creates a transport for peers, a map from partition name
// to address.
func NewGRPCTransport(peers map[string]string, opts ...GRPCOption) *GRPCTransport {
	t := &GRPCTransport{
		peers: peers,
		dialOpts: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send implements Transport.
func (t *GRPCTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	conn, err := t.conn(req.Partition)
	if err != nil {
		return nil, err
	}
	resp := new(Response)
	if err := conn.Invoke(ctx, callMethod, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Close closes every cached connection.
func (t *GRPCTransport) Close() error {
	var firstErr error
	t.conns.Range(func(key, value any) bool {
		if err := value.(*grpc.ClientConn).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		t.conns.Delete(key)
		return true
	})
	return firstErr
}

func (t *GRPCTransport) conn(partition string) (*grpc.ClientConn, error) {
	if v, ok := t.conns.Load(partition); ok {
		return v.(*grpc.ClientConn), nil
	}

	v, err, _ := t.singleRun.Do(partition, func() (any, error) {
		if v, ok := t.conns.Load(partition); ok {
			return v, nil
		}
		addr, ok := t.peers[partition]
		if !ok {
			return nil, fmt.Errorf("no address for partition %s", partition)
		}
		cc, err := grpc.NewClient(addr, t.dialOpts...)
		if err != nil {
			return nil, fmt.Errorf("dial %s at %s: %w", partition, addr, err)
		}
		t.logger.Debug("dialed peer", zap.String("target", partition), zap.String("addr", addr))
		t.conns.Store(partition, cc)
		return cc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*grpc.ClientConn), nil
}
