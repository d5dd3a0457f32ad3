// Package node assembles one partition from its configuration: the store,
// the index engine, the entity modules, the capability-checked RPC server
// and the client used to reach peer partitions.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/roach88/dhtrecords/internal/config"
	"github.com/roach88/dhtrecords/internal/indexes"
	"github.com/roach88/dhtrecords/internal/ir"
	"github.com/roach88/dhtrecords/internal/logging"
	"github.com/roach88/dhtrecords/internal/metrics"
	"github.com/roach88/dhtrecords/internal/rea"
	"github.com/roach88/dhtrecords/internal/rpc"
	"github.com/roach88/dhtrecords/internal/store"
)

// shutdownTimeout bounds the metrics server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

// Node is one running partition.
type Node struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	store   *store.Store
	engine  *indexes.Engine
	service *rea.Service
	server  *rpc.Server
	client  *rpc.Client

	transport rpc.Transport
	grpcPeers *rpc.GRPCTransport
}

// Option configures a Node.
type Option func(*Node)

// WithLogger sets the node logger. Every component logs through it with a
// partition field.
func WithLogger(l *zap.Logger) Option {
	return func(n *Node) {
		if l != nil {
			n.logger = l
		}
	}
}

// WithTransport replaces the gRPC peer transport, for example with an
// rpc.Mesh when several partitions share a process.
func WithTransport(t rpc.Transport) Option {
	return func(n *Node) { n.transport = t }
}

// New opens the partition store and wires every component. Grants and
// claims listed in cfg are written to the store.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Node, error) {
	n := &Node{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = logging.ForPartition(n.logger, cfg.Partition)
	n.metrics = metrics.New(cfg.Partition)

	st, err := store.Open(cfg.StorePath(), store.WithLogger(n.logger.Named("store")))
	if err != nil {
		return nil, fmt.Errorf("open partition %s: %w", cfg.Partition, err)
	}
	n.store = st

	if err := n.issueGrants(ctx); err != nil {
		st.Close()
		return nil, err
	}
	if err := n.storeClaims(ctx); err != nil {
		st.Close()
		return nil, err
	}

	if n.transport == nil {
		n.grpcPeers = rpc.NewGRPCTransport(cfg.Peers,
			rpc.WithDialOptions(
				grpc.WithChainUnaryInterceptor(n.metrics.GRPCClient.UnaryClientInterceptor()),
			),
			rpc.WithTransportLogger(n.logger.Named("transport")))
		n.transport = n.grpcPeers
	}

	n.server = rpc.NewServer(cfg.Partition, st, rpc.WithServerLogger(n.logger.Named("rpc")))
	n.client = rpc.NewClient(cfg, st, n.transport,
		rpc.WithLocalServer(n.server),
		rpc.WithClientMetrics(n.metrics),
		rpc.WithClientLogger(n.logger.Named("rpc")))

	n.engine = indexes.New(st,
		indexes.WithInvoker(n.client),
		indexes.WithMetrics(n.metrics),
		indexes.WithLogger(n.logger.Named("indexes")))
	n.engine.Register(n.server)

	serviceOpts := []rea.Option{
		rea.WithConfig(cfg),
		rea.WithLocalInvoker(n.client),
		rea.WithMetrics(n.metrics),
		rea.WithLogger(n.logger.Named("rea")),
	}
	if spec, ok := n.specificationClaim(); ok {
		serviceOpts = append(serviceOpts, rea.WithSpecifications(spec.Partition, spec.Permission))
	}
	n.service = rea.New(n.engine, serviceOpts...)
	n.service.Register(n.server)

	n.logger.Info("partition ready",
		zap.String("store", cfg.StorePath()),
		zap.Strings("functions", n.server.Functions()))
	return n, nil
}

// Config returns the node's configuration.
func (n *Node) Config() *config.Config { return n.cfg }

// Store returns the partition store.
func (n *Node) Store() *store.Store { return n.store }

// Engine returns the index engine.
func (n *Node) Engine() *indexes.Engine { return n.engine }

// Service returns the entity modules.
func (n *Node) Service() *rea.Service { return n.service }

// Server returns the RPC server peers call into.
func (n *Node) Server() *rpc.Server { return n.server }

// Client returns the client used for local and remote calls.
func (n *Node) Client() *rpc.Client { return n.client }

// Metrics returns the node's collectors.
func (n *Node) Metrics() *metrics.Metrics { return n.metrics }

// Serve listens on the configured address and serves until ctx is done.
func (n *Node) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", n.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", n.cfg.Listen, err)
	}
	return n.ServeListener(ctx, lis)
}

// ServeListener serves the partition over gRPC on lis, and metrics on the
// configured metrics address if one is set, until ctx is done. It returns
// after both servers have stopped.
func (n *Node) ServeListener(ctx context.Context, lis net.Listener) error {
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(n.metrics.GRPCServer.UnaryServerInterceptor()))
	rpc.RegisterGRPC(gs, n.server)
	n.metrics.GRPCServer.InitializeMetrics(gs)

	var metricsSrv *http.Server
	if n.cfg.MetricsAddr != "" {
		metricsSrv = &http.Server{
			Addr:              n.cfg.MetricsAddr,
			Handler:           n.metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n.logger.Info("serving partition", zap.String("addr", lis.Addr().String()))
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc serve: %w", err)
		}
		return nil
	})
	if metricsSrv != nil {
		g.Go(func() error {
			n.logger.Info("serving metrics", zap.String("addr", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics serve: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		n.logger.Info("shutting down")
		gs.GracefulStop()
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	})
	return g.Wait()
}

// Close releases peer connections and the store.
func (n *Node) Close() error {
	var errs []error
	if n.grpcPeers != nil {
		errs = append(errs, n.grpcPeers.Close())
	}
	errs = append(errs, n.store.Close())
	return errors.Join(errs...)
}

// issueGrants writes the configured grants. A grant already present from a
// previous start is kept as stored, including its generated secret.
func (n *Node) issueGrants(ctx context.Context) error {
	for _, g := range n.cfg.Grants {
		secret := g.Secret
		if secret == "" {
			secret = uuid.NewString()
		}
		_, err := n.store.PutGrant(ctx, ir.Grant{
			ID:        g.ID,
			Grantor:   n.cfg.Partition,
			Secret:    secret,
			Functions: g.Functions,
		})
		if errors.Is(err, store.ErrDuplicate) {
			continue
		}
		if err != nil {
			return fmt.Errorf("issue grant %s: %w", g.ID, err)
		}
	}
	return nil
}

func (n *Node) storeClaims(ctx context.Context) error {
	for _, c := range n.cfg.Claims {
		if err := n.store.PutClaim(ctx, c); err != nil {
			return fmt.Errorf("store claim %s/%s: %w", c.Partition, c.Permission, err)
		}
	}
	return nil
}

// specificationClaim finds the configured claim for indexing resources
// against a specification partition.
func (n *Node) specificationClaim() (ir.Claim, bool) {
	for _, c := range n.cfg.Claims {
		if c.Permission == rea.SpecificationPermission {
			return c, true
		}
	}
	return ir.Claim{}, false
}
