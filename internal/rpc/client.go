package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/roach88/dhtrecords/internal/config"
	"github.com/roach88/dhtrecords/internal/metrics"
	"github.com/roach88/dhtrecords/internal/store"
)

// Transport delivers a request to the partition it names. An error means the
// request did not get an answer; callee-side failures come back as a
// Response.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// Invoker makes authenticated calls to other partitions.
type Invoker interface {
	Invoke(ctx context.Context, partition, permission string, payload, reply any) error
}

// LocalInvoker makes calls between modules of one partition.
type LocalInvoker interface {
	InvokeLocal(ctx context.Context, module config.Accessor, function string, payload, reply any) error
}

// Client is the calling side of one partition.
type Client struct {
	cfg       *config.Config
	resolver  Resolver
	transport Transport
	local     *Server
	metrics   *metrics.Metrics
	logger    *zap.Logger

	limiters sync.Map // partition -> *rate.Limiter
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLocalServer routes InvokeLocal to srv.
func WithLocalServer(srv *Server) ClientOption {
	return func(c *Client) { c.local = srv }
}

// WithClientMetrics records call outcomes on m.
func WithClientMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithClientLogger sets the client's logger.
func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for the partition described by cfg.
func NewClient(cfg *config.Config, resolver Resolver, transport Transport, opts ...ClientOption) *Client {
	c := &Client{
		cfg:       cfg,
		resolver:  resolver,
		transport: transport,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke calls the function permission names on partition, presenting the
// claimed secret, and decodes the result into reply.
func (c *Client) Invoke(ctx context.Context, partition, permission string, payload, reply any) error {
	claim, err := c.resolver.Claim(ctx, partition, permission)
	if errors.Is(err, store.ErrNotFound) {
		return NotConfigured(c.cfg.Partition, permission)
	}
	if err != nil {
		return NetworkError("resolve claim", err)
	}

	req, err := c.newRequest(partition, claim.Module, claim.Function, payload)
	if err != nil {
		return err
	}
	req.Secret = claim.Secret

	if err := c.limiter(partition).Wait(ctx); err != nil {
		return NetworkError("rate limit", err)
	}
	if c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		c.observe(partition, "transport_error", start)
		c.logger.Warn("remote call failed",
			zap.String("target", partition),
			zap.String("permission", permission),
			zap.String("request_id", req.RequestID),
			zap.Error(err))
		return NetworkError("send to "+partition, err)
	}
	c.observe(partition, string(resp.Outcome), start)
	return decodeResponse(resp, reply)
}

// InvokeLocal calls function on the module module selects from this
// partition's configuration. No capability is presented.
func (c *Client) InvokeLocal(ctx context.Context, module config.Accessor, function string, payload, reply any) error {
	name := module(c.cfg)
	if name == "" || c.local == nil {
		return NotConfigured(c.cfg.Partition, function)
	}

	req, err := c.newRequest(c.cfg.Partition, name, function, payload)
	if err != nil {
		return err
	}
	return decodeResponse(c.local.HandleLocal(ctx, req), reply)
}

func (c *Client) newRequest(partition, module, function string, payload any) (*Request, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, decodeError("encode request payload", err)
	}
	return &Request{
		RequestID: uuid.NewString(),
		Caller:    c.cfg.Partition,
		Partition: partition,
		Module:    module,
		Function:  function,
		Payload:   raw,
	}, nil
}

func (c *Client) limiter(partition string) *rate.Limiter {
	if v, ok := c.limiters.Load(partition); ok {
		return v.(*rate.Limiter)
	}
	limit, burst := rate.Inf, 0
	if rl := c.cfg.RateLimit; rl.PerSecond > 0 {
		limit, burst = rate.Limit(rl.PerSecond), rl.Burst
	}
	v, _ := c.limiters.LoadOrStore(partition, rate.NewLimiter(limit, burst))
	return v.(*rate.Limiter)
}

func (c *Client) observe(target, outcome string, start time.Time) {
	c.metrics.RemoteCall(target, outcome, time.Since(start).Seconds())
}

// Call invokes permission on partition and decodes the result as R.
func Call[R any](ctx context.Context, c Invoker, partition, permission string, payload any) (R, error) {
	var reply R
	if err := c.Invoke(ctx, partition, permission, payload, &reply); err != nil {
		var zero R
		return zero, err
	}
	return reply, nil
}

// CallLocal invokes function on the locally configured module and decodes
// the result as R.
func CallLocal[R any](ctx context.Context, c LocalInvoker, module config.Accessor, function string, payload any) (R, error) {
	var reply R
	if err := c.InvokeLocal(ctx, module, function, payload, &reply); err != nil {
		var zero R
		return zero, err
	}
	return reply, nil
}
