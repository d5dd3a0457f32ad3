package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/dhtrecords/internal/ir"
	"github.com/roach88/dhtrecords/internal/store"
)

// Handler serves one module function. The returned value is encoded as the
// response payload.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// Handle adapts a typed function to a Handler.
func Handle[P, R any](fn func(ctx context.Context, payload P) (R, error)) Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p P
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
		}
		return fn(ctx, p)
	}
}

// GrantSource looks up the grant holding a secret.
// *store.Store implements it.
type GrantSource interface {
	GrantBySecret(ctx context.Context, secret string) (ir.Grant, error)
}

// Server dispatches requests addressed to one partition.
type Server struct {
	partition string
	grants    GrantSource
	logger    *zap.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server's logger.
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a server for partition checking remote calls against
// grants.
func NewServer(partition string, grants GrantSource, opts ...ServerOption) *Server {
	s := &Server{
		partition: partition,
		grants:    grants,
		logger:    zap.NewNop(),
		handlers:  make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Partition returns the partition the server answers for.
func (s *Server) Partition() string { return s.partition }

// Register installs h as module.function, replacing any previous handler.
func (s *Server) Register(module, function string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[module+"."+function] = h
}

// Functions lists the registered module.function names.
func (s *Server) Functions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	return names
}

// Handle serves a request that arrived from another partition. The request
// must carry the secret of an unrevoked grant covering module.function.
func (s *Server) Handle(ctx context.Context, req *Request) *Response {
	if req.Partition != s.partition {
		return networkErrorResponse(fmt.Sprintf("partition %s cannot serve requests for %s", s.partition, req.Partition))
	}
	if !s.authorized(ctx, req) {
		s.logger.Warn("unauthorized call",
			zap.String("caller", req.Caller),
			zap.String("module", req.Module),
			zap.String("function", req.Function),
			zap.String("request_id", req.RequestID))
		return unauthorizedResponse(s.partition, req)
	}
	return s.dispatch(ctx, req)
}

// HandleLocal serves a call between modules of this partition. No
// capability check is made.
func (s *Server) HandleLocal(ctx context.Context, req *Request) *Response {
	return s.dispatch(ctx, req)
}

func (s *Server) authorized(ctx context.Context, req *Request) bool {
	if req.Secret == "" || s.grants == nil {
		return false
	}
	g, err := s.grants.GrantBySecret(ctx, req.Secret)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("grant lookup failed", zap.Error(err))
		}
		return false
	}
	return g.Allows(req.Module, req.Function)
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	name := req.Module + "." + req.Function
	s.mu.RLock()
	h, ok := s.handlers[name]
	s.mu.RUnlock()
	if !ok {
		return networkErrorResponse(fmt.Sprintf("no function %s on partition %s", name, s.partition))
	}

	result, err := h(ctx, req.Payload)
	if err != nil {
		s.logger.Debug("handler failed",
			zap.String("function", name),
			zap.String("request_id", req.RequestID),
			zap.Error(err))
		resp := networkErrorResponse(err.Error())
		var coded Coded
		if errors.As(err, &coded) {
			resp.Code = coded.ErrorCode()
		}
		return resp
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return networkErrorResponse(fmt.Sprintf("encode result of %s: %v", name, err))
	}
	return okResponse(payload)
}
