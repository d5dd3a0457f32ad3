package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/roach88/dhtrecords/internal/config"
	"github.com/roach88/dhtrecords/internal/ir"
	"github.com/roach88/dhtrecords/internal/store"
)

type fakeGrants map[string]ir.Grant

func (f fakeGrants) GrantBySecret(_ context.Context, secret string) (ir.Grant, error) {
	g, ok := f[secret]
	if !ok {
		return ir.Grant{}, store.ErrNotFound
	}
	return g, nil
}

type echoRequest struct {
	Text string `json:"text"`
}

type echoReply struct {
	Echo   string `json:"echo"`
	Caller string `json:"caller,omitempty"`
}

const (
	callee         = "observation"
	caller         = "planning"
	goodSecret     = "s3cret"
	echoPermission = "observation_echo"
)

// newCallee returns a server for the callee partition with echo.say and
// echo.fail registered and one grant covering echo.say.
func newCallee(t *testing.T) *Server {
	t.Helper()
	srv := NewServer(callee, fakeGrants{
		goodSecret: {ID: "g1", Grantor: callee, Secret: goodSecret, Functions: []string{"echo.say"}},
		"revoked":  {ID: "g2", Grantor: callee, Secret: "revoked", Functions: []string{"echo.*"}, Revoked: true},
		"wide":     {ID: "g3", Grantor: callee, Secret: "wide", Functions: []string{"echo.*"}},
	})
	srv.Register("echo", "say", Handle(func(_ context.Context, req echoRequest) (echoReply, error) {
		return echoReply{Echo: strings.ToUpper(req.Text)}, nil
	}))
	srv.Register("echo", "fail", Handle(func(_ context.Context, _ echoRequest) (echoReply, error) {
		return echoReply{}, errors.New("callee exploded")
	}))
	srv.Register("echo", "lookup", Handle(func(_ context.Context, req echoRequest) (echoReply, error) {
		return echoReply{}, fmt.Errorf("lookup %q: %w", req.Text, codedError("ENTRY_NOT_FOUND"))
	}))
	return srv
}

// codedError stands in for a domain error that carries its own code.
type codedError string

func (e codedError) Error() string     { return string(e) + ": nothing there" }
func (e codedError) ErrorCode() string { return string(e) }

func claimFor(permission, function, secret string) ir.Claim {
	return ir.Claim{
		Partition:  callee,
		Permission: permission,
		Grantor:    callee,
		Secret:     secret,
		Module:     "echo",
		Function:   function,
	}
}

func callerConfig() *config.Config {
	return &config.Config{
		Partition: caller,
		Modules:   map[string]string{"echo_role": "echo"},
	}
}
