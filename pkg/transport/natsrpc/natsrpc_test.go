package natsrpc

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-wamp-api/pkg/callctx"
	"github.com/jdziat/simple-wamp-api/pkg/core"
	"github.com/jdziat/simple-wamp-api/pkg/internal/wire"
	"github.com/jdziat/simple-wamp-api/pkg/register"
)

func runServer(t *testing.T) *nats.Conn {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(ns.Shutdown)

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func newSession(t *testing.T, nc *nats.Conn, opts ...SessionOption) *Session {
	t.Helper()
	opts = append([]SessionOption{WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))}, opts...)
	s, err := New(nc, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSession_CallRoundTrip(t *testing.T) {
	nc := runServer(t)
	s := newSession(t, nc)
	client := NewClient(nc)
	ctx := context.Background()

	var callID string
	_, err := s.Register(ctx, func(ctx context.Context, inv *core.Invocation) (any, error) {
		callID = callctx.CallIDFromContext(ctx)
		return map[string]any{"args": inv.Args, "kwargs": inv.Kwargs}, nil
	}, "com.thing.echo", nil)
	require.NoError(t, err)

	result, err := client.Call(ctx, "com.thing.echo", []any{"hi"}, map[string]any{"n": 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"args":   []any{"hi"},
		"kwargs": map[string]any{"n": float64(1)},
	}, result)
	assert.NotEmpty(t, callID)
}

func TestSession_ApplicationErrorPropagates(t *testing.T) {
	nc := runServer(t)
	s := newSession(t, nc)
	client := NewClient(nc)
	ctx := context.Background()

	_, err := s.Register(ctx, func(ctx context.Context, inv *core.Invocation) (any, error) {
		return nil, core.NewApplicationError(core.CodeNotFound, "Account does not exist")
	}, "get", nil)
	require.NoError(t, err)

	_, err = client.Call(ctx, "get", nil, nil, nil)
	var appErr *core.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, core.CodeNotFound, appErr.URI)
	assert.Equal(t, []any{"Account does not exist"}, appErr.Args)
}

func TestSession_PlainErrorsAndPanicsAreRuntimeErrors(t *testing.T) {
	nc := runServer(t)
	s := newSession(t, nc)
	client := NewClient(nc)
	ctx := context.Background()

	_, err := s.Register(ctx, func(ctx context.Context, inv *core.Invocation) (any, error) {
		return nil, errors.New("disk on fire")
	}, "fails", nil)
	require.NoError(t, err)
	_, err = s.Register(ctx, func(ctx context.Context, inv *core.Invocation) (any, error) {
		panic("boom")
	}, "panics", nil)
	require.NoError(t, err)

	_, err = client.Call(ctx, "fails", nil, nil, nil)
	var appErr *core.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, core.CodeRuntimeError, appErr.URI)
	assert.Equal(t, []any{"disk on fire"}, appErr.Args)

	_, err = client.Call(ctx, "panics", nil, nil, nil)
	assert.True(t, core.IsApplicationError(err, core.CodeRuntimeError))
}

func TestSession_NoSuchProcedure(t *testing.T) {
	nc := runServer(t)
	newSession(t, nc)
	client := NewClient(nc, Timeout(time.Second))

	_, err := client.Call(context.Background(), "missing", nil, nil, nil)
	assert.True(t, core.IsApplicationError(err, core.CodeNoSuchProcedure))
}

func TestSession_RejectsDuplicatesAndBadURIs(t *testing.T) {
	nc := runServer(t)
	s := newSession(t, nc)
	ctx := context.Background()
	h := func(ctx context.Context, inv *core.Invocation) (any, error) { return nil, nil }

	_, err := s.Register(ctx, h, "dup", nil)
	require.NoError(t, err)
	_, err = s.Register(ctx, h, "dup", nil)
	assert.ErrorIs(t, err, core.ErrProcedureExists)

	_, err = s.Register(ctx, h, "a.*", nil)
	assert.ErrorIs(t, err, core.ErrInvalidURI)

	_, err = s.Register(ctx, h, "no.trailing.dot", &core.RegisterOptions{Match: core.MatchPrefix})
	assert.ErrorIs(t, err, core.ErrInvalidURI)

	_, err = s.Register(ctx, h, "a", &core.RegisterOptions{Match: core.MatchWildcard})
	assert.Error(t, err)
}

func TestSession_PrefixRegistration(t *testing.T) {
	nc := runServer(t)
	s := newSession(t, nc, WithDetails(DetailsFromHeaders))
	client := NewClient(nc)
	ctx := context.Background()

	_, err := s.Register(ctx, func(ctx context.Context, inv *core.Invocation) (any, error) {
		return inv.Details.Procedure, nil
	}, "com.thing.", &core.RegisterOptions{Match: core.MatchPrefix})
	require.NoError(t, err)

	result, err := client.Call(ctx, "com.thing.anything", nil, nil, &core.CallDetails{CallerAuthRole: "user"})
	require.NoError(t, err)
	assert.Equal(t, "com.thing.anything", result)
}

func TestSession_UnregisterAndClose(t *testing.T) {
	nc := runServer(t)
	s, err := New(nc, WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	require.NoError(t, err)
	client := NewClient(nc, Timeout(time.Second))
	ctx := context.Background()
	h := func(ctx context.Context, inv *core.Invocation) (any, error) { return "ok", nil }

	reg, err := s.Register(ctx, h, "temp", nil)
	require.NoError(t, err)
	_, err = client.Call(ctx, "temp", nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, reg.Unregister(ctx))
	require.NoError(t, nc.Flush())
	_, err = client.Call(ctx, "temp", nil, nil, nil)
	assert.True(t, core.IsApplicationError(err, core.CodeNoSuchProcedure))
	assert.ErrorIs(t, reg.Unregister(ctx), core.ErrNoSuchRegistration)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), core.ErrSessionClosed)
	_, err = s.Register(ctx, h, "late", nil)
	assert.ErrorIs(t, err, core.ErrSessionClosed)
}

func TestSession_SubjectPrefixMustMatch(t *testing.T) {
	nc := runServer(t)
	s := newSession(t, nc, SubjectPrefix("svc"))
	ctx := context.Background()

	_, err := s.Register(ctx, func(ctx context.Context, inv *core.Invocation) (any, error) { return "ok", nil }, "ping", nil)
	require.NoError(t, err)

	result, err := NewClient(nc, SubjectPrefix("svc")).Call(ctx, "ping", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	_, err = NewClient(nc, Timeout(time.Second)).Call(ctx, "ping", nil, nil, nil)
	assert.True(t, core.IsApplicationError(err, core.CodeNoSuchProcedure))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	nc := runServer(t)
	_, err = New(nc, SubjectPrefix("bad prefix"))
	assert.ErrorIs(t, err, core.ErrInvalidURI)
}

func TestSession_WithRegisteredProcedure(t *testing.T) {
	nc := runServer(t)
	s := newSession(t, nc, MaxConcurrency(4))
	client := NewClient(nc)
	ctx := context.Background()

	add := register.MustRegister(func(a, b int) (int, error) { return a + b, nil },
		register.URI("calc.add"), register.Arg("a"), register.Arg("b"))
	_, err := s.Register(ctx, add.Handler, add.URI(), nil)
	require.NoError(t, err)

	sum, err := client.Call(ctx, "calc.add", []any{2, 3}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(5), sum)

	_, err = client.Call(ctx, "calc.add", []any{"2", 3}, nil, nil)
	var appErr *core.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, core.CodeInvalidParams, appErr.URI)
	assert.Equal(t, []any{"'a' expected type=int got=string"}, appErr.Args)
}

// ---------------------------------------------------------------------------
// Caller details
// ---------------------------------------------------------------------------

func registerRestricted(t *testing.T, s *Session) {
	t.Helper()
	whoami := register.MustRegister(func(ctx context.Context) (string, error) {
		d := callctx.DetailsFromContext(ctx)
		return d.CallerAuthID + ":" + d.Procedure, nil
	}, register.URI("admin.whoami"), register.AllowedRoles("admin"))
	_, err := s.Register(context.Background(), whoami.Handler, whoami.URI(), nil)
	require.NoError(t, err)
}

func publishRaw(t *testing.T, nc *nats.Conn, subject, body string, header nats.Header) *wire.Response {
	t.Helper()
	msg := nats.NewMsg(subject)
	msg.Data = []byte(body)
	for k, v := range header {
		msg.Header[k] = v
	}
	reply, err := nc.RequestMsg(msg, 5*time.Second)
	require.NoError(t, err)
	resp, err := wire.DecodeResponse(reply.Data)
	require.NoError(t, err)
	return resp
}

func TestSession_IgnoresBodyDetailsByDefault(t *testing.T) {
	nc := runServer(t)
	s := newSession(t, nc)
	registerRestricted(t, s)

	resp := publishRaw(t, nc, "wampapi.admin.whoami",
		`{"details": {"caller_authid": "mallory", "caller_authrole": "admin"}}`, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, core.CodeUnauthorized, resp.Error.URI)

	_, err := NewClient(nc).Call(context.Background(), "admin.whoami", nil, nil,
		&core.CallDetails{CallerAuthID: "mallory", CallerAuthRole: "admin"})
	assert.True(t, core.IsApplicationError(err, core.CodeUnauthorized), "got %v", err)
}

func TestSession_DetailsFromHeaders(t *testing.T) {
	nc := runServer(t)
	s := newSession(t, nc, WithDetails(DetailsFromHeaders))
	registerRestricted(t, s)

	resp := publishRaw(t, nc, "wampapi.admin.whoami",
		`{"details": {"caller_authrole": "admin"}}`, nats.Header{HeaderCallerAuthRole: []string{"guest"}})
	require.NotNil(t, resp.Error)
	assert.Equal(t, core.CodeUnauthorized, resp.Error.URI)

	result, err := NewClient(nc).Call(context.Background(), "admin.whoami", nil, nil,
		&core.CallDetails{CallerAuthID: "alice", CallerAuthRole: "guest,admin"})
	require.NoError(t, err)
	assert.Equal(t, "alice:admin.whoami", result)
}

func TestSession_CustomDetailsFunc(t *testing.T) {
	nc := runServer(t)
	s := newSession(t, nc, WithDetails(func(msg *nats.Msg) *core.CallDetails {
		return &core.CallDetails{CallerAuthID: "service", CallerAuthRole: "admin"}
	}))
	registerRestricted(t, s)

	result, err := NewClient(nc).Call(context.Background(), "admin.whoami", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "service:admin.whoami", result)
}

func TestSession_TrustBodyDetails(t *testing.T) {
	nc := runServer(t)
	s := newSession(t, nc, TrustBodyDetails(), WithDetails(DetailsFromHeaders))
	registerRestricted(t, s)

	resp := publishRaw(t, nc, "wampapi.admin.whoami",
		`{"details": {"caller_authid": "bob", "caller_authrole": "admin"}}`, nil)
	require.Nil(t, resp.Error)
	assert.Equal(t, "bob:admin.whoami", resp.Result)
}

func TestDetailsFromHeaders(t *testing.T) {
	assert.Nil(t, DetailsFromHeaders(nil))
	assert.Nil(t, DetailsFromHeaders(nats.NewMsg("x")))

	msg := nats.NewMsg("x")
	msg.Header.Set(HeaderCaller, "7")
	msg.Header.Set(HeaderCallerAuthID, "alice")
	msg.Header.Set(HeaderCallerAuthRole, "user")
	assert.Equal(t, &core.CallDetails{Caller: "7", CallerAuthID: "alice", CallerAuthRole: "user"}, DetailsFromHeaders(msg))
}
