package natsrpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/jdziat/simple-wamp-api/pkg/core"
	"github.com/jdziat/simple-wamp-api/pkg/internal/wire"
)

// Client calls procedures served by a Session.
type Client struct {
	nc         *nats.Conn
	subjPrefix string
	cfg        ClientConfig
}

// NewClient creates a Client on nc.
func NewClient(nc *nats.Conn, opts ...ClientOption) *Client {
	cfg := ClientConfig{
		SubjectPrefix: DefaultSubjectPrefix,
		Timeout:       DefaultTimeout,
	}
	for _, opt := range opts {
		opt.ApplyClient(&cfg)
	}
	return &Client{nc: nc, subjPrefix: cfg.SubjectPrefix, cfg: cfg}
}

// Call invokes uri and waits for its reply. details travel both in the body
// and as Wamp-Caller* headers; the session decides which, if any, it
// honours. Errors raised by the procedure are returned as
// *core.ApplicationError. A call nobody serves fails with a
// no_such_procedure ApplicationError.
func (c *Client) Call(ctx context.Context, uri string, args []any, kwargs map[string]any, details *core.CallDetails) (any, error) {
	if _, ok := ctx.Deadline(); !ok && c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	data, err := wire.Encode(&wire.Request{
		CallID:  uuid.New().String(),
		Args:    args,
		Kwargs:  kwargs,
		Details: details,
	})
	if err != nil {
		return nil, err
	}

	req := nats.NewMsg(c.subjPrefix + "." + uri)
	req.Data = data
	if details != nil {
		setHeader(req, HeaderCaller, details.Caller)
		setHeader(req, HeaderCallerAuthID, details.CallerAuthID)
		setHeader(req, HeaderCallerAuthRole, details.CallerAuthRole)
	}

	msg, err := c.nc.RequestMsgWithContext(ctx, req)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, core.NewApplicationError(core.CodeNoSuchProcedure, fmt.Sprintf("no procedure registered for %q", uri))
		}
		return nil, fmt.Errorf("natsrpc: call %s: %w", uri, err)
	}

	resp, err := wire.DecodeResponse(msg.Data)
	if err != nil {
		return nil, err
	}
	return resp.Outcome()
}

func setHeader(msg *nats.Msg, key, value string) {
	if value != "" {
		msg.Header.Set(key, value)
	}
}
