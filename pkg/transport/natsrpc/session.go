// Package natsrpc implements core.Session over NATS request/reply.
//
// Each procedure URI becomes the subject "<prefix>.<uri>"; prefix-matched
// registrations (URIs ending in '.') subscribe to "<prefix>.<uri>>". Calls
// and replies use the JSON envelope of the wire package.
//
// Caller details in the request body are ignored unless TrustBodyDetails is
// set; WithDetails chooses where they come from instead.
package natsrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sourcegraph/conc/pool"

	"github.com/jdziat/simple-wamp-api/pkg/core"
	intctx "github.com/jdziat/simple-wamp-api/pkg/internal/context"
	"github.com/jdziat/simple-wamp-api/pkg/internal/wire"
	"github.com/jdziat/simple-wamp-api/pkg/security"
)

// Session registers procedures as NATS queue subscriptions.
type Session struct {
	// Options.
	subjPrefix string
	group      string
	logger     *slog.Logger
	details    DetailsFunc
	trustBody  bool

	workers *pool.Pool
	ctx     context.Context
	cancel  context.CancelFunc

	// Mutable fields.
	mu       sync.RWMutex
	nc       *nats.Conn                    // nil if closed
	subs     map[string]*nats.Subscription // registration id -> subscription
	subjects map[string]string             // subject -> registration id
}

var _ core.Session = (*Session)(nil)

// New creates a Session on nc.
func New(nc *nats.Conn, opts ...SessionOption) (*Session, error) {
	if nc == nil {
		return nil, errors.New("natsrpc: nil connection")
	}
	cfg := &SessionConfig{
		SubjectPrefix:  DefaultSubjectPrefix,
		Group:          DefaultGroup,
		MaxConcurrency: DefaultMaxConcurrency,
		Logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt.ApplySession(cfg)
	}
	if err := security.ValidateURI(cfg.SubjectPrefix); err != nil {
		return nil, fmt.Errorf("natsrpc: subject prefix %q: %w", cfg.SubjectPrefix, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		subjPrefix: cfg.SubjectPrefix,
		group:      cfg.Group,
		logger:     cfg.Logger,
		details:    cfg.Details,
		trustBody:  cfg.TrustBodyDetails,
		workers:    pool.New().WithMaxGoroutines(cfg.MaxConcurrency),
		ctx:        ctx,
		cancel:     cancel,
		nc:         nc,
		subs:       make(map[string]*nats.Subscription),
		subjects:   make(map[string]string),
	}, nil
}

// Register implements core.Session.
func (s *Session) Register(ctx context.Context, handler core.Handler, uri string, opts *core.RegisterOptions) (*core.Registration, error) {
	if handler == nil {
		return nil, fmt.Errorf("natsrpc: nil handler for %q", uri)
	}
	var ro core.RegisterOptions
	if opts != nil {
		ro = *opts
	}
	subject, err := s.subject(uri, ro.Match)
	if err != nil {
		return nil, err
	}

	// First (read) lock: get nc and do some checks.
	s.mu.RLock()
	nc := s.nc
	_, dup := s.subjects[subject]
	s.mu.RUnlock()
	if nc == nil {
		return nil, core.ErrSessionClosed
	}
	if dup {
		return nil, fmt.Errorf("%w: %s", core.ErrProcedureExists, uri)
	}

	sub, err := nc.QueueSubscribe(subject, s.group, s.msgHandler(uri, handler))
	if err != nil {
		return nil, fmt.Errorf("natsrpc: subscribe %s: %w", subject, err)
	}

	// Second (write) lock: record the subscription.
	id := uuid.New().String()
	s.mu.Lock()
	if s.nc == nil {
		s.mu.Unlock()
		_ = sub.Unsubscribe()
		return nil, core.ErrSessionClosed
	}
	if _, dup := s.subjects[subject]; dup {
		s.mu.Unlock()
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("%w: %s", core.ErrProcedureExists, uri)
	}
	s.subs[id] = sub
	s.subjects[subject] = id
	s.mu.Unlock()

	s.logger.Debug("procedure subscribed", "uri", uri, "subject", subject, "registration_id", id)
	return core.NewRegistration(id, uri, ro, func(ctx context.Context) error {
		return s.unregister(id, subject)
	}), nil
}

func (s *Session) subject(uri, match string) (string, error) {
	switch match {
	case "", core.MatchExact:
		if err := security.ValidateURI(uri); err != nil {
			return "", fmt.Errorf("natsrpc: %q: %w", uri, err)
		}
		if strings.ContainsAny(uri, "*>") {
			return "", fmt.Errorf("natsrpc: %q: %w", uri, core.ErrInvalidURI)
		}
		return s.subjPrefix + "." + uri, nil
	case core.MatchPrefix:
		if !strings.HasSuffix(uri, ".") || strings.ContainsAny(uri, "*> \t#") {
			return "", fmt.Errorf("natsrpc: prefix %q must end with '.': %w", uri, core.ErrInvalidURI)
		}
		return s.subjPrefix + "." + uri + ">", nil
	}
	return "", fmt.Errorf("natsrpc: match policy %q not supported", match)
}

func (s *Session) unregister(id, subject string) error {
	s.mu.Lock()
	sub := s.subs[id]
	delete(s.subs, id)
	if s.subjects[subject] == id {
		delete(s.subjects, subject)
	}
	s.mu.Unlock()

	if sub == nil {
		return fmt.Errorf("%w: %s", core.ErrNoSuchRegistration, id)
	}
	return sub.Unsubscribe()
}

// Close unsubscribes every procedure and waits for running handlers.
func (s *Session) Close() error {
	s.mu.Lock()
	nc := s.nc
	subs := s.subs
	s.nc = nil
	s.subs = nil
	s.subjects = nil
	s.mu.Unlock()

	if nc == nil {
		return core.ErrSessionClosed
	}
	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	s.workers.Wait()
	s.cancel()
	return nil
}

func (s *Session) msgHandler(uri string, handler core.Handler) nats.MsgHandler {
	prefixLen := len(s.subjPrefix) + 1
	return func(msg *nats.Msg) {
		// Submitting under the read lock keeps Close from waiting on the
		// pool while a submission is in flight.
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.nc == nil {
			return
		}
		s.workers.Go(func() {
			procedure := uri
			if len(msg.Subject) > prefixLen {
				procedure = msg.Subject[prefixLen:]
			}
			s.serve(msg, procedure, handler)
		})
	}
}

func (s *Session) serve(msg *nats.Msg, procedure string, handler core.Handler) {
	req, err := wire.DecodeRequest(msg.Data)
	if err != nil {
		s.reply(msg, wire.Reply("", nil, core.NewApplicationError(core.CodeInvalidArgument, err.Error())))
		return
	}
	if req.CallID == "" {
		req.CallID = uuid.New().String()
	}
	details := s.callerDetails(msg, req)
	if details != nil {
		d := *details
		d.Procedure = procedure
		details = &d
	}

	ctx := intctx.WithCallID(s.ctx, req.CallID)
	result, err := s.invoke(ctx, handler, &core.Invocation{Args: req.Args, Kwargs: req.Kwargs, Details: details})
	if err != nil {
		var appErr *core.ApplicationError
		if !errors.As(err, &appErr) {
			s.logger.Error("procedure failed", "uri", procedure, "call_id", req.CallID, "error", err)
		}
	}
	s.reply(msg, wire.Reply(req.CallID, result, err))
}

// callerDetails never trusts the request body unless configured to.
func (s *Session) callerDetails(msg *nats.Msg, req *wire.Request) *core.CallDetails {
	switch {
	case s.trustBody:
		return req.Details
	case s.details != nil:
		return s.details(msg)
	}
	return nil
}

func (s *Session) invoke(ctx context.Context, handler core.Handler, inv *core.Invocation) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return handler(ctx, inv)
}

func (s *Session) reply(msg *nats.Msg, resp *wire.Response) {
	if msg.Reply == "" {
		return
	}
	data, err := wire.Encode(resp)
	if err != nil {
		s.logger.Error("failed to encode reply", "subject", msg.Subject, "error", err)
		data, _ = wire.Encode(wire.Reply(resp.CallID, nil, core.NewApplicationError(core.CodeUnknownPayload, err.Error())))
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Error("failed to publish reply", "subject", msg.Subject, "error", err)
	}
}
