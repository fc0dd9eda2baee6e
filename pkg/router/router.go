// Package router provides an in-process core.Session.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jdziat/simple-wamp-api/pkg/core"
	intctx "github.com/jdziat/simple-wamp-api/pkg/internal/context"
	"github.com/jdziat/simple-wamp-api/pkg/security"
)

// Router dispatches calls to registered handlers inside the process. It
// implements core.Session and is safe for concurrent use.
type Router struct {
	mu       sync.RWMutex
	exact    map[string]*entry
	prefixes []*entry // longest prefix first
	byID     map[string]*entry
	closed   bool

	logger *slog.Logger
}

type entry struct {
	id      string
	uri     string
	handler core.Handler
	opts    core.RegisterOptions
	slots   chan struct{} // nil when unlimited
}

// Option configures a Router.
type Option interface {
	ApplyRouter(*Router)
}

type routerOptionFunc func(*Router)

func (f routerOptionFunc) ApplyRouter(r *Router) { f(r) }

// WithLogger sets the router's logger.
func WithLogger(l *slog.Logger) Option {
	return routerOptionFunc(func(r *Router) {
		if l != nil {
			r.logger = l
		}
	})
}

// New creates an empty Router.
func New(opts ...Option) *Router {
	r := &Router{
		exact:  make(map[string]*entry),
		byID:   make(map[string]*entry),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt.ApplyRouter(r)
	}
	return r
}

// Register binds handler to uri. Match "" and "exact" bind the URI itself,
// "prefix" binds every URI starting with uri. A second registration of the
// same URI and policy fails with core.ErrProcedureExists.
func (r *Router) Register(ctx context.Context, handler core.Handler, uri string, opts *core.RegisterOptions) (*core.Registration, error) {
	if handler == nil {
		return nil, fmt.Errorf("router: nil handler for %q", uri)
	}
	var ro core.RegisterOptions
	if opts != nil {
		ro = *opts
	}

	switch ro.Match {
	case "", core.MatchExact:
		if err := security.ValidateURI(uri); err != nil {
			return nil, fmt.Errorf("router: %q: %w", uri, err)
		}
	case core.MatchPrefix:
		if uri == "" {
			return nil, fmt.Errorf("router: empty prefix: %w", core.ErrInvalidURI)
		}
		if err := security.ValidatePrefix(uri); err != nil {
			return nil, fmt.Errorf("router: %q: %w", uri, err)
		}
	default:
		return nil, fmt.Errorf("router: match policy %q not supported", ro.Match)
	}

	e := &entry{
		id:      uuid.New().String(),
		uri:     uri,
		handler: handler,
		opts:    ro,
	}
	if ro.Concurrency > 0 {
		e.slots = make(chan struct{}, security.ClampConcurrency(ro.Concurrency))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, core.ErrSessionClosed
	}
	if ro.Match == core.MatchPrefix {
		for _, p := range r.prefixes {
			if p.uri == uri {
				return nil, fmt.Errorf("%w: %s", core.ErrProcedureExists, uri)
			}
		}
		r.prefixes = append(r.prefixes, e)
		sort.SliceStable(r.prefixes, func(i, j int) bool {
			return len(r.prefixes[i].uri) > len(r.prefixes[j].uri)
		})
	} else {
		if _, ok := r.exact[uri]; ok {
			return nil, fmt.Errorf("%w: %s", core.ErrProcedureExists, uri)
		}
		r.exact[uri] = e
	}
	r.byID[e.id] = e

	r.logger.Debug("procedure registered", "uri", uri, "registration_id", e.id, "match", ro.Match)
	return core.NewRegistration(e.id, uri, ro, func(ctx context.Context) error {
		return r.Unregister(ctx, e.id)
	}), nil
}

// Unregister removes the registration with id.
func (r *Router) Unregister(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrNoSuchRegistration, id)
	}
	delete(r.byID, id)
	if r.exact[e.uri] == e {
		delete(r.exact, e.uri)
	}
	for i, p := range r.prefixes {
		if p == e {
			r.prefixes = append(r.prefixes[:i], r.prefixes[i+1:]...)
			break
		}
	}
	return nil
}

// Call invokes the procedure bound to uri. Exact registrations win over
// prefix registrations, and longer prefixes over shorter ones. details may
// be nil; when set, a copy with Procedure filled in is passed on. A handler
// panic is returned as a runtime_error.
func (r *Router) Call(ctx context.Context, uri string, args []any, kwargs map[string]any, details *core.CallDetails) (result any, err error) {
	e, err := r.lookup(uri)
	if err != nil {
		return nil, err
	}

	if e.slots != nil {
		select {
		case e.slots <- struct{}{}:
			defer func() { <-e.slots }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if details != nil {
		d := *details
		d.Procedure = uri
		details = &d
	}

	callID := intctx.GetCallID(ctx)
	if callID == "" {
		callID = uuid.New().String()
		ctx = intctx.WithCallID(ctx, callID)
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("procedure panicked", "uri", uri, "call_id", callID, "panic", p)
			result = nil
			err = core.NewApplicationError(core.CodeRuntimeError, fmt.Sprintf("panic: %v", p))
		}
	}()

	return e.handler(ctx, &core.Invocation{Args: args, Kwargs: kwargs, Details: details})
}

func (r *Router) lookup(uri string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, core.ErrSessionClosed
	}
	if e, ok := r.exact[uri]; ok {
		return e, nil
	}
	for _, p := range r.prefixes {
		if strings.HasPrefix(uri, p.uri) {
			return p, nil
		}
	}
	return nil, core.NewApplicationError(core.CodeNoSuchProcedure, fmt.Sprintf("no procedure registered for %q", uri))
}

// Procedures returns the registered URIs, sorted.
func (r *Router) Procedures() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uris := make([]string, 0, len(r.byID))
	for _, e := range r.byID {
		uris = append(uris, e.uri)
	}
	sort.Strings(uris)
	return uris
}

// Close drops every registration. Later calls and registrations fail with
// core.ErrSessionClosed.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.exact = make(map[string]*entry)
	r.prefixes = nil
	r.byID = make(map[string]*entry)
	return nil
}
