// Package wampapi turns plain typed Go functions into remotely callable
// procedures.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	type Accounts struct{ tx *wampapi.Dependency }
//
//	func (a *Accounts) Echo() *wampapi.Procedure {
//	    return wampapi.MustRegister(func(firstName string) (string, error) {
//	        return firstName, nil
//	    }, wampapi.Arg("first_name"))
//	}
//
//	r := wampapi.NewRouter()
//	wampapi.RegisterBulk(ctx, r, func() *Accounts { return &Accounts{} },
//	    wampapi.Prefix("com.example.accounts."))
//	r.Call(ctx, "com.example.accounts.echo", []any{"hi"}, nil, nil)
package wampapi

import (
	"context"
	"log/slog"

	"github.com/jdziat/simple-wamp-api/pkg/callctx"
	"github.com/jdziat/simple-wamp-api/pkg/core"
	"github.com/jdziat/simple-wamp-api/pkg/depends"
	"github.com/jdziat/simple-wamp-api/pkg/register"
	"github.com/jdziat/simple-wamp-api/pkg/router"
	"github.com/jdziat/simple-wamp-api/pkg/schema"
	"github.com/jdziat/simple-wamp-api/pkg/security"
)

type (
	// CallDetails describes the calling principal of one invocation.
	CallDetails = core.CallDetails

	// Invocation is a call as delivered by a Session.
	Invocation = core.Invocation

	// Handler is a transport-ready procedure.
	Handler = core.Handler

	// Session is the transport-side router procedures are registered with.
	Session = core.Session

	// RegisterOptions are handed to Session.Register unchanged.
	RegisterOptions = core.RegisterOptions

	// Registration is the result of a successful Session.Register.
	Registration = core.Registration

	// Route is the routing record attached to a Procedure.
	Route = core.Route

	// ApplicationError is a call-time failure returned to the caller.
	ApplicationError = core.ApplicationError

	// ConfigError reports a mistake detected at registration time.
	ConfigError = core.ConfigError

	// Procedure is a registered handler ready to be handed to a Session.
	Procedure = register.Procedure

	// Description is the discovery view of a Procedure.
	Description = register.Description

	// Option configures Register.
	Option = register.Option

	// BulkOption configures RegisterBulk.
	BulkOption = register.BulkOption

	// Dependency is a scoped resource provider.
	Dependency = depends.Dependency

	// Release tears down one dependency resource.
	Release = depends.Release

	// Model marks a struct as a structured schema.
	Model = schema.Model

	// ValidationError reports schema construction failures.
	ValidationError = schema.ValidationError

	// Router is the in-process Session.
	Router = router.Router
)

// Match and invocation policies.
const (
	MatchExact    = core.MatchExact
	MatchPrefix   = core.MatchPrefix
	MatchWildcard = core.MatchWildcard

	InvokeSingle     = core.InvokeSingle
	InvokeRoundRobin = core.InvokeRoundRobin
	InvokeRandom     = core.InvokeRandom
	InvokeFirst      = core.InvokeFirst
	InvokeLast       = core.InvokeLast
)

// Security limits
const (
	MaxURILength          = security.MaxURILength
	MaxConcurrency        = security.MaxConcurrency
	MaxErrorMessageLength = security.MaxErrorMessageLength
)

// Register analyses fn and wraps it as a Procedure.
func Register(fn any, opts ...Option) (*Procedure, error) {
	return register.Register(fn, opts...)
}

// MustRegister is like Register but panics on a configuration error.
func MustRegister(fn any, opts ...Option) *Procedure {
	return register.MustRegister(fn, opts...)
}

// RegisterBulk registers every procedure exposed by the collection built by
// newCollection. Failures are logged and skipped.
func RegisterBulk[C any](ctx context.Context, session Session, newCollection func() C, opts ...BulkOption) []*Registration {
	return register.RegisterBulk(ctx, session, newCollection, opts...)
}

// NewRouter creates an in-process Session.
func NewRouter(opts ...router.Option) *Router {
	return router.New(opts...)
}

// Depends wraps a provider function as a Dependency.
func Depends(fn any) (*Dependency, error) {
	return depends.Depends(fn)
}

// MustDepends is like Depends but panics on an invalid provider.
func MustDepends(fn any) *Dependency {
	return depends.MustDepends(fn)
}

// Provide wraps a typed provider.
func Provide[T any](fn func(ctx context.Context) (T, Release, error)) *Dependency {
	return depends.Provide(fn)
}

// ValidateURI validates a procedure URI.
func ValidateURI(uri string) error {
	return security.ValidateURI(uri)
}

// SanitizeErrorMessage truncates and sanitizes error messages sent to callers.
func SanitizeErrorMessage(msg string) string {
	return security.SanitizeErrorMessage(msg)
}

// Register option functions

// URI sets an explicit procedure URI.
func URI(uri string) Option {
	return register.URI(uri)
}

// ResponseSchema serializes results through the schema type of v.
func ResponseSchema(v any) Option {
	return register.ResponseSchema(v)
}

// AllowedRoles restricts the procedure to callers holding one of roles.
func AllowedRoles(roles ...string) Option {
	return register.AllowedRoles(roles...)
}

// RoleDelimiter sets the separator used to split the caller's authrole.
func RoleDelimiter(delim string) Option {
	return register.RoleDelimiter(delim)
}

// Arg declares the next parameter as required.
func Arg(name string) Option {
	return register.Arg(name)
}

// Kwarg declares the next parameter as optional with a default.
func Kwarg(name string, def any) Option {
	return register.Kwarg(name, def)
}

// OneOf declares the next parameter as accepting any of types.
func OneOf(name string, types ...any) Option {
	return register.OneOf(name, types...)
}

// Inject declares the next parameter as supplied by dep.
func Inject(name string, dep *Dependency) Option {
	return register.Inject(name, dep)
}

// Details declares the next parameter as the call details.
func Details(name string) Option {
	return register.Details(name)
}

// Bulk option functions

// Prefix is prepended to every procedure URI.
func Prefix(prefix string) BulkOption {
	return register.Prefix(prefix)
}

// WithRegisterOptions passes opts to every Session.Register.
func WithRegisterOptions(opts *RegisterOptions) BulkOption {
	return register.WithRegisterOptions(opts)
}

// WithLogger sets the logger used by Register and RegisterBulk.
func WithLogger(l *slog.Logger) register.LoggerOption {
	return register.WithLogger(l)
}

// Call context accessors

// DetailsFromContext returns the details of the call being served, or nil.
func DetailsFromContext(ctx context.Context) *CallDetails {
	return callctx.DetailsFromContext(ctx)
}

// URIFromContext returns the URI of the procedure being served.
func URIFromContext(ctx context.Context) string {
	return callctx.URIFromContext(ctx)
}

// CallIDFromContext returns the transport call ID, if any.
func CallIDFromContext(ctx context.Context) string {
	return callctx.CallIDFromContext(ctx)
}
