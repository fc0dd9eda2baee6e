package register

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/jdziat/simple-wamp-api/pkg/core"
	"github.com/jdziat/simple-wamp-api/pkg/depends"
	intctx "github.com/jdziat/simple-wamp-api/pkg/internal/context"
	"github.com/jdziat/simple-wamp-api/pkg/internal/funcname"
	"github.com/jdziat/simple-wamp-api/pkg/internal/handler"
	"github.com/jdziat/simple-wamp-api/pkg/schema"
	"github.com/jdziat/simple-wamp-api/pkg/security"
)

// Procedure pairs a wrapped handler with its routing record.
type Procedure struct {
	Handler core.Handler
	Route   core.Route

	plan      *handler.Plan
	response  *schema.Info
	roles     []string
	delimiter string
	logger    *slog.Logger
}

// URI returns the procedure's route URI.
func (p *Procedure) URI() string {
	return p.Route.URI()
}

// AllowedRoles returns the roles allowed to call the procedure, or nil when
// it is unrestricted.
func (p *Procedure) AllowedRoles() []string {
	if p.roles == nil {
		return nil
	}
	return append([]string{}, p.roles...)
}

// Register analyses fn and wraps it into a Procedure. Parameters of fn,
// after an optional leading context.Context, are declared in order with Arg,
// Kwarg, OneOf, Inject or Details. fn returns error or (T, error).
//
// Every problem with fn or the options is a *core.ConfigError.
func Register(fn any, opts ...Option) (*Procedure, error) {
	o := NewOptions()
	for _, opt := range opts {
		opt.Apply(o)
	}
	name := funcname.Of(fn)

	if o.URI != "" {
		if err := security.ValidateURI(o.URI); err != nil {
			return nil, core.Configf(name, err, "%q", o.URI)
		}
	}

	var response *schema.Info
	if o.hasResponse {
		t := typeOf(o.responseValue)
		if !schema.IsSchemaType(t) {
			return nil, core.Configf(name, core.ErrInvalidResponseSchema, "got %v", t)
		}
		info, err := schema.Inspect(t)
		if err != nil {
			return nil, core.Configf(name, core.ErrInvalidResponseSchema, "%v", err)
		}
		o.ResponseSchema = info.Type
		response = info
	}

	if err := security.ValidateRoles(o.AllowedRoles); err != nil {
		return nil, core.Configf(name, err, "%q", o.AllowedRoles)
	}
	if o.RoleDelimiter == "" {
		return nil, core.Configf(name, core.ErrInvalidRoles, "role delimiter cannot be empty")
	}

	plan, err := handler.Analyze(fn, o.Params)
	if err != nil {
		return nil, err
	}

	uri := o.URI
	if uri == "" {
		uri = funcname.SnakeCase(plan.Name)
		if err := security.ValidateURI(uri); err != nil {
			return nil, core.Configf(name, err, "derived uri %q", uri)
		}
	}

	var fields []string
	if response != nil {
		fields = response.Fields()
	}

	p := &Procedure{
		Route:     core.NewRoute(uri, fields),
		plan:      plan,
		response:  response,
		roles:     o.AllowedRoles,
		delimiter: o.RoleDelimiter,
		logger:    o.Logger,
	}
	p.Handler = p.call
	return p, nil
}

// MustRegister is like Register but panics on error.
func MustRegister(fn any, opts ...Option) *Procedure {
	p, err := Register(fn, opts...)
	if err != nil {
		panic(fmt.Sprintf("wampapi: register %s: %v", funcname.Of(fn), err))
	}
	return p
}

// call runs one invocation: authorize, build the schema, validate arguments,
// acquire dependencies, invoke and serialize. Dependencies are released on
// every exit path once acquired.
func (p *Procedure) call(ctx context.Context, inv *core.Invocation) (result any, err error) {
	if inv == nil {
		inv = &core.Invocation{}
	}
	schemaKw, rest := p.plan.Split(inv.Kwargs)

	if err := security.Authorize(p.roles, p.delimiter, inv.Details); err != nil {
		return nil, err
	}

	var schemaVal reflect.Value
	if p.plan.RequestSchema != nil {
		schemaVal, err = p.plan.RequestSchema.Construct(schemaKw)
		if err != nil {
			return nil, invalidArgument(err)
		}
	}

	args, err := p.plan.Bind(inv.Args, rest)
	if err != nil {
		return nil, err
	}
	if schemaVal.IsValid() {
		args.SetSchema(schemaVal)
	}
	args.SetDetails(inv.Details)

	scope := depends.NewScope()
	defer func() {
		if r := recover(); r != nil {
			if cerr := scope.Close(fmt.Errorf("panic: %v", r)); cerr != nil {
				p.logger.Error("release after panic failed", "uri", p.URI(), "error", cerr)
			}
			panic(r)
		}
		if cerr := scope.Close(err); cerr != nil {
			if err != nil {
				p.logger.Warn("release failed", "uri", p.URI(), "error", cerr, "call_error", err)
				return
			}
			result, err = nil, cerr
		}
	}()

	if err = args.Acquire(ctx, scope); err != nil {
		return nil, err
	}

	ctx = intctx.WithCallContext(ctx, &intctx.CallContext{URI: p.URI(), Details: inv.Details})
	out, err := p.plan.Invoke(ctx, args)
	if err != nil {
		return nil, err
	}
	return schema.Serialize(out, p.response)
}

func invalidArgument(err error) error {
	if ve, ok := err.(*schema.ValidationError); ok {
		return core.NewApplicationError(core.CodeInvalidArgument, ve.JSON())
	}
	return core.NewApplicationError(core.CodeInvalidArgument, err.Error())
}
