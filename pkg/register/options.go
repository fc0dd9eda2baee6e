package register

import (
	"log/slog"
	"reflect"

	"github.com/jdziat/simple-wamp-api/pkg/core"
	"github.com/jdziat/simple-wamp-api/pkg/depends"
	"github.com/jdziat/simple-wamp-api/pkg/internal/handler"
)

// Options holds configuration for a single registration.
type Options struct {
	URI            string
	ResponseSchema reflect.Type
	AllowedRoles   []string
	RoleDelimiter  string
	Params         []handler.Param
	Logger         *slog.Logger

	responseValue any
	hasResponse   bool
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{
		RoleDelimiter: core.DefaultRoleDelimiter,
		Logger:        slog.Default(),
	}
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// URI sets the procedure URI. Without it the URI is the snake_case name of
// the handler function.
func URI(uri string) Option {
	return optionFunc(func(o *Options) {
		o.URI = uri
	})
}

// ResponseSchema serializes results through the schema type of v. v may be
// a zero value of the schema (UserGet{} or &UserGet{}) or its reflect.Type.
func ResponseSchema(v any) Option {
	return optionFunc(func(o *Options) {
		o.responseValue = v
		o.hasResponse = true
	})
}

// AllowedRoles restricts the procedure to callers holding at least one of
// roles.
func AllowedRoles(roles ...string) Option {
	return optionFunc(func(o *Options) {
		o.AllowedRoles = append([]string{}, roles...)
	})
}

// RoleDelimiter sets the separator used to split the caller's auth role.
func RoleDelimiter(delim string) Option {
	return optionFunc(func(o *Options) {
		o.RoleDelimiter = delim
	})
}

// Arg declares the next handler parameter as required. Required parameters
// may be passed positionally or by name.
func Arg(name string) Option {
	return param(handler.Param{Name: name, Kind: handler.Required})
}

// Kwarg declares the next handler parameter as optional with a default.
func Kwarg(name string, def any) Option {
	return param(handler.Param{Name: name, Kind: handler.Defaulted, Default: def})
}

// OneOf declares the next handler parameter as required and accepting any
// of types. The Go parameter type must accept every member, usually any.
func OneOf(name string, types ...any) Option {
	members := make([]reflect.Type, len(types))
	for i, t := range types {
		members[i] = typeOf(t)
	}
	return param(handler.Param{Name: name, Kind: handler.Required, OneOf: members})
}

// Inject declares the next handler parameter as filled from dep on every
// call.
func Inject(name string, dep *depends.Dependency) Option {
	return param(handler.Param{Name: name, Kind: handler.Injected, Dependency: dep})
}

// Details declares the next handler parameter, of type *core.CallDetails, as
// the caller details. It is shorthand for Kwarg(name, nil).
func Details(name string) Option {
	return Kwarg(name, nil)
}

func param(p handler.Param) Option {
	return optionFunc(func(o *Options) {
		o.Params = append(o.Params, p)
	})
}

// typeOf accepts either a reflect.Type or a sample value.
func typeOf(v any) reflect.Type {
	if t, ok := v.(reflect.Type); ok {
		return t
	}
	return reflect.TypeOf(v)
}
