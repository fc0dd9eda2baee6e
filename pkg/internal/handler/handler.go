// Package handler provides reflection-based handler analysis and execution for the wampapi package.
package handler

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jdziat/simple-wamp-api/pkg/core"
	"github.com/jdziat/simple-wamp-api/pkg/depends"
	"github.com/jdziat/simple-wamp-api/pkg/internal/funcname"
	"github.com/jdziat/simple-wamp-api/pkg/schema"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	detailsType = reflect.TypeOf((*core.CallDetails)(nil))
)

// ParamKind is how a parameter was declared.
type ParamKind int

const (
	// Required parameters have no default and may be passed positionally.
	Required ParamKind = iota
	// Defaulted parameters fall back to their default when omitted.
	Defaulted
	// Injected parameters are filled from a Dependency on every call.
	Injected
)

// Param declares one handler parameter, in the order of the function's
// inputs (a leading context.Context is not declared).
type Param struct {
	Name       string
	Kind       ParamKind
	Default    any
	OneOf      []reflect.Type
	Dependency *depends.Dependency
}

type planKind int

const (
	kindScalar planKind = iota
	kindOneOf
	kindSchema
	kindDependency
	kindDetails
)

func (k planKind) String() string {
	switch k {
	case kindScalar:
		return "scalar"
	case kindOneOf:
		return "one_of"
	case kindSchema:
		return "schema"
	case kindDependency:
		return "dependency"
	case kindDetails:
		return "details"
	}
	return "unknown"
}

// paramPlan is the fixed per-call treatment of one input.
type paramPlan struct {
	name       string
	kind       planKind
	typ        reflect.Type
	oneOf      []reflect.Type
	dep        *depends.Dependency
	required   bool
	defaultVal reflect.Value
}

// Plan is the result of analysing a handler once. It is never modified after
// Analyze returns and is shared by all calls.
type Plan struct {
	Name string

	// RequestSchema is set when one parameter is a schema; SchemaParam is
	// that parameter's name.
	RequestSchema *schema.Info
	SchemaParam   string

	// Positional lists required parameters, Keyword defaulted and injected
	// ones, both in declaration order.
	Positional []string
	Keyword    []string

	// DetailsInSignature reports whether the handler takes *core.CallDetails.
	DetailsInSignature bool

	fn        reflect.Value
	hasCtx    bool
	hasResult bool
	params    []paramPlan
	ordinary  []int // indexes of scalar/one-of params, positional binding order
	deps      []int // indexes of dependency params, acquisition order
	byName    map[string]int
}

// Analyze inspects fn against its declared parameters. Every problem is
// reported as a *core.ConfigError.
func Analyze(fn any, params []Param) (*Plan, error) {
	name := funcname.Of(fn)
	if fn == nil {
		return nil, core.Configf(name, core.ErrInvalidHandler, "handler cannot be nil")
	}

	fnVal := reflect.ValueOf(fn)
	if fnVal.Kind() != reflect.Func {
		return nil, core.Configf(name, core.ErrInvalidHandler, "handler must be a function, got %T", fn)
	}
	if fnVal.IsNil() {
		return nil, core.Configf(name, core.ErrInvalidHandler, "handler function cannot be nil")
	}
	fnType := fnVal.Type()
	if fnType.IsVariadic() {
		return nil, core.Configf(name, core.ErrInvalidHandler, "variadic handlers are not supported")
	}

	plan := &Plan{
		Name:   name,
		fn:     fnVal,
		byName: make(map[string]int),
	}

	// Validate return type - allow error or (T, error)
	switch fnType.NumOut() {
	case 1:
		if fnType.Out(0) != errorType {
			return nil, core.Configf(name, core.ErrInvalidHandler, "handler must return error")
		}
	case 2:
		if fnType.Out(1) != errorType {
			return nil, core.Configf(name, core.ErrInvalidHandler, "handler must return (T, error)")
		}
		plan.hasResult = true
	default:
		return nil, core.Configf(name, core.ErrInvalidHandler, "handler must return error or (T, error)")
	}

	first := 0
	if fnType.NumIn() > 0 && fnType.In(0) == contextType {
		plan.hasCtx = true
		first = 1
	}

	if n := fnType.NumIn() - first; n != len(params) {
		return nil, core.Configf(name, core.ErrUntypedParameter,
			"handler has %d parameters but %d were declared", n, len(params))
	}

	schemaCount, detailsCount := 0, 0
	for i, p := range params {
		typ := fnType.In(first + i)
		pp, err := planParam(name, p, typ)
		if err != nil {
			return nil, err
		}
		if _, dup := plan.byName[pp.name]; dup {
			return nil, core.Configf(name, core.ErrInvalidParameter, "parameter %q declared twice", pp.name)
		}

		switch pp.kind {
		case kindSchema:
			schemaCount++
			if schemaCount > 1 {
				return nil, core.Configf(name, core.ErrDuplicateSchema, "")
			}
			info, err := schema.Inspect(typ)
			if err != nil {
				return nil, core.Configf(name, core.ErrInvalidParameter, "%v", err)
			}
			plan.RequestSchema = info
			plan.SchemaParam = pp.name
		case kindDetails:
			detailsCount++
			if detailsCount > 1 {
				return nil, core.Configf(name, core.ErrDuplicateDetails, "")
			}
			plan.DetailsInSignature = true
		case kindDependency:
			plan.deps = append(plan.deps, i)
		default:
			plan.ordinary = append(plan.ordinary, i)
		}

		if p.Kind == Required && pp.kind != kindDetails {
			plan.Positional = append(plan.Positional, pp.name)
		} else {
			plan.Keyword = append(plan.Keyword, pp.name)
		}

		plan.byName[pp.name] = i
		plan.params = append(plan.params, pp)
	}

	return plan, nil
}

func planParam(fn string, p Param, typ reflect.Type) (paramPlan, error) {
	pp := paramPlan{name: p.Name, typ: typ}
	if p.Name == "" {
		return pp, core.Configf(fn, core.ErrInvalidParameter, "parameter of type %s has no name", typ)
	}

	switch {
	case p.Kind == Injected:
		if p.Dependency == nil {
			return pp, core.Configf(fn, core.ErrInvalidParameter, "parameter %q has a nil dependency", p.Name)
		}
		if !p.Dependency.ResourceType().AssignableTo(typ) {
			return pp, core.Configf(fn, core.ErrInvalidParameter,
				"dependency %s yields %s, not assignable to parameter %q of type %s",
				p.Dependency.Name(), p.Dependency.ResourceType(), p.Name, typ)
		}
		pp.kind = kindDependency
		pp.dep = p.Dependency
		return pp, nil

	case typ == detailsType:
		pp.kind = kindDetails
		return pp, nil

	case schema.IsSchemaType(typ):
		pp.kind = kindSchema
		return pp, nil

	case len(p.OneOf) > 0:
		for _, member := range p.OneOf {
			if member == nil || !member.AssignableTo(typ) {
				return pp, core.Configf(fn, core.ErrInvalidParameter,
					"member type %v of parameter %q is not assignable to %s", member, p.Name, typ)
			}
		}
		pp.kind = kindOneOf
		pp.oneOf = p.OneOf

	case typ.Kind() == reflect.Interface && typ.NumMethod() == 0:
		return pp, core.Configf(fn, core.ErrUntypedParameter, "parameter %q", p.Name)

	default:
		pp.kind = kindScalar
	}

	pp.required = p.Kind == Required
	if p.Kind == Defaulted {
		def, ok := pp.accept(p.Default)
		if !ok {
			return pp, core.Configf(fn, core.ErrInvalidParameter,
				"default %v of parameter %q does not match %s", p.Default, p.Name, pp.expected())
		}
		pp.defaultVal = def
	}
	return pp, nil
}

// accept coerces v to the parameter's declared type(s).
func (pp *paramPlan) accept(v any) (reflect.Value, bool) {
	if pp.kind == kindOneOf {
		for _, member := range pp.oneOf {
			if cv, ok := coerce(v, member); ok {
				return cv, true
			}
		}
		return reflect.Value{}, false
	}
	return coerce(v, pp.typ)
}

func (pp *paramPlan) expected() string {
	if pp.kind == kindOneOf {
		names := make([]string, len(pp.oneOf))
		for i, t := range pp.oneOf {
			names[i] = t.String()
		}
		return fmt.Sprintf("types=%v", names)
	}
	return "type=" + pp.typ.String()
}
