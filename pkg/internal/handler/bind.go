package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/jdziat/simple-wamp-api/pkg/core"
	"github.com/jdziat/simple-wamp-api/pkg/depends"
	"github.com/jdziat/simple-wamp-api/pkg/internal/numconv"
)

// Args holds the values bound for one call, one slot per declared parameter.
type Args struct {
	plan *Plan
	in   []reflect.Value
}

// Split routes call kwargs. Keys naming a field of the request schema are
// returned in schemaKw, everything else in rest.
func (p *Plan) Split(kwargs map[string]any) (schemaKw, rest map[string]any) {
	rest = make(map[string]any, len(kwargs))
	if p.RequestSchema != nil {
		schemaKw = make(map[string]any)
	}
	for k, v := range kwargs {
		if p.RequestSchema != nil && p.RequestSchema.HasField(k) {
			schemaKw[k] = v
			continue
		}
		rest[k] = v
	}
	return schemaKw, rest
}

// Bind checks positional args and the remaining kwargs against the plan.
// Every problem is collected; if any is found the result is an
// invalid_params ApplicationError listing them all. Schema, details and
// dependency slots are left for the caller to fill.
func (p *Plan) Bind(args []any, kwargs map[string]any) (*Args, error) {
	a := &Args{plan: p, in: make([]reflect.Value, len(p.params))}
	var problems []any
	seen := make([]bool, len(p.params))

	if len(args) > len(p.ordinary) {
		problems = append(problems, fmt.Sprintf("takes %d positional arguments but %d were given",
			len(p.ordinary), len(args)))
	}
	for n, v := range args {
		if n >= len(p.ordinary) {
			break
		}
		i := p.ordinary[n]
		seen[i] = true
		problems = a.set(i, v, problems)
	}

	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		i, ok := p.byName[k]
		if !ok {
			problems = append(problems, fmt.Sprintf("'%s' unexpected keyword argument", k))
			continue
		}
		switch p.params[i].kind {
		case kindScalar, kindOneOf:
		default:
			problems = append(problems, fmt.Sprintf("'%s' cannot be supplied by the caller", k))
			continue
		}
		if seen[i] {
			problems = append(problems, fmt.Sprintf("'%s' got multiple values", k))
			continue
		}
		seen[i] = true
		problems = a.set(i, kwargs[k], problems)
	}

	for _, i := range p.ordinary {
		if seen[i] {
			continue
		}
		pp := &p.params[i]
		if pp.required {
			problems = append(problems, fmt.Sprintf("'%s' missing required argument", pp.name))
			continue
		}
		a.in[i] = pp.defaultVal
	}

	if len(problems) > 0 {
		return nil, core.NewApplicationError(core.CodeInvalidParams, problems...)
	}
	return a, nil
}

func (a *Args) set(i int, v any, problems []any) []any {
	pp := &a.plan.params[i]
	cv, ok := pp.accept(v)
	if !ok {
		return append(problems, fmt.Sprintf("'%s' expected %s got=%s", pp.name, pp.expected(), typeName(v)))
	}
	a.in[i] = cv
	return problems
}

// SetSchema stores the constructed request schema.
func (a *Args) SetSchema(v reflect.Value) {
	for i := range a.plan.params {
		if a.plan.params[i].kind == kindSchema {
			a.in[i] = v
			return
		}
	}
}

// SetDetails stores the caller details. A nil d is passed as a nil pointer.
func (a *Args) SetDetails(d *core.CallDetails) {
	for i := range a.plan.params {
		if a.plan.params[i].kind == kindDetails {
			a.in[i] = reflect.ValueOf(d)
			return
		}
	}
}

// Acquire resolves every dependency through scope in declaration order.
// It stops at the first failure; resources acquired so far stay in scope.
func (a *Args) Acquire(ctx context.Context, scope *depends.Scope) error {
	for _, i := range a.plan.deps {
		v, err := scope.Acquire(ctx, a.plan.params[i].dep)
		if err != nil {
			return err
		}
		a.in[i] = v
	}
	return nil
}

// Invoke calls the handler. The result is nil for handlers that only
// return an error.
func (p *Plan) Invoke(ctx context.Context, a *Args) (any, error) {
	in := make([]reflect.Value, 0, len(a.in)+1)
	if p.hasCtx {
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}
	for i, v := range a.in {
		if !v.IsValid() {
			v = reflect.Zero(p.params[i].typ)
		}
		in = append(in, v)
	}

	out := p.fn.Call(in)

	errVal := out[len(out)-1]
	var err error
	if !errVal.IsNil() {
		err = errVal.Interface().(error)
	}
	if !p.hasResult {
		return nil, err
	}
	return out[0].Interface(), err
}

// coerce converts v to t. It accepts assignable values, lossless numeric
// conversions, same-kind conversions and, for composite kinds, values that
// survive a JSON round trip into t.
func coerce(v any, t reflect.Type) (reflect.Value, bool) {
	if v == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
			return reflect.Zero(t), true
		}
		return reflect.Value{}, false
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(rv)
		return out, true
	}

	if numconv.IsNumeric(rv.Kind()) && numconv.IsNumeric(t.Kind()) {
		return numconv.Convert(rv, t)
	}

	if rv.Kind() == t.Kind() && rv.Type().ConvertibleTo(t) {
		return rv.Convert(t), true
	}

	switch t.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct, reflect.Pointer:
		switch rv.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map:
		default:
			return reflect.Value{}, false
		}
		data, err := json.Marshal(v)
		if err != nil {
			return reflect.Value{}, false
		}
		out := reflect.New(t)
		if err := json.Unmarshal(data, out.Interface()); err != nil {
			return reflect.Value{}, false
		}
		return out.Elem(), true
	}

	return reflect.Value{}, false
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}
