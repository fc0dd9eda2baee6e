package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/swaggest/jsonschema-go"
)

// Model marks a struct as a structured schema. Embed it:
//
//	type UserCreate struct {
//	    schema.Model
//	    Email    string `json:"email" required:"true"`
//	    Password string `json:"password" required:"true"`
//	}
type Model struct{}

func (Model) isSchemaModel() {}

// Schema is implemented by every struct embedding Model.
type Schema interface {
	isSchemaModel()
}

// Validator may be implemented by a schema to check cross-field rules after
// construction.
type Validator interface {
	Validate() error
}

var schemaType = reflect.TypeOf((*Schema)(nil)).Elem()

// IsSchemaType reports whether t is a schema struct or a pointer to one.
func IsSchemaType(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && t.Implements(schemaType)
}

// Info is the introspected shape of a schema type. It is built once and is
// safe for concurrent use.
type Info struct {
	// Type is the schema struct type; Pointer reports whether values are
	// handed out as *Type.
	Type    reflect.Type
	Pointer bool

	fields     []field
	byName     map[string]int
	jsonSchema jsonschema.Schema
}

var infoCache sync.Map // reflect.Type -> *Info

// Inspect builds the Info for t, which may be a schema struct or a pointer
// to one.
func Inspect(t reflect.Type) (*Info, error) {
	if !IsSchemaType(t) {
		return nil, fmt.Errorf("schema: %v does not embed schema.Model", t)
	}
	if cached, ok := infoCache.Load(t); ok {
		return cached.(*Info), nil
	}

	info := &Info{Type: t, byName: make(map[string]int)}
	if t.Kind() == reflect.Pointer {
		info.Type = t.Elem()
		info.Pointer = true
	}

	var reflector jsonschema.Reflector
	js, err := reflector.Reflect(reflect.New(info.Type).Elem().Interface(), jsonschema.InlineRefs)
	if err != nil {
		return nil, fmt.Errorf("schema: reflect %v: %w", info.Type, err)
	}
	info.jsonSchema = js

	info.fields = walkFields(info.Type)
	for i, f := range info.fields {
		info.byName[f.Name] = i
	}

	actual, _ := infoCache.LoadOrStore(t, info)
	return actual.(*Info), nil
}

// Of returns the Info for schema type T.
func Of[T Schema]() (*Info, error) {
	return Inspect(reflect.TypeOf((*T)(nil)).Elem())
}

// Name returns the schema's type name.
func (i *Info) Name() string {
	return i.Type.Name()
}

// Fields returns the declared field names in declaration order.
func (i *Info) Fields() []string {
	names := make([]string, len(i.fields))
	for n, f := range i.fields {
		names[n] = f.Name
	}
	return names
}

// HasField reports whether name is a declared field.
func (i *Info) HasField(name string) bool {
	_, ok := i.byName[name]
	return ok
}

// Required returns the names of required fields, sorted.
func (i *Info) Required() []string {
	var req []string
	for _, f := range i.fields {
		if f.Required {
			req = append(req, f.Name)
		}
	}
	sort.Strings(req)
	return req
}

// JSONSchema returns the JSON Schema document describing the type.
func (i *Info) JSONSchema() jsonschema.Schema {
	return i.jsonSchema
}

// FieldError is one field-level problem found while constructing a schema.
type FieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// ValidationError lists every field-level problem of one construction.
type ValidationError struct {
	Model  string
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d validation error(s) for %s", len(e.Errors), e.Model)
	for _, fe := range e.Errors {
		fmt.Fprintf(&b, "\n%s\n  %s (type=%s)", strings.Join(fe.Loc, "."), fe.Msg, fe.Type)
	}
	return b.String()
}

// JSON renders the problem list as a JSON array.
func (e *ValidationError) JSON() string {
	data, err := json.Marshal(e.Errors)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// Construct builds a schema value from a mapping. Missing required fields,
// values that do not decode into their field and unknown keys are all
// reported together in a *ValidationError. The returned value is a pointer
// when the Info was inspected from a pointer type.
func (i *Info) Construct(data map[string]any) (reflect.Value, error) {
	out := reflect.New(i.Type)
	elem := out.Elem()
	var errs []FieldError

	for _, f := range i.fields {
		raw, ok := data[f.Name]
		if !ok {
			if f.Required {
				errs = append(errs, FieldError{Loc: []string{f.Name}, Msg: "field required", Type: "value_error.missing"})
			}
			continue
		}
		if err := decodeInto(elem.FieldByIndex(f.Index), raw); err != nil {
			errs = append(errs, FieldError{
				Loc:  []string{f.Name},
				Msg:  fmt.Sprintf("value is not a valid %s", f.Type),
				Type: "type_error." + f.Type.Kind().String(),
			})
		}
	}

	var extra []string
	for k := range data {
		if !i.HasField(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		errs = append(errs, FieldError{Loc: []string{k}, Msg: "extra fields not permitted", Type: "value_error.extra"})
	}

	if len(errs) == 0 {
		if v, ok := out.Interface().(Validator); ok {
			if err := v.Validate(); err != nil {
				errs = append(errs, FieldError{Loc: []string{"__root__"}, Msg: err.Error(), Type: "value_error"})
			}
		}
	}

	if len(errs) > 0 {
		return reflect.Value{}, &ValidationError{Model: i.Name(), Errors: errs}
	}
	if i.Pointer {
		return out, nil
	}
	return elem, nil
}

// decodeInto stores raw into dst, directly when the types line up and
// through a JSON round trip otherwise.
func decodeInto(dst reflect.Value, raw any) error {
	if raw == nil {
		switch dst.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		return errors.New("none is not an allowed value")
	}
	rv := reflect.ValueOf(raw)
	if rv.Type().AssignableTo(dst.Type()) {
		dst.Set(rv)
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst.Addr().Interface())
}
