package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/jdziat/simple-wamp-api/pkg/core"
	"github.com/jdziat/simple-wamp-api/pkg/internal/numconv"
)

// Serialize converts a handler result through the response schema into plain
// mappings. A slice or array yields []any with one map per element, anything
// else a single map[string]any. A nil info returns data unchanged. Failures
// are reported as an unknown_payload ApplicationError.
func Serialize(data any, info *Info) (any, error) {
	if info == nil {
		return data, nil
	}
	out, err := info.serialize(data)
	if err != nil {
		return nil, core.NewApplicationError(core.CodeUnknownPayload, err.Error())
	}
	return out, nil
}

func (i *Info) serialize(data any) (any, error) {
	rv := reflect.ValueOf(data)
	for rv.IsValid() && rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Slice {
		rv = rv.Elem()
	}
	if rv.IsValid() && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		items := make([]any, 0, rv.Len())
		for n := 0; n < rv.Len(); n++ {
			m, err := i.ToMap(rv.Index(n).Interface())
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", n, err)
			}
			items = append(items, m)
		}
		return items, nil
	}
	return i.ToMap(data)
}

// ToMap fills a fresh schema value from item's same-named fields (or keys,
// for maps) and renders it as a plain mapping.
func (i *Info) ToMap(item any) (map[string]any, error) {
	src := reflect.ValueOf(item)
	for src.IsValid() && (src.Kind() == reflect.Pointer || src.Kind() == reflect.Interface) {
		if src.IsNil() {
			return nil, fmt.Errorf("cannot build %s from nil", i.Name())
		}
		src = src.Elem()
	}
	if !src.IsValid() {
		return nil, fmt.Errorf("cannot build %s from nil", i.Name())
	}

	out := reflect.New(i.Type).Elem()
	switch src.Kind() {
	case reflect.Struct:
		if err := i.fromStruct(out, src); err != nil {
			return nil, err
		}
	case reflect.Map:
		if src.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("cannot build %s from %s", i.Name(), src.Type())
		}
		if err := i.fromMap(out, src); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("cannot build %s from %s", i.Name(), src.Type())
	}

	data, err := json.Marshal(out.Interface())
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	// omitempty drops zero values; every declared field is still reported.
	for _, f := range i.fields {
		if _, ok := m[f.Name]; ok {
			continue
		}
		v, err := plainValue(out.FieldByIndex(f.Index))
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", i.Name(), f.Name, err)
		}
		m[f.Name] = v
	}
	return m, nil
}

func plainValue(v reflect.Value) (any, error) {
	data, err := json.Marshal(v.Interface())
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (i *Info) fromStruct(out, src reflect.Value) error {
	srcFields := walkFields(src.Type())
	for _, f := range i.fields {
		sf, ok := sourceField(srcFields, f)
		if !ok {
			if f.Required {
				return fmt.Errorf("%s.%s: field required", i.Name(), f.Name)
			}
			continue
		}
		if err := assign(out.FieldByIndex(f.Index), src.FieldByIndex(sf.Index)); err != nil {
			return fmt.Errorf("%s.%s: %w", i.Name(), f.Name, err)
		}
	}
	return nil
}

func (i *Info) fromMap(out, src reflect.Value) error {
	for _, f := range i.fields {
		v := src.MapIndex(reflect.ValueOf(f.Name).Convert(src.Type().Key()))
		if !v.IsValid() {
			if f.Required {
				return fmt.Errorf("%s.%s: field required", i.Name(), f.Name)
			}
			continue
		}
		if v.Kind() == reflect.Interface {
			if v.IsNil() {
				continue
			}
			v = v.Elem()
		}
		if err := assign(out.FieldByIndex(f.Index), v); err != nil {
			return fmt.Errorf("%s.%s: %w", i.Name(), f.Name, err)
		}
	}
	return nil
}

// assign copies v into dst, converting numbers and same-kind values and
// falling back to a JSON round trip.
func assign(dst, v reflect.Value) error {
	switch {
	case v.Type().AssignableTo(dst.Type()):
		dst.Set(v)
		return nil
	case numconv.IsNumeric(v.Kind()) && numconv.IsNumeric(dst.Kind()):
		out, ok := numconv.Convert(v, dst.Type())
		if !ok {
			return fmt.Errorf("%v does not fit in %s", v, dst.Type())
		}
		dst.Set(out)
		return nil
	case v.Kind() == dst.Kind() && v.Type().ConvertibleTo(dst.Type()):
		dst.Set(v.Convert(dst.Type()))
		return nil
	}
	if !v.CanInterface() {
		return errors.New("unexported source value")
	}
	data, err := json.Marshal(v.Interface())
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst.Addr().Interface()); err != nil {
		return fmt.Errorf("cannot convert %s to %s", v.Type(), dst.Type())
	}
	return nil
}
