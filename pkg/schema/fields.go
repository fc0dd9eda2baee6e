package schema

import (
	"reflect"
	"sort"
	"strings"
)

// field is one JSON-visible struct field, promoted fields of embedded
// structs included.
type field struct {
	GoName   string
	Name     string
	Index    []int
	Type     reflect.Type
	Required bool

	tagged bool
}

// walkFields lists the JSON-visible fields of struct type t following the
// encoding/json rules: embedded structs are walked breadth first, the
// shallowest field of a name wins, a tagged field beats an untagged one at
// the same depth and any other tie hides the name. Embedded pointers are
// not followed. Fields come back in index order.
func walkFields(t reflect.Type) []field {
	type embedded struct {
		typ   reflect.Type
		index []int
	}

	var all []field
	next := []embedded{{typ: t}}
	visited := make(map[reflect.Type]bool)
	for len(next) > 0 {
		current := next
		next = nil
		for _, e := range current {
			if visited[e.typ] {
				continue
			}
			visited[e.typ] = true

			for i := 0; i < e.typ.NumField(); i++ {
				sf := e.typ.Field(i)
				tag := sf.Tag.Get("json")
				if tag == "-" {
					continue
				}
				name, _, _ := strings.Cut(tag, ",")
				index := append(append([]int(nil), e.index...), i)

				if sf.Anonymous && name == "" && sf.Type.Kind() == reflect.Struct {
					next = append(next, embedded{typ: sf.Type, index: index})
					continue
				}
				if !sf.IsExported() {
					continue
				}
				tagged := name != ""
				if !tagged {
					name = sf.Name
				}
				all = append(all, field{
					GoName:   sf.Name,
					Name:     name,
					Index:    index,
					Type:     sf.Type,
					Required: sf.Tag.Get("required") == "true",
					tagged:   tagged,
				})
			}
		}
	}

	byName := make(map[string][]field)
	var names []string
	for _, f := range all {
		if _, ok := byName[f.Name]; !ok {
			names = append(names, f.Name)
		}
		byName[f.Name] = append(byName[f.Name], f)
	}

	fields := make([]field, 0, len(names))
	for _, name := range names {
		if f, ok := dominantField(byName[name]); ok {
			fields = append(fields, f)
		}
	}
	sort.Slice(fields, func(i, j int) bool {
		return lessIndex(fields[i].Index, fields[j].Index)
	})
	return fields
}

// dominantField picks the field that encoding/json would use among fields
// sharing one name. Fields are in breadth-first order, so the first is
// among the shallowest.
func dominantField(fields []field) (field, bool) {
	depth := len(fields[0].Index)
	var shallow []field
	for _, f := range fields {
		if len(f.Index) == depth {
			shallow = append(shallow, f)
		}
	}
	if len(shallow) == 1 {
		return shallow[0], true
	}
	var tagged []field
	for _, f := range shallow {
		if f.tagged {
			tagged = append(tagged, f)
		}
	}
	if len(tagged) == 1 {
		return tagged[0], true
	}
	return field{}, false
}

func lessIndex(a, b []int) bool {
	for k := 0; k < len(a) && k < len(b); k++ {
		if a[k] != b[k] {
			return a[k] < b[k]
		}
	}
	return len(a) < len(b)
}

// sourceField finds the field of a source struct that feeds a schema field:
// same Go name first, then same JSON name.
func sourceField(fields []field, f field) (field, bool) {
	for _, sf := range fields {
		if sf.GoName == f.GoName {
			return sf, true
		}
	}
	for _, sf := range fields {
		if sf.Name == f.Name {
			return sf, true
		}
	}
	return field{}, false
}
