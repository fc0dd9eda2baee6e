// Package funcname derives readable names from Go function values.
package funcname

import (
	"reflect"
	"runtime"
	"strings"
	"unicode"
)

// Of returns the short name of fn: the function or method name without
// package path, receiver or closure suffixes. It returns "" for values that
// are not funcs.
func Of(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return ""
	}
	return short(rf.Name())
}

// short turns "github.com/x/y.(*Accounts).create-fm" into "create".
func short(full string) string {
	name := full
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, "-fm")
	parts := strings.Split(name, ".")
	// Drop anonymous closure components such as "func1" or "1".
	for len(parts) > 1 {
		last := parts[len(parts)-1]
		if strings.HasPrefix(last, "func") || isDigits(last) {
			parts = parts[:len(parts)-1]
			continue
		}
		break
	}
	return parts[len(parts)-1]
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// SnakeCase converts a Go identifier to snake_case: "ListUsers" becomes
// "list_users" and "GetByID" becomes "get_by_id".
func SnakeCase(name string) string {
	runes := []rune(name)
	var b strings.Builder
	b.Grow(len(name) + 4)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
