// Package numconv converts between Go numeric kinds without losing value.
package numconv

import (
	"math"
	"reflect"
)

// Convert converts rv to t when both are numeric and the value survives
// unchanged: no truncated fraction, no overflow and no sign flip.
func Convert(rv reflect.Value, t reflect.Type) (reflect.Value, bool) {
	if !IsNumeric(rv.Kind()) || !IsNumeric(t.Kind()) {
		return reflect.Value{}, false
	}
	switch {
	case IsSigned(rv.Kind()) && IsUnsigned(t.Kind()):
		if rv.Int() < 0 {
			return reflect.Value{}, false
		}
	case IsUnsigned(rv.Kind()) && IsSigned(t.Kind()):
		if rv.Uint() > math.MaxInt64 {
			return reflect.Value{}, false
		}
	case IsFloat(rv.Kind()) && !IsFloat(t.Kind()):
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return reflect.Value{}, false
		}
		if IsUnsigned(t.Kind()) && (f < 0 || f >= 1<<64) {
			return reflect.Value{}, false
		}
		if IsSigned(t.Kind()) && (f < math.MinInt64 || f >= 1<<63) {
			return reflect.Value{}, false
		}
	}

	out := rv.Convert(t)
	// Narrowing flips the sign when the value does not fit.
	if IsSigned(t.Kind()) && IsUnsigned(rv.Kind()) && out.Int() < 0 {
		return reflect.Value{}, false
	}
	if !out.Convert(rv.Type()).Equal(rv) {
		return reflect.Value{}, false
	}
	return out, true
}

// IsSigned reports whether k is a signed integer kind.
func IsSigned(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

// IsUnsigned reports whether k is an unsigned integer kind.
func IsUnsigned(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

// IsFloat reports whether k is a floating point kind.
func IsFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

// IsNumeric reports whether k is an integer or floating point kind.
func IsNumeric(k reflect.Kind) bool {
	return IsSigned(k) || IsUnsigned(k) || IsFloat(k)
}
