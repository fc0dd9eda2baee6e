package depends

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/jdziat/simple-wamp-api/pkg/core"
	"github.com/jdziat/simple-wamp-api/pkg/internal/funcname"
)

// Release tears down one resource. It receives the outcome of the call the
// resource was acquired for (nil on success).
type Release func(err error) error

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	closerType  = reflect.TypeOf((*io.Closer)(nil)).Elem()
	releaseType = reflect.TypeOf(Release(nil))
	plainType   = reflect.TypeOf(func() {})
)

// Dependency wraps a provider function producing one scoped resource per
// call. It is created once, when a handler is registered, and may be shared
// by any number of concurrent calls.
type Dependency struct {
	name     string
	fn       reflect.Value
	hasCtx   bool
	resource reflect.Type
	closer   bool
}

// Depends wraps fn as a Dependency. Accepted shapes, with or without the
// leading context.Context:
//
//	func(ctx context.Context) (T, func(), error)
//	func(ctx context.Context) (T, func(error) error, error)
//	func(ctx context.Context) (T, error) // T implements io.Closer
//
// Any other value is rejected with a *core.ConfigError.
func Depends(fn any) (*Dependency, error) {
	name := funcname.Of(fn)
	if fn == nil {
		return nil, core.Configf(name, core.ErrInvalidProvider, "provider cannot be nil")
	}

	fnVal := reflect.ValueOf(fn)
	if fnVal.Kind() != reflect.Func {
		return nil, core.Configf(name, core.ErrInvalidProvider, "provider must be a function, got %T", fn)
	}
	if fnVal.IsNil() {
		return nil, core.Configf(name, core.ErrInvalidProvider, "provider cannot be nil")
	}

	fnType := fnVal.Type()
	d := &Dependency{name: name, fn: fnVal}

	switch fnType.NumIn() {
	case 0:
	case 1:
		if fnType.In(0) != contextType {
			return nil, core.Configf(name, core.ErrInvalidProvider, "only argument must be context.Context")
		}
		d.hasCtx = true
	default:
		return nil, core.Configf(name, core.ErrInvalidProvider, "provider must take no arguments or a context.Context")
	}

	switch fnType.NumOut() {
	case 2:
		if fnType.Out(1) != errorType {
			return nil, core.Configf(name, core.ErrInvalidProvider, "provider must return (T, error)")
		}
		if !fnType.Out(0).Implements(closerType) {
			return nil, core.Configf(name, core.ErrInvalidProvider, "%s does not implement io.Closer", fnType.Out(0))
		}
		d.closer = true
	case 3:
		if fnType.Out(2) != errorType {
			return nil, core.Configf(name, core.ErrInvalidProvider, "provider must return (T, release, error)")
		}
		rel := fnType.Out(1)
		if !rel.ConvertibleTo(releaseType) && !rel.ConvertibleTo(plainType) {
			return nil, core.Configf(name, core.ErrInvalidProvider, "release must be func() or func(error) error, got %s", rel)
		}
	default:
		return nil, core.Configf(name, core.ErrInvalidProvider, "")
	}

	d.resource = fnType.Out(0)
	return d, nil
}

// MustDepends is like Depends but panics on an invalid provider.
func MustDepends(fn any) *Dependency {
	d, err := Depends(fn)
	if err != nil {
		panic(err)
	}
	return d
}

// Provide wraps a typed provider. It cannot fail.
func Provide[T any](fn func(ctx context.Context) (T, Release, error)) *Dependency {
	return &Dependency{
		name:     funcname.Of(fn),
		fn:       reflect.ValueOf(fn),
		hasCtx:   true,
		resource: reflect.TypeOf((*T)(nil)).Elem(),
	}
}

// Name returns the provider's function name.
func (d *Dependency) Name() string {
	return d.name
}

// ResourceType returns the type of resource the provider yields.
func (d *Dependency) ResourceType() reflect.Type {
	return d.resource
}

// Acquire invokes the provider once. The returned Release is nil when the
// provider has nothing to tear down.
func (d *Dependency) Acquire(ctx context.Context) (reflect.Value, Release, error) {
	var in []reflect.Value
	if d.hasCtx {
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}
	out := d.fn.Call(in)

	errVal := out[len(out)-1]
	if !errVal.IsNil() {
		return reflect.Value{}, nil, fmt.Errorf("dependency %s: %w", d.name, errVal.Interface().(error))
	}

	resource := out[0]
	if d.closer {
		if isNil(resource) {
			return resource, nil, nil
		}
		closer := resource.Interface().(io.Closer)
		return resource, func(error) error { return closer.Close() }, nil
	}

	rel := out[1]
	if rel.IsNil() {
		return resource, nil, nil
	}
	if rel.Type().ConvertibleTo(releaseType) {
		return resource, rel.Convert(releaseType).Interface().(Release), nil
	}
	plain := rel.Convert(plainType).Interface().(func())
	return resource, func(error) error {
		plain()
		return nil
	}, nil
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// Scope tracks the resources acquired for one call and releases them in
// reverse acquisition order. A Scope belongs to a single call and is not
// safe for concurrent use.
type Scope struct {
	releases []scopedRelease
	closed   bool
}

type scopedRelease struct {
	name    string
	release Release
}

// NewScope creates an empty Scope.
func NewScope() *Scope {
	return &Scope{}
}

// Acquire invokes d and remembers its release.
func (s *Scope) Acquire(ctx context.Context, d *Dependency) (reflect.Value, error) {
	if s.closed {
		return reflect.Value{}, errors.New("depends: scope already closed")
	}
	v, rel, err := d.Acquire(ctx)
	if err != nil {
		return reflect.Value{}, err
	}
	if rel != nil {
		s.releases = append(s.releases, scopedRelease{name: d.name, release: rel})
	}
	return v, nil
}

// Len returns the number of pending releases.
func (s *Scope) Len() int {
	return len(s.releases)
}

// Close runs every pending release, last acquired first, even when earlier
// releases fail or panic. callErr is handed to each release. The release
// errors are joined and returned. Close is idempotent.
func (s *Scope) Close(callErr error) error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for i := len(s.releases) - 1; i >= 0; i-- {
		if err := runRelease(s.releases[i], callErr); err != nil {
			errs = append(errs, err)
		}
	}
	s.releases = nil
	return errors.Join(errs...)
}

func runRelease(r scopedRelease, callErr error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("release %s: panic: %v", r.name, p)
		}
	}()
	if err := r.release(callErr); err != nil {
		return fmt.Errorf("release %s: %w", r.name, err)
	}
	return nil
}
