package register

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/jdziat/simple-wamp-api/pkg/core"
	"github.com/jdziat/simple-wamp-api/pkg/security"
)

// BulkOptions holds configuration for RegisterBulk.
type BulkOptions struct {
	Prefix          string
	RegisterOptions *core.RegisterOptions
	Logger          *slog.Logger
}

// NewBulkOptions creates BulkOptions with defaults.
func NewBulkOptions() *BulkOptions {
	return &BulkOptions{Logger: slog.Default()}
}

// BulkOption modifies BulkOptions.
type BulkOption interface {
	ApplyBulk(*BulkOptions)
}

type bulkOptionFunc func(*BulkOptions)

func (f bulkOptionFunc) ApplyBulk(o *BulkOptions) { f(o) }

// Prefix is prepended verbatim to every route URI.
func Prefix(prefix string) BulkOption {
	return bulkOptionFunc(func(o *BulkOptions) {
		o.Prefix = prefix
	})
}

// WithRegisterOptions passes opts to every Session.Register call.
func WithRegisterOptions(opts *core.RegisterOptions) BulkOption {
	return bulkOptionFunc(func(o *BulkOptions) {
		o.RegisterOptions = opts
	})
}

// LoggerOption sets the logger of both Register and RegisterBulk.
type LoggerOption struct {
	logger *slog.Logger
}

// Apply implements Option.
func (l LoggerOption) Apply(o *Options) {
	if l.logger != nil {
		o.Logger = l.logger
	}
}

// ApplyBulk implements BulkOption.
func (l LoggerOption) ApplyBulk(o *BulkOptions) {
	if l.logger != nil {
		o.Logger = l.logger
	}
}

// WithLogger sets the logger. It works with Register and RegisterBulk.
func WithLogger(l *slog.Logger) LoggerOption {
	return LoggerOption{logger: l}
}

var procedureType = reflect.TypeOf((*Procedure)(nil))

// RegisterBulk creates a collection with newCollection and registers every
// procedure it exposes. Exported methods of shape func() *Procedure or
// func() (*Procedure, error) are visited in name order; other methods are
// skipped. A method that fails, panics or whose procedure the session
// rejects is logged and skipped. The successful registrations are returned.
func RegisterBulk[C any](ctx context.Context, session core.Session, newCollection func() C, opts ...BulkOption) []*core.Registration {
	o := NewBulkOptions()
	for _, opt := range opts {
		opt.ApplyBulk(o)
	}
	log := o.Logger

	if err := security.ValidatePrefix(o.Prefix); err != nil {
		log.Error("invalid procedure prefix", "prefix", o.Prefix, "error", err)
		return nil
	}

	collection := reflect.ValueOf(newCollection())
	if !collection.IsValid() {
		log.Error("collection constructor returned nil")
		return nil
	}
	collType := collection.Type()

	var regs []*core.Registration
	for i := 0; i < collType.NumMethod(); i++ {
		method := collType.Method(i)
		if !isProcedureMethod(method.Type) {
			continue
		}

		proc, err := callProcedureMethod(collection.Method(i))
		if err != nil {
			log.Error("failed to build procedure", "method", method.Name, "error", err)
			continue
		}

		uri := proc.Route.PrefixedURI(o.Prefix)
		reg, err := session.Register(ctx, proc.Handler, uri, o.RegisterOptions)
		if err != nil {
			log.Error("failed to register procedure", "uri", uri, "error", err)
			continue
		}

		log.Info("registered procedure", "uri", reg.Procedure, "registration_id", reg.ID)
		regs = append(regs, reg)
	}
	return regs
}

// isProcedureMethod checks the method type including its receiver.
func isProcedureMethod(t reflect.Type) bool {
	if t.NumIn() != 1 {
		return false
	}
	switch t.NumOut() {
	case 1:
		return t.Out(0) == procedureType
	case 2:
		return t.Out(0) == procedureType && t.Out(1) == reflect.TypeOf((*error)(nil)).Elem()
	}
	return false
}

func callProcedureMethod(m reflect.Value) (proc *Procedure, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	out := m.Call(nil)
	if len(out) == 2 && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	proc, _ = out[0].Interface().(*Procedure)
	if proc == nil {
		return nil, fmt.Errorf("method returned a nil procedure")
	}
	return proc, nil
}
