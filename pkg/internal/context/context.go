package context

import (
	"context"

	"github.com/jdziat/simple-wamp-api/pkg/core"
)

// CallContextKey is the key for storing call context in context.Context.
type CallContextKey struct{}

// CallContext holds what the wrapper knows about the current call.
type CallContext struct {
	// URI is the handler's route URI (without any bulk prefix).
	URI     string
	Details *core.CallDetails
}

// GetCallContext retrieves the call context from a context.Context.
func GetCallContext(ctx context.Context) *CallContext {
	if cc, ok := ctx.Value(CallContextKey{}).(*CallContext); ok {
		return cc
	}
	return nil
}

// WithCallContext adds call context to a context.Context.
func WithCallContext(ctx context.Context, cc *CallContext) context.Context {
	return context.WithValue(ctx, CallContextKey{}, cc)
}

// CallIDKey is the key for storing the transport call ID in context.Context.
type CallIDKey struct{}

// GetCallID retrieves the call ID, or "" when the transport did not set one.
func GetCallID(ctx context.Context) string {
	id, _ := ctx.Value(CallIDKey{}).(string)
	return id
}

// WithCallID adds the transport call ID to a context.Context.
func WithCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CallIDKey{}, id)
}
