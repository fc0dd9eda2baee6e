// Package callctx provides public access to call context for handlers.
package callctx

import (
	"context"

	"github.com/jdziat/simple-wamp-api/pkg/core"
	intctx "github.com/jdziat/simple-wamp-api/pkg/internal/context"
)

// DetailsFromContext returns the caller details of the current call, or nil
// if not in a procedure handler or the caller disclosed nothing.
// Use this when a handler needs the caller without declaring a details parameter.
func DetailsFromContext(ctx context.Context) *core.CallDetails {
	cc := intctx.GetCallContext(ctx)
	if cc == nil {
		return nil
	}
	return cc.Details
}

// URIFromContext returns the route URI of the current handler, or empty string if not in a procedure handler.
func URIFromContext(ctx context.Context) string {
	cc := intctx.GetCallContext(ctx)
	if cc == nil {
		return ""
	}
	return cc.URI
}

// CallIDFromContext returns the transport-assigned call ID, or empty string
// when the session does not assign one.
func CallIDFromContext(ctx context.Context) string {
	return intctx.GetCallID(ctx)
}

// RolesFromContext returns the caller's roles split on delimiter.
// Returns nil if not in a procedure handler.
func RolesFromContext(ctx context.Context, delimiter string) []string {
	return DetailsFromContext(ctx).Roles(delimiter)
}
