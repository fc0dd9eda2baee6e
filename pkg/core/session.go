package core

import (
	"context"
	"sort"
)

// Match policies understood by sessions.
const (
	MatchExact    = "exact"
	MatchPrefix   = "prefix"
	MatchWildcard = "wildcard"
)

// Invocation policies understood by sessions.
const (
	InvokeSingle     = "single"
	InvokeRoundRobin = "roundrobin"
	InvokeRandom     = "random"
	InvokeFirst      = "first"
	InvokeLast       = "last"
)

// RegisterOptions are handed to Session.Register unchanged.
type RegisterOptions struct {
	Match  string
	Invoke string
	// Concurrency caps in-flight invocations for this registration. Zero
	// means the session default.
	Concurrency int
}

// Session is the transport-side router the core registers procedures with.
type Session interface {
	Register(ctx context.Context, handler Handler, uri string, opts *RegisterOptions) (*Registration, error)
}

// Registration is the result of a successful Session.Register.
type Registration struct {
	ID        string
	Procedure string
	Options   RegisterOptions

	unregister func(context.Context) error
}

// NewRegistration creates a Registration. unregister may be nil.
func NewRegistration(id, procedure string, opts RegisterOptions, unregister func(context.Context) error) *Registration {
	return &Registration{
		ID:         id,
		Procedure:  procedure,
		Options:    opts,
		unregister: unregister,
	}
}

// Unregister removes the procedure from its session.
func (r *Registration) Unregister(ctx context.Context) error {
	if r.unregister == nil {
		return nil
	}
	return r.unregister(ctx)
}

// Route is the routing record attached to a registered procedure.
type Route struct {
	uri            string
	responseFields map[string]struct{}
}

// NewRoute creates an immutable Route.
func NewRoute(uri string, responseFields []string) Route {
	r := Route{uri: uri}
	if responseFields != nil {
		r.responseFields = make(map[string]struct{}, len(responseFields))
		for _, f := range responseFields {
			r.responseFields[f] = struct{}{}
		}
	}
	return r
}

// URI returns the recorded procedure URI.
func (r Route) URI() string {
	return r.uri
}

// PrefixedURI returns prefix+URI, or the URI verbatim for an empty prefix.
func (r Route) PrefixedURI(prefix string) string {
	if prefix == "" {
		return r.uri
	}
	return prefix + r.uri
}

// ResponseFields returns the response schema field names, sorted. It is nil
// when the procedure has no response schema.
func (r Route) ResponseFields() []string {
	if r.responseFields == nil {
		return nil
	}
	fields := make([]string, 0, len(r.responseFields))
	for f := range r.responseFields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// HasResponseField reports whether name is a response schema field.
func (r Route) HasResponseField(name string) bool {
	_, ok := r.responseFields[name]
	return ok
}
