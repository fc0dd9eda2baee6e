package core

import (
	"context"
	"strings"
)

// DefaultRoleDelimiter separates roles in CallDetails.CallerAuthRole.
const DefaultRoleDelimiter = ","

// CallDetails describes the calling principal of a single invocation.
type CallDetails struct {
	Procedure      string `json:"procedure,omitempty"`
	Caller         string `json:"caller,omitempty"`
	CallerAuthID   string `json:"caller_authid,omitempty"`
	CallerAuthRole string `json:"caller_authrole,omitempty"`
}

// Roles splits CallerAuthRole by delimiter, dropping empty entries.
func (d *CallDetails) Roles(delimiter string) []string {
	if d == nil || d.CallerAuthRole == "" {
		return nil
	}
	if delimiter == "" {
		delimiter = DefaultRoleDelimiter
	}
	parts := strings.Split(d.CallerAuthRole, delimiter)
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			roles = append(roles, p)
		}
	}
	return roles
}

// Invocation is a call as delivered by a Session.
type Invocation struct {
	Args    []any          `json:"args,omitempty"`
	Kwargs  map[string]any `json:"kwargs,omitempty"`
	Details *CallDetails   `json:"details,omitempty"`
}

// Handler is a transport-ready procedure.
type Handler func(ctx context.Context, inv *Invocation) (any, error)
