package register

import (
	"github.com/swaggest/jsonschema-go"
)

// Description is the discovery record of a procedure.
type Description struct {
	URI          string             `json:"uri"`
	Positional   []string           `json:"positional,omitempty"`
	Keyword      []string           `json:"keyword,omitempty"`
	AllowedRoles []string           `json:"allowed_roles,omitempty"`
	Request      *jsonschema.Schema `json:"request,omitempty"`
	Response     *jsonschema.Schema `json:"response,omitempty"`
}

// Describe reports the procedure's URI, parameters, roles and the JSON
// schemas of its request and response schema types. Injected and details
// parameters are listed under Keyword but callers cannot supply them.
func (p *Procedure) Describe() Description {
	d := Description{
		URI:          p.URI(),
		Positional:   append([]string(nil), p.plan.Positional...),
		Keyword:      append([]string(nil), p.plan.Keyword...),
		AllowedRoles: p.AllowedRoles(),
	}
	if p.plan.RequestSchema != nil {
		s := p.plan.RequestSchema.JSONSchema()
		d.Request = &s
	}
	if p.response != nil {
		s := p.response.JSONSchema()
		d.Response = &s
	}
	return d
}
