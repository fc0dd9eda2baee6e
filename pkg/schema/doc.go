// Package schema provides structured request and response schemas.
//
// A schema is a struct embedding Model. Its JSON-visible fields are its
// declared fields; a `required:"true"` tag marks a field as mandatory.
//
// This package includes:
//   - Inspect/Of: one-time introspection of a schema type (field names,
//     required set, JSON Schema document)
//   - Info.Construct: building a schema from a mapping with field-level
//     ValidationErrors
//   - Serialize: rendering handler results through a response schema
package schema
