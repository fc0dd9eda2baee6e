// Package register turns plain Go functions into remotely callable procedures.
//
// Register analyses a handler once and returns a Procedure whose Handler
// runs, on every call and in this order: role authorization, request schema
// construction, argument validation, dependency acquisition, the handler
// itself and response serialization. Dependencies are released when the call
// ends, whatever the outcome.
//
//	create := register.MustRegister(accounts.Create,
//	    register.Arg("user"),
//	    register.Inject("db", storage.Session(db)),
//	    register.Details("details"),
//	    register.ResponseSchema(schemas.UserGet{}),
//	)
//
// RegisterBulk registers every procedure exposed by a collection type with
// a core.Session.
package register
