// Package depends provides call-scoped dependency injection.
//
// A Dependency wraps a provider function that yields one resource and the
// function releasing it. Handlers declare dependencies at registration time;
// every call acquires fresh resources through a Scope and the Scope releases
// them, in reverse order, when the call ends, whatever the outcome.
//
// This package includes:
//   - Depends/MustDepends: reflection-checked providers
//   - Provide: typed providers
//   - Scope: the per-call release stack
package depends
