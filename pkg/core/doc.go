// Package core provides the fundamental types and interfaces for the wampapi package.
//
// This package contains:
//   - CallDetails, Invocation and Handler: the call contract with a transport
//   - Session interface, RegisterOptions and Registration
//   - Route: the routing record carried by every registered procedure
//   - ConfigError and ApplicationError, plus the error code URIs
//
// Most users should import the root package github.com/jdziat/simple-wamp-api
// instead of this package directly.
package core
