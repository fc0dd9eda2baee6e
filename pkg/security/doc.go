// Package security provides validation, authorization, and limits for the wampapi package.
//
// This package includes:
//   - Input validation for procedure URIs, prefixes and role lists
//   - Role based authorization of a call against its CallDetails
//   - Error message sanitization before messages leave the process
//   - Clamping functions to enforce safe limits on concurrency
//
// Most users should import the root package github.com/jdziat/simple-wamp-api
// which re-exports these functions.
package security
