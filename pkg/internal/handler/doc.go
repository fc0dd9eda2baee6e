// Package handler analyses handler functions and binds call arguments to them.
//
// This package is internal and should not be imported directly.
// It provides:
//   - Analyze: builds an immutable Plan from a function and its declared parameters
//   - Plan.Split, Plan.Bind: route call arguments and validate them against the plan
//   - Plan.Invoke: call the function with bound arguments
package handler
