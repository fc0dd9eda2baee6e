// Package context provides internal context helpers for procedure calls.
//
// This package is internal and should not be imported directly.
// It provides context value types for:
//   - Call context: the procedure URI and caller details during handler execution
//   - Call IDs: the transport-assigned identifier of the current call
package context
