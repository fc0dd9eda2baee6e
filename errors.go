package wampapi

import "github.com/jdziat/simple-wamp-api/pkg/core"

// Error URIs surfaced to callers.
const (
	DefaultErrorNamespace = core.DefaultErrorNamespace
	SystemErrorNamespace  = core.SystemErrorNamespace

	CodeAlreadyExists   = core.CodeAlreadyExists
	CodeNotFound        = core.CodeNotFound
	CodeNotAuthorized   = core.CodeNotAuthorized
	CodeUnauthorized    = core.CodeUnauthorized
	CodeInvalidParams   = core.CodeInvalidParams
	CodeUnknownPayload  = core.CodeUnknownPayload
	CodeInvalidArgument = core.CodeInvalidArgument
	CodeRuntimeError    = core.CodeRuntimeError
	CodeNoSuchProcedure = core.CodeNoSuchProcedure
)

// Error variables
var (
	ErrInvalidHandler        = core.ErrInvalidHandler
	ErrUntypedParameter      = core.ErrUntypedParameter
	ErrDuplicateSchema       = core.ErrDuplicateSchema
	ErrDuplicateDetails      = core.ErrDuplicateDetails
	ErrInvalidParameter      = core.ErrInvalidParameter
	ErrInvalidURI            = core.ErrInvalidURI
	ErrURITooLong            = core.ErrURITooLong
	ErrInvalidResponseSchema = core.ErrInvalidResponseSchema
	ErrInvalidRoles          = core.ErrInvalidRoles
	ErrInvalidProvider       = core.ErrInvalidProvider
	ErrProcedureExists       = core.ErrProcedureExists
	ErrNoSuchProcedure       = core.ErrNoSuchProcedure
	ErrNoSuchRegistration    = core.ErrNoSuchRegistration
	ErrSessionClosed         = core.ErrSessionClosed
)

// NewApplicationError creates an ApplicationError with positional detail.
func NewApplicationError(uri string, args ...any) *ApplicationError {
	return core.NewApplicationError(uri, args...)
}

// IsApplicationError reports whether err carries an ApplicationError with uri.
func IsApplicationError(err error, uri string) bool {
	return core.IsApplicationError(err, uri)
}
