package core

import (
	"errors"
	"fmt"
	"strings"
)

// Registration errors. They are always wrapped in a *ConfigError.
var (
	ErrInvalidHandler        = errors.New("wampapi: invalid handler")
	ErrUntypedParameter      = errors.New("wampapi: all parameters must have type hints")
	ErrDuplicateSchema       = errors.New("wampapi: must only provide a single schema in function arguments")
	ErrDuplicateDetails      = errors.New("wampapi: must only provide CallDetails once in function arguments")
	ErrInvalidParameter      = errors.New("wampapi: invalid parameter declaration")
	ErrInvalidURI            = errors.New("wampapi: uri should be empty or a valid procedure uri")
	ErrURITooLong            = errors.New("wampapi: uri too long")
	ErrInvalidResponseSchema = errors.New("wampapi: response schema must be a schema model")
	ErrInvalidRoles          = errors.New("wampapi: allowed roles should be nil or a list of non-empty strings")
	ErrInvalidProvider       = errors.New("wampapi: dependency provider must yield a resource and a release func")
)

// Session errors.
var (
	ErrProcedureExists    = errors.New("wampapi: procedure already exists")
	ErrNoSuchProcedure    = errors.New("wampapi: no such procedure")
	ErrNoSuchRegistration = errors.New("wampapi: no such registration")
	ErrSessionClosed      = errors.New("wampapi: session closed")
)

// ConfigError reports a programmer mistake detected while a handler is
// registered or a dependency is declared.
type ConfigError struct {
	Func string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Func == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("func=%s: %v", e.Func, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Configf builds a *ConfigError wrapping sentinel with extra detail.
func Configf(fn string, sentinel error, format string, args ...any) *ConfigError {
	if format == "" {
		return &ConfigError{Func: fn, Err: sentinel}
	}
	return &ConfigError{Func: fn, Err: fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)}
}

// Error URI namespaces.
const (
	DefaultErrorNamespace = "wampapi.error"
	SystemErrorNamespace  = "wampapi.system.error"
)

// Error URIs surfaced to callers.
const (
	CodeAlreadyExists   = DefaultErrorNamespace + ".already_exists"
	CodeNotFound        = DefaultErrorNamespace + ".not_found"
	CodeNotAuthorized   = DefaultErrorNamespace + ".not_authorized"
	CodeUnauthorized    = DefaultErrorNamespace + ".unauthorized"
	CodeInvalidParams   = DefaultErrorNamespace + ".invalid_params"
	CodeUnknownPayload  = DefaultErrorNamespace + ".unknown_payload"
	CodeInvalidArgument = SystemErrorNamespace + ".invalid_argument"
	CodeRuntimeError    = SystemErrorNamespace + ".runtime_error"
	CodeNoSuchProcedure = SystemErrorNamespace + ".no_such_procedure"
)

// ApplicationError is a call-time failure returned to the caller. URI is the
// namespaced error code, Args and Kwargs carry the detail payload.
type ApplicationError struct {
	URI    string
	Args   []any
	Kwargs map[string]any
}

// NewApplicationError creates an ApplicationError with positional detail.
func NewApplicationError(uri string, args ...any) *ApplicationError {
	return &ApplicationError{URI: uri, Args: args}
}

func (e *ApplicationError) Error() string {
	if len(e.Args) == 0 {
		return fmt.Sprintf("ApplicationError(%s)", e.URI)
	}
	parts := make([]string, 0, len(e.Args))
	for _, a := range e.Args {
		parts = append(parts, fmt.Sprint(a))
	}
	return fmt.Sprintf("ApplicationError(%s: %s)", e.URI, strings.Join(parts, "; "))
}

// Code returns the last component of the error URI, e.g. "not_found".
func (e *ApplicationError) Code() string {
	if i := strings.LastIndexByte(e.URI, '.'); i >= 0 {
		return e.URI[i+1:]
	}
	return e.URI
}

// Is reports whether target is an *ApplicationError with the same URI.
func (e *ApplicationError) Is(target error) bool {
	t, ok := target.(*ApplicationError)
	return ok && t.URI == e.URI
}

// IsApplicationError reports whether err carries an ApplicationError with uri.
func IsApplicationError(err error, uri string) bool {
	var appErr *ApplicationError
	return errors.As(err, &appErr) && appErr.URI == uri
}
