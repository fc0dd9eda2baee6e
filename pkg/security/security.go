// Package security provides validation, authorization, and limits for the wampapi package.
package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/simple-wamp-api/pkg/core"
)

// Security limits and configuration
const (
	// MaxURILength is the maximum length for procedure URIs
	MaxURILength = 255

	// MaxConcurrency is the hard limit for concurrent invocations per session
	MaxConcurrency = 1000

	// MaxErrorMessageLength is the maximum length for error messages sent to callers
	MaxErrorMessageLength = 4096
)

// validURI matches loose WAMP URIs: dot separated components without
// whitespace, dots or '#'.
var validURI = regexp.MustCompile(`^([^\s\.#]+\.)*([^\s\.#]+)$`)

// ValidateURI validates a procedure URI
func ValidateURI(uri string) error {
	if uri == "" {
		return core.ErrInvalidURI
	}
	if len(uri) > MaxURILength {
		return core.ErrURITooLong
	}
	if !validURI.MatchString(uri) {
		return core.ErrInvalidURI
	}
	return nil
}

// ValidatePrefix validates a URI prefix used for bulk registration. An empty
// prefix is valid.
func ValidatePrefix(prefix string) error {
	if prefix == "" {
		return nil
	}
	if strings.ContainsAny(prefix, " \t\r\n#") {
		return core.ErrInvalidURI
	}
	return nil
}

// ValidateRoles validates an allowed-role list. A nil list means unrestricted.
func ValidateRoles(roles []string) error {
	if roles == nil {
		return nil
	}
	if len(roles) == 0 {
		return core.ErrInvalidRoles
	}
	for _, r := range roles {
		if strings.TrimSpace(r) == "" {
			return core.ErrInvalidRoles
		}
	}
	return nil
}

// Authorize checks the caller's roles against allowedRoles. A nil
// allowedRoles list lets every caller through.
func Authorize(allowedRoles []string, delimiter string, details *core.CallDetails) error {
	if allowedRoles == nil {
		return nil
	}

	if details == nil {
		return core.NewApplicationError(
			core.CodeUnauthorized,
			fmt.Sprintf("call details not disclosed. hence can't check role. expected one of %v", allowedRoles),
		)
	}
	if details.CallerAuthRole == "" {
		return core.NewApplicationError(
			core.CodeUnauthorized,
			fmt.Sprintf("call details does not contain caller_authrole. expected one of %v", allowedRoles),
		)
	}

	roles := details.Roles(delimiter)
	for _, allowed := range allowedRoles {
		for _, role := range roles {
			if role == allowed {
				return nil
			}
		}
	}

	return core.NewApplicationError(
		core.CodeUnauthorized,
		fmt.Sprintf("authrole=%v, expected one of %v", roles, allowedRoles),
	)
}

// SanitizeErrorMessage truncates and sanitizes error messages sent to callers
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := sanitized.String()

	// Truncate if too long
	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampConcurrency ensures concurrency is within limits
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}
