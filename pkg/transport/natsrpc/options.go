package natsrpc

import (
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jdziat/simple-wamp-api/pkg/core"
	"github.com/jdziat/simple-wamp-api/pkg/security"
)

// Defaults.
var (
	DefaultSubjectPrefix  = "wampapi"
	DefaultGroup          = "def"
	DefaultMaxConcurrency = 100
	DefaultTimeout        = 5 * time.Second
)

// Detail headers written by Client and read by DetailsFromHeaders.
const (
	HeaderCaller         = "Wamp-Caller"
	HeaderCallerAuthID   = "Wamp-Caller-Authid"
	HeaderCallerAuthRole = "Wamp-Caller-Authrole"
)

// DetailsFunc derives the caller details of one request message. It may
// return nil when the caller is unknown.
type DetailsFunc func(msg *nats.Msg) *core.CallDetails

// SessionConfig holds Session configuration.
type SessionConfig struct {
	SubjectPrefix  string
	Group          string
	MaxConcurrency int
	Logger         *slog.Logger

	// Details derives caller details. When nil, and TrustBodyDetails is
	// unset, procedures see no caller details at all.
	Details DetailsFunc
	// TrustBodyDetails passes the details carried in the request body on
	// as they are. Any client can claim any role, so only set it when every
	// publisher on the subjects is trusted.
	TrustBodyDetails bool
}

// ClientConfig holds Client configuration.
type ClientConfig struct {
	SubjectPrefix string
	Timeout       time.Duration
}

// SessionOption configures a Session.
type SessionOption interface {
	ApplySession(*SessionConfig)
}

// ClientOption configures a Client.
type ClientOption interface {
	ApplyClient(*ClientConfig)
}

type sessionOptionFunc func(*SessionConfig)

func (f sessionOptionFunc) ApplySession(c *SessionConfig) { f(c) }

type clientOptionFunc func(*ClientConfig)

func (f clientOptionFunc) ApplyClient(c *ClientConfig) { f(c) }

// SubjectPrefixOption sets the subject prefix of a Session or a Client.
type SubjectPrefixOption string

// ApplySession implements SessionOption.
func (p SubjectPrefixOption) ApplySession(c *SessionConfig) { c.SubjectPrefix = string(p) }

// ApplyClient implements ClientOption.
func (p SubjectPrefixOption) ApplyClient(c *ClientConfig) { c.SubjectPrefix = string(p) }

// SubjectPrefix sets the prefix prepended to every procedure subject.
// Sessions and clients must agree on it.
func SubjectPrefix(prefix string) SubjectPrefixOption {
	return SubjectPrefixOption(prefix)
}

// Group sets the NATS queue group. Sessions in the same group share calls.
func Group(group string) SessionOption {
	return sessionOptionFunc(func(c *SessionConfig) {
		c.Group = group
	})
}

// MaxConcurrency caps in-flight handler goroutines.
// Values are clamped to [1, security.MaxConcurrency].
func MaxConcurrency(n int) SessionOption {
	return sessionOptionFunc(func(c *SessionConfig) {
		c.MaxConcurrency = security.ClampConcurrency(n)
	})
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) SessionOption {
	return sessionOptionFunc(func(c *SessionConfig) {
		if l != nil {
			c.Logger = l
		}
	})
}

// WithDetails sets how the session derives caller details, e.g.
// DetailsFromHeaders or a function of the authenticated connection.
func WithDetails(fn DetailsFunc) SessionOption {
	return sessionOptionFunc(func(c *SessionConfig) {
		c.Details = fn
	})
}

// TrustBodyDetails makes the session use the caller details sent in the
// request body. It overrides WithDetails.
func TrustBodyDetails() SessionOption {
	return sessionOptionFunc(func(c *SessionConfig) {
		c.TrustBodyDetails = true
	})
}

// DetailsFromHeaders builds caller details from the Wamp-Caller* message
// headers. It returns nil when none is set. Headers are set by the
// publisher, so use it only where publishers are authenticated and
// restricted by the NATS server's permissions.
func DetailsFromHeaders(msg *nats.Msg) *core.CallDetails {
	if msg == nil || msg.Header == nil {
		return nil
	}
	d := &core.CallDetails{
		Caller:         msg.Header.Get(HeaderCaller),
		CallerAuthID:   msg.Header.Get(HeaderCallerAuthID),
		CallerAuthRole: msg.Header.Get(HeaderCallerAuthRole),
	}
	if d.Caller == "" && d.CallerAuthID == "" && d.CallerAuthRole == "" {
		return nil
	}
	return d
}

// Timeout sets the client's per-call timeout, used when the call context
// has no deadline.
func Timeout(d time.Duration) ClientOption {
	return clientOptionFunc(func(c *ClientConfig) {
		c.Timeout = d
	})
}
