// Package httprpc exposes procedures over HTTP with a go-chi router.
//
// Routes:
//
//	POST /call/{uri}   body: {"args": [...], "kwargs": {...}}
//	GET  /procedures   registered URIs
//
// Caller details are taken from request headers (see DetailsFromHeaders),
// never from the body.
package httprpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jdziat/simple-wamp-api/pkg/core"
	intctx "github.com/jdziat/simple-wamp-api/pkg/internal/context"
	"github.com/jdziat/simple-wamp-api/pkg/internal/wire"
	"github.com/jdziat/simple-wamp-api/pkg/router"
)

// Detail headers read by DetailsFromHeaders.
const (
	HeaderCaller         = "X-Wamp-Caller"
	HeaderCallerAuthID   = "X-Wamp-Caller-Authid"
	HeaderCallerAuthRole = "X-Wamp-Caller-Authrole"
)

// MaxBodySize caps request bodies.
const MaxBodySize = 1 << 20

// DetailsFunc extracts caller details from a request. It may return nil.
type DetailsFunc func(r *http.Request) *core.CallDetails

// Session is a core.Session served over HTTP. It is an http.Handler.
type Session struct {
	router  *router.Router
	mux     *chi.Mux
	details DetailsFunc
	logger  *slog.Logger
}

var (
	_ core.Session = (*Session)(nil)
	_ http.Handler = (*Session)(nil)
)

// Option configures a Session.
type Option interface {
	ApplyHTTP(*Session)
}

type httpOptionFunc func(*Session)

func (f httpOptionFunc) ApplyHTTP(s *Session) { f(s) }

// WithDetails replaces the caller details extractor.
func WithDetails(fn DetailsFunc) Option {
	return httpOptionFunc(func(s *Session) {
		if fn != nil {
			s.details = fn
		}
	})
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return httpOptionFunc(func(s *Session) {
		if l != nil {
			s.logger = l
		}
	})
}

// New creates a Session with its routes mounted.
func New(opts ...Option) *Session {
	s := &Session{
		details: DetailsFromHeaders,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt.ApplyHTTP(s)
	}
	s.router = router.New(router.WithLogger(s.logger))

	m := chi.NewMux()
	m.Use(middleware.RequestID)
	m.Use(middleware.Recoverer)
	m.Post("/call/{uri}", s.handleCall)
	m.Get("/procedures", s.handleProcedures)
	m.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, wire.Reply("", nil,
			core.NewApplicationError(core.CodeNoSuchProcedure, r.URL.Path)))
	})
	s.mux = m
	return s
}

// Register implements core.Session.
func (s *Session) Register(ctx context.Context, handler core.Handler, uri string, opts *core.RegisterOptions) (*core.Registration, error) {
	return s.router.Register(ctx, handler, uri, opts)
}

// Close drops every registration.
func (s *Session) Close() error {
	return s.router.Close()
}

// ServeHTTP implements http.Handler.
func (s *Session) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// DetailsFromHeaders builds caller details from the X-Wamp-Caller* headers.
// It returns nil when none is set.
func DetailsFromHeaders(r *http.Request) *core.CallDetails {
	d := &core.CallDetails{
		Caller:         r.Header.Get(HeaderCaller),
		CallerAuthID:   r.Header.Get(HeaderCallerAuthID),
		CallerAuthRole: r.Header.Get(HeaderCallerAuthRole),
	}
	if d.Caller == "" && d.CallerAuthID == "" && d.CallerAuthRole == "" {
		return nil
	}
	return d
}

func (s *Session) handleCall(w http.ResponseWriter, r *http.Request) {
	uri := chi.URLParam(r, "uri")
	callID := middleware.GetReqID(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodySize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, wire.Reply(callID, nil, core.NewApplicationError(core.CodeInvalidArgument, err.Error())))
		return
	}
	req, err := wire.DecodeRequest(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, wire.Reply(callID, nil, core.NewApplicationError(core.CodeInvalidArgument, err.Error())))
		return
	}

	ctx := r.Context()
	if callID != "" {
		ctx = intctx.WithCallID(ctx, callID)
	}
	result, err := s.router.Call(ctx, uri, req.Args, req.Kwargs, s.details(r))
	if err != nil {
		var appErr *core.ApplicationError
		if !errors.As(err, &appErr) {
			s.logger.ErrorContext(ctx, "procedure failed", "uri", uri, "call_id", callID, "error", err)
		}
	}
	writeJSON(w, statusFor(err), wire.Reply(callID, result, err))
}

func (s *Session) handleProcedures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"procedures": s.router.Procedures()})
}

// statusFor maps a call outcome to an HTTP status.
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var appErr *core.ApplicationError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.URI {
	case core.CodeNoSuchProcedure, core.CodeNotFound:
		return http.StatusNotFound
	case core.CodeUnauthorized, core.CodeNotAuthorized:
		return http.StatusForbidden
	case core.CodeAlreadyExists:
		return http.StatusConflict
	case core.CodeRuntimeError, core.CodeUnknownPayload:
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(wire.Reply("", nil, core.NewApplicationError(core.CodeUnknownPayload, err.Error())))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
