// Package wire defines the JSON call envelope shared by the network sessions.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jdziat/simple-wamp-api/pkg/core"
	"github.com/jdziat/simple-wamp-api/pkg/security"
)

// Request is one call on the wire.
type Request struct {
	CallID  string            `json:"call_id,omitempty"`
	Args    []any             `json:"args,omitempty"`
	Kwargs  map[string]any    `json:"kwargs,omitempty"`
	Details *core.CallDetails `json:"details,omitempty"`
}

// Response carries either a result or an error.
type Response struct {
	CallID string `json:"call_id,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

// Error is an ApplicationError on the wire.
type Error struct {
	URI    string         `json:"uri"`
	Args   []any          `json:"args,omitempty"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
}

// DecodeRequest parses a request body. An empty body is an empty call.
func DecodeRequest(data []byte) (*Request, error) {
	req := &Request{}
	if len(data) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("wire: decode request: %w", err)
	}
	return req, nil
}

// DecodeResponse parses a response body.
func DecodeResponse(data []byte) (*Response, error) {
	resp := &Response{}
	if err := json.Unmarshal(data, resp); err != nil {
		return nil, fmt.Errorf("wire: decode response: %w", err)
	}
	return resp, nil
}

// Encode marshals a request or response.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	return data, nil
}

// Reply builds the response for a handler outcome. ApplicationErrors keep
// their URI and payload; any other error becomes a runtime_error carrying
// only its sanitized message.
func Reply(callID string, result any, err error) *Response {
	if err == nil {
		return &Response{CallID: callID, Result: result}
	}
	return &Response{CallID: callID, Error: ErrorFrom(err)}
}

// ErrorFrom converts err into its wire form.
func ErrorFrom(err error) *Error {
	var appErr *core.ApplicationError
	if errors.As(err, &appErr) {
		return &Error{URI: appErr.URI, Args: appErr.Args, Kwargs: appErr.Kwargs}
	}
	return &Error{
		URI:  core.CodeRuntimeError,
		Args: []any{security.SanitizeErrorMessage(err.Error())},
	}
}

// Err converts the wire error back into an ApplicationError.
func (e *Error) Err() *core.ApplicationError {
	return &core.ApplicationError{URI: e.URI, Args: e.Args, Kwargs: e.Kwargs}
}

// Outcome splits a decoded response into the caller's result and error.
func (r *Response) Outcome() (any, error) {
	if r.Error != nil {
		return nil, r.Error.Err()
	}
	return r.Result, nil
}
