package provider

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrTooManyRedirects is returned when an endpoint keeps redirecting.
	ErrTooManyRedirects = errors.New("stopped after too many redirects")

	// ErrMalformedResponse is returned when a response body is not valid JSON-RPC.
	ErrMalformedResponse = errors.New("malformed rpc response")
)

// HTTPStatusError is returned for any non-200 HTTP response.
type HTTPStatusError struct {
	Endpoint   string
	StatusCode int
	RetryAfter string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("%s: http %d: %s", e.Endpoint, e.StatusCode, body)
}

// RPCError represents a JSON-RPC error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}
