// Package provider implements RPC provider interfaces.
//
// This package contains:
//   - RPCProvider interface: core abstraction for a JSON-RPC endpoint
//   - HTTPProvider: JSON-RPC 2.0 over HTTP implementation
//   - ProviderMonitor: latency and throttle tracking
//   - Typed errors (HTTPStatusError, RPCError) used by the retry classifier
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// RPCProvider is one physical JSON-RPC endpoint.
// Implementations make exactly one network call per Call/BatchCall and never retry.
type RPCProvider interface {
	// GetName returns a log-safe identifier for the endpoint
	GetName() string

	// Call makes a single RPC request and returns the raw result
	Call(ctx context.Context, method string, params []any) (json.RawMessage, error)

	// BatchCall makes multiple RPC calls in one request
	BatchCall(ctx context.Context, requests []BatchRequest) ([]BatchResponse, error)

	// Close cleans up resources
	Close() error
}

// BatchRequest represents a single request in a batch call.
type BatchRequest struct {
	Method string
	Params []any
}

// BatchResponse represents a single response from a batch call.
type BatchResponse struct {
	Result json.RawMessage
	Error  error
}

// IsNullResult reports whether a raw result is absent or JSON null.
func IsNullResult(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ParseHexUint64 parses a 0x-prefixed quantity.
func ParseHexUint64(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, fmt.Errorf("empty hex quantity")
	}
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hex quantity %q: %w", s, err)
	}
	return n, nil
}

// FormatHexUint64 renders a quantity the way JSON-RPC expects block numbers.
func FormatHexUint64(n uint64) string {
	return "0x" + strconv.FormatUint(n, 16)
}

// Redact strips credentials from an endpoint URL so it can be logged.
// API keys usually live in the userinfo, path or query, so only scheme and host are kept.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<invalid-url>"
	}
	return u.Scheme + "://" + u.Host
}
