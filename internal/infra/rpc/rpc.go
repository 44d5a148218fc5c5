// Package rpc provides a resilient JSON-RPC client for EVM chains.
//
// This package offers:
//   - A one-line endpoint configuration (space or newline separated URLs)
//   - A fallback ring of read endpoints with retry, backoff and round-robin switching
//   - Detection of lagging nodes (null blocks, empty historical eth_call results)
//   - An optional dedicated transaction submit endpoint, marked with the mev+ prefix
//
// # Quick Start
//
//	import "github.com/vietddude/reorgscan/internal/infra/rpc"
//
//	client, err := rpc.NewClient(rpc.ClientConfig{
//	    Endpoints: "https://eth.llamarpc.com https://rpc.ankr.com/eth mev+https://rpc.flashbots.net",
//	    Retry:     rpc.DefaultRetryConfig,
//	    Timeout:   30 * time.Second,
//	})
//
//	// Make calls
//	head, err := client.BlockNumber(ctx)
//	result, err := client.Call(ctx, "eth_getBlockByNumber", []any{"0x10", false})
//
// # Package Structure
//
//   - provider/ - Provider implementations (HTTPProvider, monitoring, typed errors)
//   - routing/  - Error classification, retry policy, fallback ring
//
// Most types are re-exported at the root level for convenience.
package rpc

import (
	"time"

	"github.com/vietddude/reorgscan/internal/infra/rpc/provider"
	"github.com/vietddude/reorgscan/internal/infra/rpc/routing"
)

// =============================================================================
// Re-exported types from provider package
// =============================================================================

// RPCProvider is the interface for providers that support JSON-RPC calls.
type RPCProvider = provider.RPCProvider

// HTTPProvider implements RPCProvider for JSON-RPC over HTTP.
type HTTPProvider = provider.HTTPProvider

// BatchRequest represents a single request in a batch call.
type BatchRequest = provider.BatchRequest

// BatchResponse represents a single response from a batch call.
type BatchResponse = provider.BatchResponse

// MonitorStats holds monitoring statistics for a provider.
type MonitorStats = provider.MonitorStats

// HTTPStatusError is returned for non-200 responses.
type HTTPStatusError = provider.HTTPStatusError

// RPCError represents a JSON-RPC error object.
type RPCError = provider.RPCError

// NewHTTPProvider creates a new HTTP-based RPC provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration, opts ...provider.Option) *HTTPProvider {
	return provider.NewHTTPProvider(name, endpoint, timeout, opts...)
}

// =============================================================================
// Re-exported types from routing package
// =============================================================================

// Fallback is the ring of read endpoints.
type Fallback = routing.Fallback

// RetryConfig defines retry behavior.
type RetryConfig = routing.RetryConfig

// EndpointStats is a copy of the counters of one endpoint.
type EndpointStats = routing.EndpointStats

// DefaultRetryConfig provides sensible retry defaults.
var DefaultRetryConfig = routing.DefaultRetryConfig

// ErrStateNotYetVisible means an endpoint has not seen the requested block yet.
var ErrStateNotYetVisible = routing.ErrStateNotYetVisible
