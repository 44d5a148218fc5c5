package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/reorgscan/internal/infra/rpc/provider"
	"github.com/vietddude/reorgscan/internal/infra/rpc/routing"
)

// ClientConfig configures NewClient.
type ClientConfig struct {
	// Endpoints is the configuration line, see ParseEndpoints
	Endpoints string
	Retry     routing.RetryConfig
	Timeout   time.Duration

	// RequestsPerSecond limits every endpoint individually; zero disables limiting
	RequestsPerSecond float64

	// StateVisibilityMethods overrides the methods whose null result triggers a switch
	StateVisibilityMethods []string

	Logger *slog.Logger
}

// Client is the high-level interface for making RPC calls.
// Reads go through the fallback ring; transaction broadcasts go to the
// submit endpoint when one is configured.
type Client struct {
	read   *routing.Fallback
	submit provider.RPCProvider
	log    *slog.Logger
}

// NewClient parses the endpoint line and builds HTTP providers for it.
func NewClient(cfg ClientConfig, opts ...routing.Option) (*Client, error) {
	endpoints, err := ParseEndpoints(cfg.Endpoints)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	providerOpts := []provider.Option{provider.WithRateLimit(cfg.RequestsPerSecond, 1)}

	read := make([]provider.RPCProvider, len(endpoints.Read))
	for i, u := range endpoints.Read {
		read[i] = provider.NewHTTPProvider("", u, timeout, providerOpts...)
	}

	var submit provider.RPCProvider
	if endpoints.Submit != "" {
		submit = provider.NewHTTPProvider("", endpoints.Submit, timeout, providerOpts...)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]routing.Option{
		routing.WithLogger(logger),
		routing.WithClassifier(routing.NewClassifier(cfg.StateVisibilityMethods)),
	}, opts...)

	return NewClientFromProviders(read, submit, cfg.Retry, logger, opts...)
}

// NewClientFromProviders builds a client over already constructed providers.
// submit may be nil.
func NewClientFromProviders(
	read []provider.RPCProvider,
	submit provider.RPCProvider,
	retry routing.RetryConfig,
	logger *slog.Logger,
	opts ...routing.Option,
) (*Client, error) {
	fb, err := routing.NewFallback(read, retry, opts...)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	names := make([]string, len(read))
	for i, p := range read {
		names[i] = p.GetName()
	}
	attrs := []any{"read_endpoints", names}
	if submit != nil {
		attrs = append(attrs, "submit_endpoint", submit.GetName())
	}
	logger.Info("RPC client configured", attrs...)

	return &Client{read: fb, submit: submit, log: logger}, nil
}

// Call makes an RPC call with automatic failover and retry.
func (c *Client) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	return c.read.MakeRequest(ctx, method, params)
}

// BatchCall makes a batch call through the fallback ring.
func (c *Client) BatchCall(ctx context.Context, requests []provider.BatchRequest) ([]provider.BatchResponse, error) {
	return c.read.MakeBatchRequest(ctx, requests)
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	raw, err := c.Call(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, err
	}
	return decodeQuantity(raw)
}

// ChainID returns the chain id reported by the active endpoint.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	raw, err := c.Call(ctx, "eth_chainId", nil)
	if err != nil {
		return 0, err
	}
	return decodeQuantity(raw)
}

// SendRawTransaction broadcasts a signed transaction and returns its hash.
// With a submit endpoint configured the call is made exactly once against it,
// otherwise it goes through the fallback ring like any read.
func (c *Client) SendRawTransaction(ctx context.Context, signedTx string) (string, error) {
	params := []any{signedTx}

	var (
		raw json.RawMessage
		err error
	)
	if c.submit != nil {
		raw, err = c.submit.Call(ctx, "eth_sendRawTransaction", params)
	} else {
		raw, err = c.read.MakeRequest(ctx, "eth_sendRawTransaction", params)
	}
	if err != nil {
		return "", err
	}

	var hash string
	if err := json.Unmarshal(raw, &hash); err != nil {
		return "", fmt.Errorf("decode transaction hash: %w", err)
	}
	return hash, nil
}

// HasSubmitEndpoint reports whether broadcasts bypass the read ring.
func (c *Client) HasSubmitEndpoint() bool {
	return c.submit != nil
}

// Fallback exposes the read ring.
func (c *Client) Fallback() *routing.Fallback {
	return c.read
}

// Stats returns counters for every read endpoint.
func (c *Client) Stats() []routing.EndpointStats {
	return c.read.Stats()
}

// Close releases all endpoints.
func (c *Client) Close() error {
	err := c.read.Close()
	if c.submit != nil {
		err = errors.Join(err, c.submit.Close())
	}
	return err
}

func decodeQuantity(raw json.RawMessage) (uint64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("decode quantity: %w", err)
	}
	return provider.ParseHexUint64(s)
}
