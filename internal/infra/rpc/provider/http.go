package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const maxRedirects = 10

// HTTPProvider implements RPCProvider for JSON-RPC 2.0 over HTTP.
type HTTPProvider struct {
	name       string
	endpoint   string
	redacted   string
	httpClient *http.Client
	limiter    *rate.Limiter
	nextID     atomic.Uint64

	Monitor *ProviderMonitor
}

// Option configures an HTTPProvider.
type Option func(*HTTPProvider)

// WithRateLimit caps outgoing requests per second. Zero disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(p *HTTPProvider) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithHTTPClient replaces the underlying HTTP client. The redirect policy is still enforced.
func WithHTTPClient(c *http.Client) Option {
	return func(p *HTTPProvider) {
		p.httpClient = c
	}
}

// NewHTTPProvider creates a new HTTP-based RPC provider.
// An empty name defaults to the redacted endpoint.
func NewHTTPProvider(name, endpoint string, timeout time.Duration, opts ...Option) *HTTPProvider {
	p := &HTTPProvider{
		name:     name,
		endpoint: endpoint,
		redacted: Redact(endpoint),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		Monitor: NewProviderMonitor(),
	}
	if p.name == "" {
		p.name = p.redacted
	}
	for _, opt := range opts {
		opt(p)
	}
	p.httpClient.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return ErrTooManyRedirects
		}
		return nil
	}
	return p
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

type rpcResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// Call makes a single JSON-RPC call.
func (p *HTTPProvider) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	req := rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: p.nextID.Add(1)}

	body, err := p.post(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp rpcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// BatchCall makes multiple RPC calls in one request.
// Responses are matched back to requests by id, so servers may answer out of order.
func (p *HTTPProvider) BatchCall(ctx context.Context, requests []BatchRequest) ([]BatchResponse, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	n := uint64(len(requests))
	base := p.nextID.Add(n) - n + 1

	batch := make([]rpcRequest, len(requests))
	for i, r := range requests {
		params := r.Params
		if params == nil {
			params = []any{}
		}
		batch[i] = rpcRequest{JSONRPC: "2.0", Method: r.Method, Params: params, ID: base + uint64(i)}
	}

	body, err := p.post(ctx, batch)
	if err != nil {
		return nil, err
	}

	var raw []rpcResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		// Some endpoints answer an unsupported batch with a single error object
		var single rpcResponse
		if json.Unmarshal(body, &single) == nil && single.Error != nil {
			return nil, single.Error
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	byID := make(map[uint64]rpcResponse, len(raw))
	for _, r := range raw {
		var id uint64
		if err := json.Unmarshal(r.ID, &id); err != nil {
			continue
		}
		byID[id] = r
	}

	responses := make([]BatchResponse, len(requests))
	for i := range requests {
		id := base + uint64(i)
		r, ok := byID[id]
		switch {
		case !ok:
			responses[i] = BatchResponse{Error: fmt.Errorf("%w: missing response for id %d", ErrMalformedResponse, id)}
		case r.Error != nil:
			responses[i] = BatchResponse{Error: r.Error}
		default:
			responses[i] = BatchResponse{Result: r.Result}
		}
	}
	return responses, nil
}

func (p *HTTPProvider) post(ctx context.Context, payload any) ([]byte, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.Monitor.RecordFailure()
		// url.Error embeds the full URL, which may carry an API key
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = p.redacted
		}
		return nil, fmt.Errorf("rpc call to %s: %w", p.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.Monitor.RecordFailure()
		return nil, fmt.Errorf("read response from %s: %w", p.name, err)
	}

	if resp.StatusCode != http.StatusOK {
		p.Monitor.RecordFailure()
		retryAfter := resp.Header.Get("Retry-After")
		if resp.StatusCode == http.StatusTooManyRequests {
			p.Monitor.RecordThrottle(retryAfter)
		}
		return nil, &HTTPStatusError{
			Endpoint:   p.name,
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter,
			Body:       string(body),
		}
	}

	p.Monitor.RecordRequest(time.Since(start))
	return body, nil
}

// GetName returns the provider's name.
func (p *HTTPProvider) GetName() string {
	return p.name
}

// Redacted returns the endpoint without credentials.
func (p *HTTPProvider) Redacted() string {
	return p.redacted
}

// Close cleans up resources.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
