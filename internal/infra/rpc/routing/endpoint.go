package routing

import (
	"sync"

	"github.com/vietddude/reorgscan/internal/infra/rpc/provider"
)

// Endpoint wraps a provider with per-method call and retry counters.
type Endpoint struct {
	Provider provider.RPCProvider

	mu      sync.Mutex
	calls   map[string]int
	retries map[string]int
}

func newEndpoint(p provider.RPCProvider) *Endpoint {
	return &Endpoint{
		Provider: p,
		calls:    make(map[string]int),
		retries:  make(map[string]int),
	}
}

// Name returns the provider name.
func (e *Endpoint) Name() string {
	return e.Provider.GetName()
}

func (e *Endpoint) recordCall(method string) {
	e.mu.Lock()
	e.calls[method]++
	e.mu.Unlock()
}

func (e *Endpoint) recordRetry(method string) {
	e.mu.Lock()
	e.retries[method]++
	e.mu.Unlock()
}

// CallCount returns the number of attempts of method made against this endpoint.
func (e *Endpoint) CallCount(method string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[method]
}

// RetryCount returns the number of retries scheduled after a failure of method here.
func (e *Endpoint) RetryCount(method string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retries[method]
}

// EndpointStats is a copy of the counters of one endpoint.
type EndpointStats struct {
	Name    string         `json:"name"`
	Active  bool           `json:"active"`
	Calls   map[string]int `json:"calls"`
	Retries map[string]int `json:"retries"`
}

func (e *Endpoint) stats(active bool) EndpointStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := EndpointStats{
		Name:    e.Provider.GetName(),
		Active:  active,
		Calls:   make(map[string]int, len(e.calls)),
		Retries: make(map[string]int, len(e.retries)),
	}
	for k, v := range e.calls {
		s.Calls[k] = v
	}
	for k, v := range e.retries {
		s.Retries[k] = v
	}
	return s
}
