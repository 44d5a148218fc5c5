package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vietddude/reorgscan/internal/indexing/metrics"
	"github.com/vietddude/reorgscan/internal/infra/rpc/provider"
)

// ErrNoEndpoints is returned when a ring is built without providers.
var ErrNoEndpoints = errors.New("fallback requires at least one endpoint")

// Fallback routes requests to one active endpoint of a ring and moves
// round-robin to the next one when a retryable failure occurs.
// The active index is not protected against concurrent switches; share one
// Fallback per scan loop.
type Fallback struct {
	endpoints  []*Endpoint
	current    atomic.Int64
	cfg        RetryConfig
	classifier *Classifier
	sleep      SleepFunc
	log        *slog.Logger
}

// Option configures a Fallback.
type Option func(*Fallback)

// WithSleep replaces the backoff sleep, mostly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(f *Fallback) {
		f.sleep = fn
	}
}

// WithClassifier replaces the default classifier.
func WithClassifier(c *Classifier) Option {
	return func(f *Fallback) {
		f.classifier = c
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fallback) {
		f.log = l
	}
}

// NewFallback creates a ring over providers, starting at the first one.
func NewFallback(providers []provider.RPCProvider, cfg RetryConfig, opts ...Option) (*Fallback, error) {
	if len(providers) == 0 {
		return nil, ErrNoEndpoints
	}

	f := &Fallback{
		endpoints:  make([]*Endpoint, len(providers)),
		cfg:        cfg.normalized(),
		classifier: NewClassifier(nil),
		sleep:      ContextSleep,
		log:        slog.Default(),
	}
	for i, p := range providers {
		f.endpoints[i] = newEndpoint(p)
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// MakeRequest performs one JSON-RPC call with retries and endpoint switching.
func (f *Fallback) MakeRequest(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	var result json.RawMessage
	err := f.do(ctx, method, func(ctx context.Context, p provider.RPCProvider) error {
		r, err := p.Call(ctx, method, params)
		if err != nil {
			return err
		}
		if err := f.classifier.CheckResult(method, params, r); err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MakeBatchRequest sends requests as a single batch with the same retry policy.
// The batch is retried as a whole when any element fails with a retryable error,
// or when the first element is a watched block lookup that came back null.
// Fatal element errors and later null results are returned as-is.
func (f *Fallback) MakeBatchRequest(ctx context.Context, requests []provider.BatchRequest) ([]provider.BatchResponse, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	label := "batch:" + requests[0].Method
	var responses []provider.BatchResponse
	err := f.do(ctx, label, func(ctx context.Context, p provider.RPCProvider) error {
		r, err := p.BatchCall(ctx, requests)
		if err != nil {
			return err
		}
		if len(r) != len(requests) {
			return fmt.Errorf("%w: got %d batch responses for %d requests", provider.ErrMalformedResponse, len(r), len(requests))
		}
		if r[0].Error != nil {
			return r[0].Error
		}
		if err := f.classifier.CheckResult(requests[0].Method, requests[0].Params, r[0].Result); err != nil {
			return err
		}
		// a throttled element anywhere retries the whole batch
		for i, resp := range r[1:] {
			if resp.Error != nil && f.classifier.Classify(resp.Error) != ActionFatal {
				return fmt.Errorf("batch element %d: %w", i+1, resp.Error)
			}
		}
		responses = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return responses, nil
}

func (f *Fallback) do(ctx context.Context, method string, call func(context.Context, provider.RPCProvider) error) error {
	for attempt := 0; ; attempt++ {
		ep := f.active()
		name := ep.Name()

		ep.recordCall(method)
		metrics.RPCCallsTotal.WithLabelValues(name, method).Inc()

		start := time.Now()
		err := call(ctx, ep.Provider)
		metrics.RPCLatency.WithLabelValues(name, method).Observe(time.Since(start).Seconds())
		if err == nil {
			return nil
		}

		action := f.classifier.Classify(err)
		metrics.RPCErrorsTotal.WithLabelValues(name, action.String()).Inc()

		if action == ActionFatal || ctx.Err() != nil {
			return err
		}
		if attempt >= f.cfg.Retries {
			f.log.Error("RPC retries exhausted",
				"method", method,
				"endpoint", name,
				"attempts", attempt+1,
				"error", err,
			)
			return fmt.Errorf("%s failed after %d attempts: %w", method, attempt+1, err)
		}

		ep.recordRetry(method)
		metrics.RPCRetriesTotal.WithLabelValues(name, method).Inc()

		delay := calculateBackoff(attempt, f.cfg)
		if len(f.endpoints) > 1 {
			f.switchEndpoint(action)
		}
		f.log.Warn("RPC call failed, retrying",
			"method", method,
			"endpoint", name,
			"next_endpoint", f.active().Name(),
			"attempt", attempt+1,
			"action", action.String(),
			"sleep", delay,
			"error", err,
		)

		if err := f.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (f *Fallback) switchEndpoint(reason ErrorAction) {
	next := (f.current.Load() + 1) % int64(len(f.endpoints))
	f.current.Store(next)

	label := "retryable_error"
	if reason == ActionSwitch {
		label = "state_not_visible"
	}
	metrics.RPCSwitchesTotal.WithLabelValues(label).Inc()
}

func (f *Fallback) active() *Endpoint {
	return f.endpoints[f.current.Load()]
}

// ActiveIndex returns the position of the endpoint that serves the next call.
func (f *Fallback) ActiveIndex() int {
	return int(f.current.Load())
}

// Endpoints returns the ring in order.
func (f *Fallback) Endpoints() []*Endpoint {
	return f.endpoints
}

// Classifier returns the classifier used by the ring.
func (f *Fallback) Classifier() *Classifier {
	return f.classifier
}

// Stats returns counters for every endpoint.
func (f *Fallback) Stats() []EndpointStats {
	active := f.ActiveIndex()
	out := make([]EndpointStats, len(f.endpoints))
	for i, ep := range f.endpoints {
		out[i] = ep.stats(i == active)
	}
	return out
}

// Close closes every provider of the ring.
func (f *Fallback) Close() error {
	var errs []error
	for _, ep := range f.endpoints {
		if err := ep.Provider.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
