package routing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/vietddude/reorgscan/internal/infra/rpc/provider"
)

// ErrStateNotYetVisible means the endpoint answered, but has not yet seen the
// block the request refers to. Another endpoint of the ring may have it.
var ErrStateNotYetVisible = errors.New("requested state not yet visible on endpoint")

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionFatal  ErrorAction = iota // surface immediately
	ActionRetry                     // transient, retry with backoff
	ActionSwitch                    // retry and move to another endpoint
)

func (a ErrorAction) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionSwitch:
		return "switch"
	default:
		return "fatal"
	}
}

// RetryableHTTPStatusCodes are the HTTP statuses worth another attempt.
var RetryableHTTPStatusCodes = map[int]struct{}{
	http.StatusTooManyRequests:     {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

// RetryableRPCErrorCodes are JSON-RPC error codes that providers use for transient faults.
// -32000 is deliberately absent: nodes also use it for execution reverts.
var RetryableRPCErrorCodes = map[int]string{
	-32603: "internal error",
	-32005: "limit exceeded",
	-32002: "resource unavailable",
	-32043: "requested data is not available",
	429:    "rate limited",
}

// pointInTimeMethods maps a method to the index of its block tag parameter.
var pointInTimeMethods = map[string]int{
	"eth_call": 1,
}

// DefaultStateVisibilityMethods are block lookups whose null result means the node lags.
// Receipt lookups are excluded; a null receipt is normal for pending transactions.
var DefaultStateVisibilityMethods = []string{
	"eth_getBlockByNumber",
	"eth_getBlockByHash",
}

// Classifier decides what the fallback ring does with a failed attempt.
type Classifier struct {
	visibility map[string]struct{}
}

// NewClassifier creates a classifier. A nil method list uses DefaultStateVisibilityMethods.
func NewClassifier(stateVisibilityMethods []string) *Classifier {
	if stateVisibilityMethods == nil {
		stateVisibilityMethods = DefaultStateVisibilityMethods
	}
	c := &Classifier{visibility: make(map[string]struct{}, len(stateVisibilityMethods))}
	for _, m := range stateVisibilityMethods {
		c.visibility[m] = struct{}{}
	}
	return c
}

// Classify determines the action for a given error.
func (c *Classifier) Classify(err error) ErrorAction {
	if err == nil {
		return ActionFatal
	}

	if errors.Is(err, ErrStateNotYetVisible) {
		return ActionSwitch
	}
	if errors.Is(err, context.Canceled) {
		return ActionFatal
	}

	var statusErr *provider.HTTPStatusError
	if errors.As(err, &statusErr) {
		if _, ok := RetryableHTTPStatusCodes[statusErr.StatusCode]; ok {
			return ActionRetry
		}
		return ActionFatal
	}

	var rpcErr *provider.RPCError
	if errors.As(err, &rpcErr) {
		if _, ok := RetryableRPCErrorCodes[rpcErr.Code]; ok {
			return ActionRetry
		}
		return ActionFatal
	}

	if isTransportFailure(err) {
		return ActionRetry
	}
	return ActionFatal
}

// CheckResult inspects a successful response for signs the endpoint lags behind.
func (c *Classifier) CheckResult(method string, params []any, result json.RawMessage) error {
	if idx, ok := pointInTimeMethods[method]; ok {
		if idx < len(params) && !isHeadTag(params[idx]) && isEmptyHex(result) {
			return ErrStateNotYetVisible
		}
		return nil
	}

	if _, ok := c.visibility[method]; ok && provider.IsNullResult(result) {
		return ErrStateNotYetVisible
	}
	return nil
}

// WatchesMethod reports whether null results of method trigger an endpoint switch.
func (c *Classifier) WatchesMethod(method string) bool {
	_, ok := c.visibility[method]
	return ok
}

func isTransportFailure(err error) bool {
	if errors.Is(err, provider.ErrTooManyRedirects) {
		return true
	}
	// truncated bodies and batches missing an id
	if errors.Is(err, provider.ErrMalformedResponse) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isHeadTag(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	switch strings.ToLower(s) {
	case "latest", "pending":
		return true
	}
	return false
}

func isEmptyHex(raw json.RawMessage) bool {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	return s == "0x"
}
