package rpc

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/vietddude/reorgscan/internal/infra/rpc/provider"
)

// SubmitPrefix marks the endpoint used for eth_sendRawTransaction.
const SubmitPrefix = "mev+"

var (
	ErrEmptyConfig     = errors.New("no rpc endpoints configured")
	ErrInvalidURL      = errors.New("invalid rpc endpoint url")
	ErrDuplicateURL    = errors.New("duplicate rpc endpoint url")
	ErrMultipleSubmit  = errors.New("more than one submit endpoint configured")
	ErrNoReadEndpoints = errors.New("no read endpoints configured")
)

// ConfigError describes a rejected endpoint configuration line.
type ConfigError struct {
	Endpoint string // redacted
	Err      error
}

func (e *ConfigError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("rpc config: %v", e.Err)
	}
	return fmt.Sprintf("rpc config: %v: %s", e.Err, e.Endpoint)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// EndpointConfig is the parsed form of an endpoint configuration line.
type EndpointConfig struct {
	Read   []string
	Submit string
}

// ParseEndpoints splits a configuration line into read endpoints and an optional
// submit endpoint. Duplicates are detected after the mev+ prefix is removed.
func ParseEndpoints(line string) (EndpointConfig, error) {
	var cfg EndpointConfig

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return cfg, &ConfigError{Err: ErrEmptyConfig}
	}

	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		raw, submit := strings.CutPrefix(field, SubmitPrefix)

		if err := validateURL(raw); err != nil {
			return EndpointConfig{}, &ConfigError{Endpoint: provider.Redact(raw), Err: err}
		}
		if _, dup := seen[raw]; dup {
			return EndpointConfig{}, &ConfigError{Endpoint: provider.Redact(raw), Err: ErrDuplicateURL}
		}
		seen[raw] = struct{}{}

		if !submit {
			cfg.Read = append(cfg.Read, raw)
			continue
		}
		if cfg.Submit != "" {
			return EndpointConfig{}, &ConfigError{Endpoint: provider.Redact(raw), Err: ErrMultipleSubmit}
		}
		cfg.Submit = raw
	}

	if len(cfg.Read) == 0 {
		return EndpointConfig{}, &ConfigError{Err: ErrNoReadEndpoints}
	}
	return cfg, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	return nil
}
