package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/reorgscan/internal/indexing/reorg"
	"github.com/vietddude/reorgscan/internal/infra/rpc/routing"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, expanding ${ENV} references, applies defaults and validates.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *AppConfig) ApplyDefaults() {
	if c.Chain.Name == "" {
		c.Chain.Name = "ethereum"
	}

	retry := routing.DefaultRetryConfig
	if c.RPC.Retries == nil {
		c.RPC.Retries = &retry.Retries
	}
	if c.RPC.Sleep == 0 {
		c.RPC.Sleep = retry.Sleep
	}
	if c.RPC.Backoff == 0 {
		c.RPC.Backoff = retry.Backoff
	}
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = 30 * time.Second
	}

	monitor := reorg.DefaultConfig()
	if c.Reorg.Strategy == "" {
		c.Reorg.Strategy = StrategyBatched
	}
	if c.Reorg.CheckDepth == 0 {
		c.Reorg.CheckDepth = monitor.CheckDepth
	}
	if c.Reorg.MaxCycleTries == 0 {
		c.Reorg.MaxCycleTries = monitor.MaxCycleTries
	}
	if c.Reorg.ReorgWait == 0 {
		c.Reorg.ReorgWait = monitor.ReorgWait
	}
	if c.Reorg.BatchSize == 0 {
		c.Reorg.BatchSize = 100
	}
	if c.Reorg.InitialBlockCount == 0 {
		c.Reorg.InitialBlockCount = c.Reorg.CheckDepth
	}

	if c.Store.Kind == "" {
		c.Store.Kind = StorePartitioned
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/blocks"
	}
	if c.Store.PartitionSize == 0 {
		c.Store.PartitionSize = 100_000
	}

	if c.Cursor.Kind == "" {
		c.Cursor.Kind = CursorFile
	}
	if c.Cursor.Path == "" {
		c.Cursor.Path = "data/cursor"
	}
	if c.Cursor.Key == "" {
		c.Cursor.Key = c.Chain.Name
	}

	if c.Scan.Interval == 0 {
		c.Scan.Interval = 10 * time.Second
	}
	if c.Scan.MaxRange == 0 {
		c.Scan.MaxRange = 1000
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks that the configuration can be wired.
func (c *AppConfig) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if !slices.Contains([]string{StrategyRPC, StrategyBatched, StrategySynthetic}, c.Reorg.Strategy) {
		fail("reorg.strategy %q must be rpc, batched or synthetic", c.Reorg.Strategy)
	}
	if c.Reorg.Strategy != StrategySynthetic && strings.TrimSpace(c.RPC.Endpoints) == "" {
		fail("rpc.endpoints is required for strategy %q", c.Reorg.Strategy)
	}
	if c.RPC.Retries != nil && *c.RPC.Retries < 0 {
		fail("rpc.retries must not be negative")
	}
	if c.RPC.Backoff < 1 {
		fail("rpc.backoff %.2f must be at least 1", c.RPC.Backoff)
	}
	if c.RPC.RequestsPerSecond < 0 {
		fail("rpc.requests_per_second must not be negative")
	}
	if c.Reorg.MaxCycleTries < 1 {
		fail("reorg.max_cycle_tries must be positive")
	}

	if c.Store.Kind != StoreFlat && c.Store.Kind != StorePartitioned {
		fail("store.kind %q must be flat or partitioned", c.Store.Kind)
	}

	switch c.Cursor.Kind {
	case CursorFile, CursorMemory:
	case CursorRedis:
		if c.Cursor.Redis.URL == "" {
			fail("cursor.redis.url is required for redis cursors")
		}
	case CursorPostgres:
		if c.Cursor.Database.URL == "" {
			fail("cursor.database.url is required for postgres cursors")
		}
	default:
		fail("cursor.kind %q must be file, memory, redis or postgres", c.Cursor.Kind)
	}

	if _, ok := ParseLevel(c.Logging.Level); !ok {
		fail("logging.level %q must be debug, info, warn or error", c.Logging.Level)
	}
	return errors.Join(errs...)
}

// RetryConfig converts the rpc section for the fallback ring.
func (c RPCConfig) RetryConfig() routing.RetryConfig {
	retry := routing.DefaultRetryConfig
	if c.Retries != nil {
		retry.Retries = *c.Retries
	}
	retry.Sleep = c.Sleep
	retry.Backoff = c.Backoff
	retry.MaxSleep = c.MaxSleep
	return retry
}

// MonitorConfig converts the reorg section for the monitor.
func (c *AppConfig) MonitorConfig() reorg.Config {
	return reorg.Config{
		CheckDepth:    c.Reorg.CheckDepth,
		MaxCycleTries: c.Reorg.MaxCycleTries,
		ReorgWait:     c.Reorg.ReorgWait,
		Chain:         c.Chain.Name,
	}
}
