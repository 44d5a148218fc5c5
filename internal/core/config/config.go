package config

import (
	"time"

	redisclient "github.com/vietddude/reorgscan/internal/infra/redis"
	"github.com/vietddude/reorgscan/internal/infra/storage/postgres"
)

// Strategy names accepted by reorg.strategy.
const (
	StrategyRPC       = "rpc"
	StrategyBatched   = "batched"
	StrategySynthetic = "synthetic"
)

// Store kinds accepted by store.kind.
const (
	StoreFlat        = "flat"
	StorePartitioned = "partitioned"
)

// Cursor kinds accepted by cursor.kind.
const (
	CursorFile     = "file"
	CursorMemory   = "memory"
	CursorRedis    = "redis"
	CursorPostgres = "postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Chain   ChainConfig   `yaml:"chain"`
	RPC     RPCConfig     `yaml:"rpc"`
	Reorg   ReorgConfig   `yaml:"reorg"`
	Store   StoreConfig   `yaml:"store"`
	Cursor  CursorConfig  `yaml:"cursor"`
	Scan    ScanConfig    `yaml:"scan"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// ChainConfig names the scanned chain for logs and metrics.
type ChainConfig struct {
	Name string `yaml:"name"`
}

// RPCConfig holds the endpoint line and fallback settings.
type RPCConfig struct {
	// Endpoints is whitespace separated; a "mev+" prefix marks the submit endpoint
	Endpoints              string        `yaml:"endpoints"`
	Retries                *int          `yaml:"retries"`
	Sleep                  time.Duration `yaml:"sleep"`
	Backoff                float64       `yaml:"backoff"`
	MaxSleep               time.Duration `yaml:"max_sleep"`
	Timeout                time.Duration `yaml:"timeout"`
	RequestsPerSecond      float64       `yaml:"requests_per_second"` // 0 = unlimited
	StateVisibilityMethods []string      `yaml:"state_visibility_methods"`
}

// ReorgConfig holds monitor settings.
type ReorgConfig struct {
	Strategy          string        `yaml:"strategy"` // rpc, batched, synthetic
	CheckDepth        uint64        `yaml:"check_depth"`
	MaxCycleTries     int           `yaml:"max_cycle_tries"`
	ReorgWait         time.Duration `yaml:"reorg_wait"`
	BatchSize         int           `yaml:"batch_size"`
	InitialBlockCount uint64        `yaml:"initial_block_count"`
	HeaderSnapshot    string        `yaml:"header_snapshot"` // bbolt file; empty disables
}

// StoreConfig selects the dataset backend.
type StoreConfig struct {
	Kind          string `yaml:"kind"` // flat, partitioned
	Path          string `yaml:"path"`
	PartitionSize uint64 `yaml:"partition_size"`
	CheckGaps     *bool  `yaml:"check_gaps"`
}

// GapsChecked reports whether batches are gap checked before writing. Defaults to true.
func (c StoreConfig) GapsChecked() bool {
	return c.CheckGaps == nil || *c.CheckGaps
}

// CursorConfig selects the scan cursor backend.
type CursorConfig struct {
	Kind     string             `yaml:"kind"` // file, memory, redis, postgres
	Path     string             `yaml:"path"`
	Key      string             `yaml:"key"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
}

// ScanConfig holds scan loop settings.
type ScanConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StartBlock uint64        `yaml:"start_block"`
	MaxRange   uint64        `yaml:"max_range"` // blocks handled per cycle
	Adaptive   *bool         `yaml:"adaptive"`  // pace by lag; defaults to true
}

// AdaptivePacing reports whether interval and range follow the lag.
func (c ScanConfig) AdaptivePacing() bool {
	return c.Adaptive == nil || *c.Adaptive
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"` // negative disables the health server
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
