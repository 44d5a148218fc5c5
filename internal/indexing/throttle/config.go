package throttle

import "time"

// AdaptiveConfig holds configuration for adaptive scan pacing.
type AdaptiveConfig struct {
	// Enabled controls whether adaptive pacing is active
	Enabled bool

	// Interval bounds
	MinScanInterval time.Duration // Fastest polling rate (default: 500ms)
	MaxScanInterval time.Duration // Slowest polling rate (default: 60s)

	// Lag thresholds for interval adjustment
	LagNormalThreshold uint64 // Below this = normal interval (default: 5)
	LagBurstThreshold  uint64 // Above this = max speed (default: 50)

	// Blocks handed to the range handler per cycle
	MinRange uint64 // default: 10
	MaxRange uint64 // default: 1000

	// Cycles slower than this shrink the range
	HighLatencyThreshold time.Duration // default: 30s
}

// DefaultConfig returns sensible defaults for adaptive pacing.
func DefaultConfig() AdaptiveConfig {
	return AdaptiveConfig{
		Enabled:              true,
		MinScanInterval:      500 * time.Millisecond,
		MaxScanInterval:      60 * time.Second,
		LagNormalThreshold:   5,
		LagBurstThreshold:    50,
		MinRange:             10,
		MaxRange:             1000,
		HighLatencyThreshold: 30 * time.Second,
	}
}
