// Package throttle paces the scan loop by how far it trails the chain head.
package throttle

import (
	"time"
)

// AdaptiveController computes scan intervals and range sizes
// based on current lag and the duration of the last cycle.
type AdaptiveController struct {
	chain            string
	baseScanInterval time.Duration
	config           AdaptiveConfig

	// Current state (for metrics)
	currentInterval time.Duration
	currentRange    uint64
}

// NewAdaptiveController creates a new adaptive controller.
func NewAdaptiveController(
	chain string,
	baseScanInterval time.Duration,
	config AdaptiveConfig,
) *AdaptiveController {
	if config.MaxRange == 0 {
		config.MaxRange = DefaultConfig().MaxRange
	}
	if config.MinRange == 0 || config.MinRange > config.MaxRange {
		config.MinRange = min(DefaultConfig().MinRange, config.MaxRange)
	}
	return &AdaptiveController{
		chain:            chain,
		baseScanInterval: baseScanInterval,
		config:           config,
		currentInterval:  baseScanInterval,
		currentRange:     config.MaxRange,
	}
}

// ComputeInterval calculates the wait before the next cycle.
//
// Algorithm:
//   - lag = 0: Use base interval (at chain head, save API calls)
//   - lag < normal: Use base interval × 0.5 (slightly behind)
//   - lag < burst: Use min interval × 2 (catching up)
//   - lag ≥ burst: Use min interval (maximum catchup speed)
func (c *AdaptiveController) ComputeInterval(lag uint64) time.Duration {
	if !c.config.Enabled {
		return c.baseScanInterval
	}

	var interval time.Duration

	switch {
	case lag == 0:
		interval = c.baseScanInterval
	case lag < c.config.LagNormalThreshold:
		interval = c.baseScanInterval / 2
	case lag < c.config.LagBurstThreshold:
		interval = c.config.MinScanInterval * 2
	default:
		interval = c.config.MinScanInterval
	}

	// Enforce bounds
	interval = max(interval, c.config.MinScanInterval)
	if c.config.MaxScanInterval > 0 {
		interval = min(interval, c.config.MaxScanInterval)
	}

	c.currentInterval = interval
	return interval
}

// ComputeRange calculates how many blocks the next cycle handles.
//
// Algorithm:
//   - Slow last cycle: Use min range
//   - lag < normal: Use min range
//   - lag < burst: Use max range / 10
//   - lag ≥ burst: Use max range
func (c *AdaptiveController) ComputeRange(lag uint64, lastCycle time.Duration) uint64 {
	if !c.config.Enabled {
		return c.config.MaxRange
	}

	if c.config.HighLatencyThreshold > 0 && lastCycle > c.config.HighLatencyThreshold {
		c.currentRange = c.config.MinRange
		return c.currentRange
	}

	var size uint64

	switch {
	case lag < c.config.LagNormalThreshold:
		size = c.config.MinRange
	case lag < c.config.LagBurstThreshold:
		size = c.config.MaxRange / 10
	default:
		size = c.config.MaxRange
	}

	c.currentRange = min(max(size, c.config.MinRange), c.config.MaxRange)
	return c.currentRange
}

// GetCurrentInterval returns the last computed interval (for metrics).
func (c *AdaptiveController) GetCurrentInterval() time.Duration {
	return c.currentInterval
}

// GetCurrentRange returns the last computed range size (for metrics).
func (c *AdaptiveController) GetCurrentRange() uint64 {
	return c.currentRange
}
