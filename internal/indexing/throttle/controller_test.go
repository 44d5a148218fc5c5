package throttle

import (
	"testing"
	"time"
)

func TestComputeInterval(t *testing.T) {
	config := DefaultConfig()
	config.MinScanInterval = 500 * time.Millisecond
	config.MaxScanInterval = 60 * time.Second
	config.LagNormalThreshold = 5
	config.LagBurstThreshold = 50

	baseScanInterval := 12 * time.Second
	controller := NewAdaptiveController("ethereum", baseScanInterval, config)

	tests := []struct {
		name     string
		lag      uint64
		expected time.Duration
	}{
		{
			name:     "at chain head (lag=0)",
			lag:      0,
			expected: 12 * time.Second, // base interval
		},
		{
			name:     "slightly behind (lag=3)",
			lag:      3,
			expected: 6 * time.Second, // base / 2
		},
		{
			name:     "catching up (lag=20)",
			lag:      20,
			expected: 1 * time.Second, // min * 2
		},
		{
			name:     "far behind (lag=100)",
			lag:      100,
			expected: 500 * time.Millisecond, // min interval
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := controller.ComputeInterval(tt.lag)
			if result != tt.expected {
				t.Errorf("ComputeInterval(%d) = %v, want %v", tt.lag, result, tt.expected)
			}
		})
	}
	if controller.GetCurrentInterval() != 500*time.Millisecond {
		t.Errorf("GetCurrentInterval() = %v", controller.GetCurrentInterval())
	}
}

func TestComputeRange(t *testing.T) {
	config := DefaultConfig()
	config.MinRange = 10
	config.MaxRange = 1000
	config.HighLatencyThreshold = 30 * time.Second

	controller := NewAdaptiveController("ethereum", 12*time.Second, config)

	tests := []struct {
		name     string
		lag      uint64
		latency  time.Duration
		expected uint64
	}{
		{
			name:     "at chain head",
			lag:      0,
			latency:  time.Second,
			expected: 10,
		},
		{
			name:     "catching up",
			lag:      20,
			latency:  time.Second,
			expected: 100,
		},
		{
			name:     "far behind",
			lag:      5000,
			latency:  time.Second,
			expected: 1000,
		},
		{
			name:     "slow cycle - conservative range",
			lag:      5000,
			latency:  time.Minute,
			expected: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := controller.ComputeRange(tt.lag, tt.latency)
			if result != tt.expected {
				t.Errorf("ComputeRange(lag=%d, latency=%v) = %d, want %d",
					tt.lag, tt.latency, result, tt.expected)
			}
		})
	}
}

func TestComputeInterval_Disabled(t *testing.T) {
	config := DefaultConfig()
	config.Enabled = false

	baseScanInterval := 12 * time.Second
	controller := NewAdaptiveController("ethereum", baseScanInterval, config)

	// When disabled, should always return base interval
	result := controller.ComputeInterval(100)
	if result != baseScanInterval {
		t.Errorf("ComputeInterval with disabled config = %v, want %v", result, baseScanInterval)
	}
}

func TestComputeRange_Disabled(t *testing.T) {
	controller := NewAdaptiveController("ethereum", 12*time.Second, AdaptiveConfig{MaxRange: 12})

	// When disabled, should always return the max range
	result := controller.ComputeRange(0, time.Hour)
	if result != 12 {
		t.Errorf("ComputeRange with disabled config = %d, want 12", result)
	}
}

func TestNewAdaptiveController_ClampsMinRange(t *testing.T) {
	controller := NewAdaptiveController("ethereum", time.Second, AdaptiveConfig{Enabled: true, MaxRange: 4})
	if got := controller.ComputeRange(0, 0); got != 4 {
		t.Errorf("ComputeRange = %d, want 4", got)
	}
}
