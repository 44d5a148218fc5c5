package routing

import (
	"context"
	"math"
	"time"
)

// RetryConfig defines retry behavior of the fallback ring.
// A call is attempted at most Retries+1 times; the n-th sleep is Sleep*Backoff^n.
type RetryConfig struct {
	Retries  int
	Sleep    time.Duration
	Backoff  float64
	MaxSleep time.Duration // zero means uncapped
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	Retries: 6,
	Sleep:   5 * time.Second,
	Backoff: 1.6,
}

func (c RetryConfig) normalized() RetryConfig {
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Sleep < 0 {
		c.Sleep = 0
	}
	if c.Backoff < 1 {
		c.Backoff = 1
	}
	return c
}

// calculateBackoff returns the sleep before retry number attempt (zero based).
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.Sleep) * math.Pow(config.Backoff, float64(attempt))
	if config.MaxSleep > 0 && delay > float64(config.MaxSleep) {
		delay = float64(config.MaxSleep)
	}
	return time.Duration(delay)
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep is the default SleepFunc.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
