package health

import (
	"context"
	"time"

	"github.com/vietddude/reorgscan/internal/infra/rpc/routing"
)

// ProgressSource reports scan loop progress.
type ProgressSource interface {
	Progress() Progress
}

// EndpointSource reports fallback ring counters.
type EndpointSource interface {
	Stats() []routing.EndpointStats
}

// Thresholds decide when the scan loop counts as degraded or critical.
type Thresholds struct {
	DegradedLag uint64
	CriticalLag uint64
	StaleAfter  time.Duration // no finished cycle for this long is critical
}

// DefaultThresholds returns lag limits of 10 and 100 blocks.
func DefaultThresholds(scanInterval time.Duration) Thresholds {
	return Thresholds{
		DegradedLag: 10,
		CriticalLag: 100,
		StaleAfter:  max(10*scanInterval, time.Minute),
	}
}

// Monitor aggregates health status from the scan loop and the RPC client.
type Monitor struct {
	chain      string
	progress   ProgressSource
	endpoints  EndpointSource
	thresholds Thresholds
	now        func() time.Time
}

// NewMonitor creates a new health monitor. endpoints may be nil.
func NewMonitor(chain string, progress ProgressSource, endpoints EndpointSource, thresholds Thresholds) *Monitor {
	return &Monitor{
		chain:      chain,
		progress:   progress,
		endpoints:  endpoints,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// CheckHealth builds a report from the latest progress.
func (m *Monitor) CheckHealth(_ context.Context) HealthReport {
	p := m.progress.Progress()

	health := ChainHealth{
		Chain:          m.chain,
		Status:         StatusHealthy,
		LiveBlock:      p.LiveBlock,
		CursorBlock:    p.CursorBlock,
		ReorgsDetected: p.ReorgsDetected,
		LastCycleAt:    p.LastCycleAt,
	}
	if p.LiveBlock > p.CursorBlock {
		health.BlockLag = p.LiveBlock - p.CursorBlock
	}
	if p.LastError != nil {
		health.LastError = p.LastError.Error()
	}

	stale := !p.LastCycleAt.IsZero() && m.now().Sub(p.LastCycleAt) > m.thresholds.StaleAfter
	switch {
	case stale || health.BlockLag > m.thresholds.CriticalLag:
		health.Status = StatusCritical
	case p.LastCycleAt.IsZero() || p.LastError != nil || health.BlockLag > m.thresholds.DegradedLag:
		health.Status = StatusDegraded
	}

	report := HealthReport{
		SystemStatus: health.Status,
		Chain:        health,
	}
	if m.endpoints != nil {
		report.Endpoints = m.endpoints.Stats()
	}
	return report
}
