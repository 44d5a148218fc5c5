// Package health provides scan loop health monitoring and status reporting.
package health

import (
	"time"

	"github.com/vietddude/reorgscan/internal/infra/rpc/routing"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Progress is what the scan loop reports about itself.
type Progress struct {
	LiveBlock      uint64
	CursorBlock    uint64
	ReorgsDetected uint64
	LastCycleAt    time.Time
	LastError      error
}

// ChainHealth contains health metrics for the scanned chain.
type ChainHealth struct {
	Chain          string       `json:"chain"`
	Status         SystemStatus `json:"status"`
	LiveBlock      uint64       `json:"live_block"`
	CursorBlock    uint64       `json:"cursor_block"`
	BlockLag       uint64       `json:"block_lag"`
	ReorgsDetected uint64       `json:"reorgs_detected"`
	LastCycleAt    time.Time    `json:"last_cycle_at"`
	LastError      string       `json:"last_error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus            `json:"system_status"`
	Chain        ChainHealth             `json:"chain"`
	Endpoints    []routing.EndpointStats `json:"endpoints,omitempty"`
}
