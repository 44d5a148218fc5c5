package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/reorgscan/internal/infra/rpc/routing"
)

type stubProgress struct {
	p Progress
}

func (s *stubProgress) Progress() Progress { return s.p }

type stubEndpoints struct{}

func (stubEndpoints) Stats() []routing.EndpointStats {
	return []routing.EndpointStats{{Name: "https://node.example", Active: true}}
}

func newTestMonitor(p Progress, now time.Time) *Monitor {
	m := NewMonitor("ethereum", &stubProgress{p: p}, stubEndpoints{}, DefaultThresholds(time.Second))
	m.now = func() time.Time { return now }
	return m
}

func TestMonitor_Status(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		progress Progress
		want     SystemStatus
	}{
		{
			name:     "caught up",
			progress: Progress{LiveBlock: 105, CursorBlock: 100, LastCycleAt: now},
			want:     StatusHealthy,
		},
		{
			name:     "not started",
			progress: Progress{},
			want:     StatusDegraded,
		},
		{
			name:     "lagging",
			progress: Progress{LiveBlock: 150, CursorBlock: 100, LastCycleAt: now},
			want:     StatusDegraded,
		},
		{
			name:     "last cycle failed",
			progress: Progress{LiveBlock: 100, CursorBlock: 100, LastCycleAt: now, LastError: errors.New("boom")},
			want:     StatusDegraded,
		},
		{
			name:     "far behind",
			progress: Progress{LiveBlock: 1000, CursorBlock: 100, LastCycleAt: now},
			want:     StatusCritical,
		},
		{
			name:     "stalled",
			progress: Progress{LiveBlock: 100, CursorBlock: 100, LastCycleAt: now.Add(-time.Hour)},
			want:     StatusCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := newTestMonitor(tt.progress, now).CheckHealth(context.Background())
			assert.Equal(t, tt.want, report.SystemStatus)
			assert.Equal(t, tt.want, report.Chain.Status)
		})
	}
}

func TestMonitor_ReportFields(t *testing.T) {
	now := time.Now()
	report := newTestMonitor(Progress{
		LiveBlock:      120,
		CursorBlock:    100,
		ReorgsDetected: 2,
		LastCycleAt:    now,
		LastError:      errors.New("rpc down"),
	}, now).CheckHealth(context.Background())

	assert.Equal(t, "ethereum", report.Chain.Chain)
	assert.Equal(t, uint64(20), report.Chain.BlockLag)
	assert.Equal(t, uint64(2), report.Chain.ReorgsDetected)
	assert.Equal(t, "rpc down", report.Chain.LastError)
	require.Len(t, report.Endpoints, 1)
	assert.True(t, report.Endpoints[0].Active)
}

func TestServer_Endpoints(t *testing.T) {
	now := time.Now()
	healthy := NewServer(newTestMonitor(Progress{LiveBlock: 10, CursorBlock: 10, LastCycleAt: now}, now), 0)

	rec := httptest.NewRecorder()
	healthy.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])

	rec = httptest.NewRecorder()
	healthy.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report HealthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, uint64(10), report.Chain.LiveBlock)
	assert.Len(t, report.Endpoints, 1)

	rec = httptest.NewRecorder()
	healthy.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	critical := NewServer(newTestMonitor(Progress{LiveBlock: 1000, CursorBlock: 1, LastCycleAt: now}, now), 0)
	rec = httptest.NewRecorder()
	critical.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
