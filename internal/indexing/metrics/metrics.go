package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCCallsTotal tracks every attempt made against an endpoint
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reorgscan_rpc_calls_total",
			Help: "Total number of RPC attempts per endpoint and method",
		},
		[]string{"endpoint", "method"},
	)

	// RPCRetriesTotal tracks retries scheduled after a retryable failure
	RPCRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reorgscan_rpc_retries_total",
			Help: "Total number of RPC retries per endpoint and method",
		},
		[]string{"endpoint", "method"},
	)

	// RPCErrorsTotal tracks failures by classification
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reorgscan_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"endpoint", "action"},
	)

	// RPCSwitchesTotal tracks active endpoint changes in the fallback ring
	RPCSwitchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reorgscan_rpc_endpoint_switches_total",
			Help: "Total number of fallback endpoint switches",
		},
		[]string{"reason"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reorgscan_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// ReorgsDetected counts forks found by the monitor
	ReorgsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reorgscan_reorgs_detected_total",
			Help: "Total number of chain reorganisations detected",
		},
		[]string{"chain"},
	)

	// ReorgResolutionTries tracks how many detection passes an update cycle needed
	ReorgResolutionTries = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reorgscan_reorg_resolution_tries",
			Help:    "Detection passes needed per update cycle",
			Buckets: []float64{1, 2, 3, 5, 8, 13},
		},
		[]string{"chain"},
	)

	// ChainLatestBlock tracks the latest block height of the chain
	ChainLatestBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reorgscan_chain_latest_block",
			Help: "Latest block height of the chain",
		},
		[]string{"chain"},
	)

	// CursorBlock tracks the last fully processed block
	CursorBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reorgscan_cursor_block",
			Help: "Last block fully processed by the scan loop",
		},
		[]string{"chain"},
	)

	// StoreRowsWritten tracks rows written to the dataset store
	StoreRowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reorgscan_store_rows_written_total",
			Help: "Total number of dataset rows written",
		},
		[]string{"store"},
	)
)
