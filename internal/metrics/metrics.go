package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCCallsTotal tracks RPC calls per network and endpoint
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todochain_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"network", "provider", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per network and endpoint
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todochain_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"network", "provider", "error_type"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "todochain_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"network", "provider", "method"},
	)

	// MonitorActive is the number of transactions currently being watched
	MonitorActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "todochain_monitor_active",
			Help: "Transactions currently being monitored",
		},
		[]string{"network"},
	)

	// MonitorPollsTotal counts receipt fetches issued by the monitor
	MonitorPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todochain_monitor_polls_total",
			Help: "Total number of receipt polls",
		},
		[]string{"network"},
	)

	// MonitorOutcomesTotal counts terminal monitor outcomes by state
	MonitorOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todochain_monitor_outcomes_total",
			Help: "Terminal monitor outcomes",
		},
		[]string{"network", "status"},
	)

	// MonitorDuration tracks time from first poll to terminal outcome
	MonitorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "todochain_monitor_duration_seconds",
			Help:    "Time spent monitoring a transaction",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"network", "status"},
	)

	// ServiceOperationsTotal counts chain service operations by result kind
	ServiceOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todochain_service_operations_total",
			Help: "Chain service operations by outcome",
		},
		[]string{"network", "operation", "result"},
	)

	// ReceiptStoreErrors counts failed receipt store reads and writes
	ReceiptStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todochain_receipt_store_errors_total",
			Help: "Receipt store failures",
		},
		[]string{"driver", "op"},
	)

	// DBConnectionPoolUsage is the share of open postgres connections
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "todochain_db_connection_pool_usage_percent",
			Help: "Open connections as a percentage of the pool size",
		},
	)
)
