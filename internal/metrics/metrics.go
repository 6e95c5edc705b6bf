package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync poller metrics
	SyncFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridwatch_sync_fetch_total",
			Help: "Total number of remote fetch attempts",
		},
		[]string{"status"}, // status: success, failed
	)

	SyncFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gridwatch_sync_fetch_duration_seconds",
			Help:    "Time taken to fetch a batch from the remote API",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	SyncRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridwatch_sync_records_total",
			Help: "Total number of remote records processed",
		},
		[]string{"outcome"}, // outcome: stored, duplicate, unregistered, malformed, error
	)

	SyncConsecutiveErrors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridwatch_sync_consecutive_errors",
			Help: "Current consecutive fetch failure count",
		},
	)

	// Alert generator metrics
	AlertCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridwatch_alert_cycles_total",
			Help: "Total number of alert generator cycles",
		},
		[]string{"outcome"}, // outcome: completed, skipped, failed
	)

	AlertCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gridwatch_alert_cycle_duration_seconds",
			Help:    "Time taken by one alert generator cycle",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	AlertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridwatch_alerts_created_total",
			Help: "Total number of alerts created",
		},
		[]string{"type", "severity"},
	)

	AlertsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridwatch_alerts_suppressed_total",
			Help: "Total number of alert candidates discarded by the duplicate window",
		},
		[]string{"type"},
	)

	// Ingestion metrics (direct POST and modbus source)
	ReadingsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridwatch_readings_ingested_total",
			Help: "Total number of readings stored",
		},
		[]string{"source"}, // source: sync, device, modbus
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridwatch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridwatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)
)
