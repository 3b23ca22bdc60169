// Package metrics registers the Prometheus collectors shared by the analysis
// service, the alerting engine and the HTTP layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	PacketsAnalyzed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pas_packets_analyzed_total",
			Help: "Total packets passed through an analysis operation",
		},
		[]string{"operation"},
	)

	AnomaliesFlagged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pas_anomalies_flagged_total",
			Help: "Total packets flagged as outliers by the isolation forest",
		},
	)

	Classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pas_classifications_total",
			Help: "Total packets classified, by label",
		},
		[]string{"label"},
	)

	AnalysisFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pas_analysis_failures_total",
			Help: "Total failed analysis requests, by error kind",
		},
		[]string{"kind"},
	)

	AlertsRaised = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pas_alerts_raised_total",
			Help: "Total attacks raised by the alerting engine, by type",
		},
		[]string{"type"},
	)

	BatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pas_batch_duration_seconds",
			Help:    "Time spent analysing one packet batch",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"operation"},
	)

	WebsocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pas_websocket_clients",
			Help: "Number of connected websocket clients",
		},
	)
)

func init() {
	prometheus.MustRegister(PacketsAnalyzed)
	prometheus.MustRegister(AnomaliesFlagged)
	prometheus.MustRegister(Classifications)
	prometheus.MustRegister(AnalysisFailures)
	prometheus.MustRegister(AlertsRaised)
	prometheus.MustRegister(BatchDuration)
	prometheus.MustRegister(WebsocketClients)
}
