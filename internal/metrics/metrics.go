package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Poller metrics
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plant_polls_total",
			Help: "Total number of telemetry polls by outcome",
		},
		[]string{"outcome"}, // success, offline, invalid_credential, transient
	)

	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plant_poll_duration_seconds",
			Help:    "Telemetry fetch latency in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	StalePollsDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plant_stale_polls_discarded_total",
			Help: "Poll results discarded because the credential changed mid-flight",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plant_active_sessions",
			Help: "Number of active polling sessions",
		},
	)

	// Alerting metrics
	AlertsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plant_alerts_dispatched_total",
			Help: "Alerts handed to the delivery channel",
		},
		[]string{"channel", "direction"},
	)

	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plant_alerts_suppressed_total",
			Help: "Alerts suppressed by the cooldown gate",
		},
		[]string{"channel", "direction"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plant_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plant_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	// Kafka metrics
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plant_kafka_publish_total",
			Help: "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)
)
