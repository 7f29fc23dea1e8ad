package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sunsense_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sunsense_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Feed intake
	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sunsense_snapshots_total",
			Help: "Feed snapshots received",
		},
		[]string{"source", "status"}, // status: queued, rejected, dropped
	)

	FeedItemsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sunsense_feed_items_rejected_total",
			Help: "Feed items dropped at intake",
		},
		[]string{"source", "feed"},
	)

	// Engine
	EvaluationPasses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sunsense_evaluation_passes_total",
			Help: "Evaluation passes run",
		},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sunsense_evaluation_duration_seconds",
			Help:    "Time spent in one evaluation pass including dispatch",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sunsense_notifications_total",
			Help: "Notifications dispatched",
		},
		[]string{"rule", "kind"},
	)

	RuleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sunsense_rule_errors_total",
			Help: "Non-fatal rule errors, e.g. unparseable schedule entries",
		},
		[]string{"rule"},
	)

	SinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sunsense_sink_errors_total",
			Help: "Failed presentation sink deliveries",
		},
		[]string{"sink"},
	)

	// Audio
	AudioClipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sunsense_audio_clips_total",
			Help: "Audio clips by outcome",
		},
		[]string{"status"}, // played, failed, dropped
	)

	// Dashboard hub
	HubClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sunsense_hub_clients",
			Help: "Connected dashboard websocket clients",
		},
	)

	HubMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sunsense_hub_messages_dropped_total",
			Help: "Messages dropped for slow dashboard clients",
		},
	)

	// Relay worker
	RelayQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sunsense_relay_queue_size",
			Help: "Envelopes waiting to be published",
		},
	)

	RelayPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sunsense_relay_published_total",
			Help: "Envelopes published by the relay",
		},
	)

	RelayFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sunsense_relay_failed_total",
			Help: "Envelopes the relay failed to publish",
		},
	)

	RelayBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sunsense_relay_batch_duration_seconds",
			Help:    "Time taken to publish one relay batch",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Kafka
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sunsense_kafka_publish_total",
			Help: "Messages published to Kafka",
		},
		[]string{"status"},
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sunsense_kafka_publish_retries_total",
			Help: "Kafka publish retries",
		},
	)

	KafkaFeedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sunsense_kafka_feed_messages_total",
			Help: "Feed snapshot messages consumed from Kafka",
		},
		[]string{"status"}, // accepted, rejected, invalid, read_error
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sunsense_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
