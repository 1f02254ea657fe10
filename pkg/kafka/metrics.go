package kafka

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce sync.Once

	producerMessages *prometheus.CounterVec
	producerBytes    *prometheus.CounterVec
	producerLatency  *prometheus.HistogramVec

	consumerQueueDepth *prometheus.GaugeVec
	consumerHandled    *prometheus.HistogramVec
	consumerDLQ        *prometheus.CounterVec
)

// registerMetrics registers the package collectors with the default registry
// the first time a Producer or Consumer is built.
func registerMetrics() {
	metricsOnce.Do(func() {
		producerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "finalert_kafka_published_messages_total",
			Help: "Messages written to Kafka by topic and outcome",
		}, []string{"topic", "result"})
		producerBytes = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "finalert_kafka_published_bytes_total",
			Help: "Encoded payload bytes written to Kafka",
		}, []string{"topic"})
		producerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finalert_kafka_publish_duration_seconds",
			Help:    "Time spent in one batch write",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})

		consumerQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "finalert_kafka_consumer_queue_depth",
			Help: "Fetched messages waiting for a worker",
		}, []string{"topic"})
		consumerHandled = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finalert_kafka_consumer_handle_seconds",
			Help:    "Handler latency including retries, by outcome",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic", "result"})
		consumerDLQ = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "finalert_kafka_consumer_dead_letters_total",
			Help: "Messages routed to the dead letter topic",
		}, []string{"topic"})
	})
}
