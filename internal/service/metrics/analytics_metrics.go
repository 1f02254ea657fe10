// Package metrics holds collectors shared by the upstream signal clients.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registerOnce sync.Once

	// UpstreamLatency covers a whole call to a signal service, retries included.
	UpstreamLatency *prometheus.HistogramVec
	// UpstreamFailures counts calls that exhausted their retries or hit an open breaker.
	UpstreamFailures *prometheus.CounterVec
)

// Register creates the collectors on first use. Callers must invoke it
// before touching the exported vectors.
func Register() {
	registerOnce.Do(func() {
		UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "finalert",
			Subsystem: "upstream",
			Name:      "latency_seconds",
			Help:      "Signal service call latency by endpoint",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10},
		}, []string{"endpoint"})
		UpstreamFailures = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finalert",
			Subsystem: "upstream",
			Name:      "failures_total",
			Help:      "Signal service calls reported unavailable",
		}, []string{"endpoint"})
	})
}
