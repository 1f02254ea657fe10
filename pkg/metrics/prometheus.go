package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ingested          *prometheus.CounterVec
	anomalies         *prometheus.CounterVec
	correlations      *prometheus.CounterVec
	alerts            *prometheus.CounterVec
	suppressed        *prometheus.CounterVec
	signalUnavailable *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	lastPrice         *prometheus.GaugeVec
	latency           *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ingested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finalert_ingested_total",
				Help: "Ticks and news items ingested by source",
			},
			[]string{"source", "symbol"},
		),
		anomalies: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finalert_anomalies_total",
				Help: "Price anomalies recorded",
			},
			[]string{"symbol", "classification"},
		),
		correlations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finalert_correlations_total",
				Help: "Anomaly/news pairs scored, by outcome",
			},
			[]string{"result"},
		),
		alerts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finalert_alerts_total",
				Help: "Alerts emitted",
			},
			[]string{"symbol", "type", "level"},
		),
		suppressed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finalert_alerts_suppressed_total",
				Help: "Candidates dropped by fingerprint suppression",
			},
			[]string{"type"},
		),
		signalUnavailable: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finalert_signal_unavailable_total",
				Help: "Signal lookups that gave up",
			},
			[]string{"source"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finalert_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finalert_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finalert_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordIngested(source, symbol string) {
	r.ingested.WithLabelValues(source, symbol).Inc()
}

func (r *Recorder) RecordAnomaly(symbol, classification string) {
	r.anomalies.WithLabelValues(symbol, classification).Inc()
}

func (r *Recorder) RecordCorrelation(result string) {
	r.correlations.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordAlert(symbol, alertType, level string) {
	r.alerts.WithLabelValues(symbol, alertType, level).Inc()
}

func (r *Recorder) RecordSuppressed(alertType string) {
	r.suppressed.WithLabelValues(alertType).Inc()
}

func (r *Recorder) RecordSignalUnavailable(source string) {
	r.signalUnavailable.WithLabelValues(source).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordIngested(string, string) {}
func (Nop) RecordAnomaly(string, string) {}
func (Nop) RecordCorrelation(string) {}
func (Nop) RecordAlert(string, string, string) {}
func (Nop) RecordSuppressed(string) {}
func (Nop) RecordSignalUnavailable(string) {}
func (Nop) RecordError(string) {}
func (Nop) RecordLastPrice(string, float64) {}
func (Nop) RecordLatency(string, float64) {}
