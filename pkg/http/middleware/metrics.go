package middleware

import (
	"strconv"
	"sync"
	"time"

	applogger "FinAlert/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

var (
	httpOnce sync.Once
	httpM    *httpMetrics
)

func sharedHTTPMetrics() *httpMetrics {
	httpOnce.Do(func() {
		httpM = &httpMetrics{
			requests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "finalert_http_requests_total",
				Help: "API requests by route template, method and status code",
			}, []string{"route", "method", "status"}),
			latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "finalert_http_request_duration_seconds",
				Help:    "API latency by route template and status class",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			}, []string{"route", "method", "class"}),
			inFlight: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "finalert_http_in_flight_requests",
				Help: "Requests currently being served",
			}),
		}
	})
	return httpM
}

// Metrics counts requests per echo route template so path parameters such
// as stock codes do not explode label cardinality. Server errors are logged
// at error level and requests slower than slow at warn; slow <= 0 disables
// the latter.
func Metrics(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	m := sharedHTTPMetrics()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.inFlight.Inc()
			defer m.inFlight.Dec()
			start := time.Now()

			// resolve the error here so the recorded status is the final one
			if err := next(c); err != nil {
				c.Error(err)
			}

			took := time.Since(start)
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			status := c.Response().Status

			m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			m.latency.WithLabelValues(route, method, strconv.Itoa(status/100)+"xx").Observe(took.Seconds())

			fields := []applogger.Field{
				applogger.String("route", route),
				applogger.String("method", method),
				applogger.Int("status", status),
				applogger.Duration("duration_ms", took),
			}
			if status >= 500 {
				l.Error("http request failed", fields...)
			} else if slow > 0 && took >= slow {
				l.Warn("http request slow", fields...)
			}
			return nil
		}
	}
}
