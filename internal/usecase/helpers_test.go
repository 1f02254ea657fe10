package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"FinAlert/internal/domain/models"
	"FinAlert/pkg/config"

	"github.com/stretchr/testify/require"
)

type countingMetrics struct {
	mu          sync.Mutex
	errors      map[string]int
	alerts      int
	suppressed  int
	anomalies   int
	unavailable map[string]int
	ingested    int
}

func newMetrics() *countingMetrics {
	return &countingMetrics{errors: map[string]int{}, unavailable: map[string]int{}}
}

func (m *countingMetrics) RecordIngested(string, string) {
	m.mu.Lock()
	m.ingested++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordAnomaly(string, string) {
	m.mu.Lock()
	m.anomalies++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordCorrelation(string) {}

func (m *countingMetrics) RecordAlert(string, string, string) {
	m.mu.Lock()
	m.alerts++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordSuppressed(string) {
	m.mu.Lock()
	m.suppressed++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordSignalUnavailable(source string) {
	m.mu.Lock()
	m.unavailable[source]++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func (m *countingMetrics) RecordLastPrice(string, float64) {}

func (m *countingMetrics) RecordLatency(string, float64) {}

func (m *countingMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

const testYAML = `
symbols:
  - code: "600519"
    name: Moutai
  - code: "000001"
    name: Ping An Bank
store:
  backend: memory
delivery:
  backend: memory
resilience:
  base_delay: 1ms
  max_delay: 2ms
  timeout: 500ms
scheduler:
  interval: 10ms
  cycle_timeout: 1s
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(testYAML))
	require.NoError(t, err)
	return cfg
}

// rising builds n one-minute bars for symbol ending at end, closing from
// first to last in equal steps, with the previous session close set on the
// newest bar.
func rising(symbol string, end time.Time, n int, first, last, prevClose float64) []models.Tick {
	out := make([]models.Tick, n)
	step := (last - first) / float64(n-1)
	for i := 0; i < n; i++ {
		c := first + step*float64(i)
		out[i] = models.Tick{
			Symbol:    symbol,
			Timestamp: end.Add(-time.Duration(n-1-i) * time.Minute),
			Close:     c,
			High:      c,
			Low:       c,
			Volume:    1000,
		}
	}
	out[n-1].Close = last
	out[n-1].PrevClose = prevClose
	return out
}

type fakeScorer struct {
	score float64
	err   error
	calls atomic.Int32
}

func (f *fakeScorer) Score(ctx context.Context, _ string) (models.SentimentScore, error) {
	f.calls.Add(1)
	if f.err != nil {
		return models.SentimentScore{}, f.err
	}
	return models.SentimentScore{Score: f.score, Confidence: 0.9, ScoredAt: time.Now()}, nil
}

type fakeForecaster struct {
	points []models.ForecastPoint
	err    error
}

func (f *fakeForecaster) Forecast(context.Context, string, int) ([]models.ForecastPoint, error) {
	return f.points, f.err
}

var errBoom = errors.New("boom")
