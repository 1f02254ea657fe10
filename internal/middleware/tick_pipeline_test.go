package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"FinAlert/internal/domain/errs"
	"FinAlert/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func (m *nopMetrics) RecordIngested(string, string) {}
func (m *nopMetrics) RecordAnomaly(string, string) {}
func (m *nopMetrics) RecordCorrelation(string) {}
func (m *nopMetrics) RecordAlert(string, string, string) {}
func (m *nopMetrics) RecordSuppressed(string) {}
func (m *nopMetrics) RecordSignalUnavailable(string) {}
func (m *nopMetrics) RecordLastPrice(string, float64) {}
func (m *nopMetrics) RecordLatency(string, float64) {}

func (m *nopMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == nil {
		m.errors = map[string]int{}
	}
	m.errors[kind]++
}

func (m *nopMetrics) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

type sink struct {
	mu   sync.Mutex
	got  []models.Tick
	fail int
}

func (s *sink) Process(_ context.Context, t models.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return errors.New("downstream unavailable")
	}
	s.got = append(s.got, t)
	return nil
}

func (s *sink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func validTick(at time.Time) models.Tick {
	return models.Tick{Symbol: "AAPL", Timestamp: at, Close: 190, High: 190, Low: 190, Volume: 5}
}

func TestValidateTick(t *testing.T) {
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	require.NoError(t, ValidateTick(validTick(at)))

	bad := []models.Tick{
		{Timestamp: at, Close: 1},
		{Symbol: "AAPL", Close: 1},
		{Symbol: "AAPL", Timestamp: at},
		{Symbol: "AAPL", Timestamp: at, Close: 1, Volume: -1},
	}
	for _, tk := range bad {
		assert.ErrorIs(t, ValidateTick(tk), errs.ErrMalformedInput)
	}
}

func TestPipelineThrottlesPerSymbol(t *testing.T) {
	s := &sink{}
	m := &nopMetrics{}
	p := NewTickPipeline(s, m, WithMaxRPS(2))
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Process(context.Background(), validTick(at)))
	}
	assert.Equal(t, 2, s.len())
	assert.Equal(t, 3, m.count("pipeline_throttle"))

	other := validTick(at)
	other.Symbol = "MSFT"
	require.NoError(t, p.Process(context.Background(), other))
	assert.Equal(t, 3, s.len())
}

func TestPipelineRejectsInvalid(t *testing.T) {
	s := &sink{}
	p := NewTickPipeline(s, &nopMetrics{})
	err := p.Process(context.Background(), models.Tick{Symbol: "AAPL"})
	assert.ErrorIs(t, err, errs.ErrMalformedInput)
	assert.Zero(t, s.len())
}

func TestPipelineBuffersAndFlushes(t *testing.T) {
	s := &sink{fail: 1}
	p := NewTickPipeline(s, &nopMetrics{}, WithMaxRPS(0), WithBufferSize(10))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := p.Process(ctx, validTick(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)))
	require.Error(t, err)
	assert.Equal(t, 1, p.Buffered())

	p.Start(ctx)
	assert.Eventually(t, func() bool { return s.len() == 1 }, time.Second, 5*time.Millisecond)
	p.Stop()
	assert.Zero(t, p.Buffered())
}
