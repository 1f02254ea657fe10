package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"FinAlert/internal/domain/errs"
	"FinAlert/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) *config.Config {
	return &config.Config{
		Resilience: config.ResilienceConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    2 * time.Millisecond,
			Timeout:     200 * time.Millisecond,
		},
		Sentiment: config.SentimentConfig{URL: url},
		Forecast:  config.ForecastConfig{URL: url, Horizon: 5},
	}
}

func TestSentimentScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sentiment", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "profit up", body["text"])
		_, _ = w.Write([]byte(`{"score":1.4,"confidence":0.9}`))
	}))
	defer srv.Close()

	s := NewHTTPSentimentScorer(testConfig(srv.URL), nil)
	got, err := s.Score(context.Background(), "profit up")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Score)
	assert.Equal(t, 0.9, got.Confidence)
	assert.False(t, got.ScoredAt.IsZero())
}

func TestSentimentRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewHTTPSentimentScorer(testConfig(srv.URL), nil)
	_, err := s.Score(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrSignalUnavailable)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSentimentClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewHTTPSentimentScorer(testConfig(srv.URL), nil)
	_, err := s.Score(context.Background(), "x")
	assert.ErrorIs(t, err, errs.ErrSignalUnavailable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSentimentTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Resilience.MaxAttempts = 1
	cfg.Resilience.Timeout = 20 * time.Millisecond

	s := NewHTTPSentimentScorer(cfg, nil)
	start := time.Now()
	_, err := s.Score(context.Background(), "x")
	assert.ErrorIs(t, err, errs.ErrSignalUnavailable)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSentimentMissingScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"confidence":0.5}`))
	}))
	defer srv.Close()

	_, err := NewHTTPSentimentScorer(testConfig(srv.URL), nil).Score(context.Background(), "x")
	assert.ErrorIs(t, err, errs.ErrSignalUnavailable)
	assert.ErrorIs(t, err, errs.ErrMalformedInput)
}

func TestUnconfiguredServiceIsUnavailable(t *testing.T) {
	_, err := NewHTTPSentimentScorer(testConfig(""), nil).Score(context.Background(), "x")
	assert.ErrorIs(t, err, errs.ErrSignalUnavailable)

	_, err = NewHTTPForecaster(testConfig(""), nil).Forecast(context.Background(), "600519", 5)
	assert.ErrorIs(t, err, errs.ErrSignalUnavailable)
}

func TestForecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast", r.URL.Path)
		var body forecastRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "600519", body.Symbol)
		assert.Equal(t, 5, body.Horizon)
		_, _ = w.Write([]byte(`[
			{"date":"2024-03-06","predicted_price":101,"lower_bound":99,"upper_bound":103},
			{"date":"2024-03-05","predicted_price":100,"lower_bound":102,"upper_bound":98}
		]`))
	}))
	defer srv.Close()

	pts, err := NewHTTPForecaster(testConfig(srv.URL), nil).Forecast(context.Background(), "600519", 5)
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), pts[0].Date)
	assert.Equal(t, 98.0, pts[0].LowerBound)
	assert.Equal(t, 102.0, pts[0].UpperBound)
	assert.Equal(t, 101.0, pts[1].PredictedPrice)
}

func TestForecastBadDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"date":"soon","predicted_price":1}]`))
	}))
	defer srv.Close()

	_, err := NewHTTPForecaster(testConfig(srv.URL), nil).Forecast(context.Background(), "600519", 5)
	assert.ErrorIs(t, err, errs.ErrMalformedInput)
}
