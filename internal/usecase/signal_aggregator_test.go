package usecase

import (
	"testing"
	"time"

	"FinAlert/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestAggregatePriceMoveWarning(t *testing.T) {
	agg := NewSignalAggregator(testConfig(t))
	snap := &models.SignalSnapshot{
		Symbol: "600519",
		Name:   "Moutai",
		At:     time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		Price:  &models.PriceSignal{LastPrice: 104.2, PercentChange: 4.2, VolumeRatio: 1},
	}

	got := agg.Aggregate(snap)
	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, models.FactorPriceMove, c.Type)
	assert.Equal(t, models.LevelWarning, c.Level)
	assert.Contains(t, c.Message, "4.2%")
	assert.Equal(t, "price moved +4.2% (threshold 3%)", c.Message)
	assert.Equal(t, 4.2, c.Metrics["percent_change"])
}

func TestAggregateCompositeIsCritical(t *testing.T) {
	agg := NewSignalAggregator(testConfig(t))
	snap := &models.SignalSnapshot{
		Symbol:     "600519",
		Price:      &models.PriceSignal{LastPrice: 106, PercentChange: 6, VolumeRatio: 1},
		Indicators: &models.IndicatorSignal{RSI: ptr(72)},
	}

	got := agg.Aggregate(snap)
	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, models.TypeComposite, c.Type)
	assert.Equal(t, models.LevelCritical, c.Level)
	assert.Equal(t, []models.FactorTag{models.FactorPriceMove, models.FactorRSIOverbought}, c.Tags())
}

func TestAggregateNothingFires(t *testing.T) {
	agg := NewSignalAggregator(testConfig(t))
	snap := &models.SignalSnapshot{
		Symbol:     "600519",
		Price:      &models.PriceSignal{LastPrice: 101, PercentChange: 1, VolumeRatio: 1.2},
		Indicators: &models.IndicatorSignal{RSI: ptr(55)},
		Sentiment:  &models.SentimentSignal{Mean: 0.1, Samples: 3, Swing: ptr(0.1)},
	}
	assert.Empty(t, agg.Aggregate(snap))
}

func TestMissingInputsAreExcluded(t *testing.T) {
	// a nil section must not be read as zero, e.g. RSI 0 would be oversold
	hits := EvaluateFactors(&models.SignalSnapshot{Symbol: "600519"}, testConfig(t).Rules)
	assert.Empty(t, hits)
}

func TestEvaluateFactorsTable(t *testing.T) {
	rules := testConfig(t).Rules
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		snap  models.SignalSnapshot
		tag   models.FactorTag
		level models.Level
	}{
		{
			name:  "price drop critical",
			snap:  models.SignalSnapshot{Price: &models.PriceSignal{PercentChange: -5.5, VolumeRatio: 1}},
			tag:   models.FactorPriceMove,
			level: models.LevelCritical,
		},
		{
			name:  "volume spike",
			snap:  models.SignalSnapshot{Price: &models.PriceSignal{PercentChange: 0.5, VolumeRatio: 2.5}},
			tag:   models.FactorVolumeSpike,
			level: models.LevelWarning,
		},
		{
			name:  "rsi oversold",
			snap:  models.SignalSnapshot{Indicators: &models.IndicatorSignal{RSI: ptr(30)}},
			tag:   models.FactorRSIOversold,
			level: models.LevelWarning,
		},
		{
			name: "macd cross up",
			snap: models.SignalSnapshot{Indicators: &models.IndicatorSignal{MACD: &models.MACDState{
				Prev: models.MACDPoint{At: at.Add(-time.Minute), Line: -0.1, Signal: 0},
				Curr: models.MACDPoint{At: at, Line: 0.2, Signal: 0.1},
			}}},
			tag:   models.FactorMACDCrossUp,
			level: models.LevelInfo,
		},
		{
			name: "macd cross down",
			snap: models.SignalSnapshot{Indicators: &models.IndicatorSignal{MACD: &models.MACDState{
				Prev: models.MACDPoint{At: at.Add(-time.Minute), Line: 0.2, Signal: 0.1},
				Curr: models.MACDPoint{At: at, Line: -0.1, Signal: 0},
			}}},
			tag:   models.FactorMACDCrossDown,
			level: models.LevelWarning,
		},
		{
			name:  "sentiment extreme positive",
			snap:  models.SignalSnapshot{Sentiment: &models.SentimentSignal{Mean: 0.75, Samples: 4}},
			tag:   models.FactorSentimentPositive,
			level: models.LevelInfo,
		},
		{
			name:  "sentiment extreme negative",
			snap:  models.SignalSnapshot{Sentiment: &models.SentimentSignal{Mean: -0.7, Samples: 4}},
			tag:   models.FactorSentimentNegative,
			level: models.LevelWarning,
		},
		{
			name:  "sentiment swing",
			snap:  models.SignalSnapshot{Sentiment: &models.SentimentSignal{Mean: 0.1, Samples: 3, Swing: ptr(0.6)}},
			tag:   models.FactorSentimentSwing,
			level: models.LevelWarning,
		},
		{
			name: "forecast breach",
			snap: models.SignalSnapshot{Forecast: &models.ForecastDeviation{
				Forecast: 100, Lower: 95, Upper: 105, LatestPrice: 108, Outside: true, DeviationPct: 8,
			}},
			tag:   models.FactorForecastBreach,
			level: models.LevelWarning,
		},
		{
			name: "forecast far off inside a wide band",
			snap: models.SignalSnapshot{Forecast: &models.ForecastDeviation{
				Forecast: 100, Lower: 80, Upper: 120, LatestPrice: 88, DeviationPct: -12,
			}},
			tag:   models.FactorForecastBreach,
			level: models.LevelCritical,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := EvaluateFactors(&tt.snap, rules)
			require.Len(t, hits, 1)
			assert.Equal(t, tt.tag, hits[0].Tag)
			assert.Equal(t, tt.level, hits[0].Level)
			assert.NotEmpty(t, hits[0].Message)
		})
	}
}

func TestForecastBreachDirection(t *testing.T) {
	rules := testConfig(t).Rules
	assert.Equal(t, 10.0, rules.ForecastDeviationCritical)

	tests := []struct {
		name      string
		dev       models.ForecastDeviation
		fires     bool
		level     models.Level
		direction string
	}{
		{"above upper bound", models.ForecastDeviation{Forecast: 100, Lower: 95, Upper: 105, LatestPrice: 108, DeviationPct: 8}, true, models.LevelWarning, "upper"},
		{"below lower bound", models.ForecastDeviation{Forecast: 100, Lower: 95, Upper: 105, LatestPrice: 93, DeviationPct: -7}, true, models.LevelWarning, "lower"},
		{"inside band far above", models.ForecastDeviation{Forecast: 100, Lower: 80, Upper: 120, LatestPrice: 110, DeviationPct: 10}, true, models.LevelCritical, "upper"},
		{"inside band close", models.ForecastDeviation{Forecast: 100, Lower: 80, Upper: 120, LatestPrice: 105, DeviationPct: 5}, false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := tt.dev
			hits := EvaluateFactors(&models.SignalSnapshot{Forecast: &dev}, rules)
			if !tt.fires {
				assert.Empty(t, hits)
				return
			}
			require.Len(t, hits, 1)
			assert.Equal(t, models.FactorForecastBreach, hits[0].Tag)
			assert.Equal(t, tt.level, hits[0].Level)
			assert.Equal(t, tt.direction, hits[0].Metrics["direction"])
		})
	}

	rules.ForecastDeviationCritical = 0
	wide := models.ForecastDeviation{Forecast: 100, Lower: 50, Upper: 150, LatestPrice: 130, DeviationPct: 30}
	assert.Empty(t, EvaluateFactors(&models.SignalSnapshot{Forecast: &wide}, rules))
}

func TestAggregateSentiment(t *testing.T) {
	assert.Nil(t, AggregateSentiment(nil, 3))

	one := AggregateSentiment([]float64{0.4}, 3)
	require.NotNil(t, one)
	assert.Nil(t, one.Swing)

	sig := AggregateSentiment([]float64{-0.9, 0.1, -0.2, 0.5}, 3)
	require.NotNil(t, sig)
	assert.InDelta(t, -0.125, sig.Mean, 1e-9)
	assert.Equal(t, 4, sig.Samples)
	require.NotNil(t, sig.Swing)
	assert.InDelta(t, 0.4, *sig.Swing, 1e-9)
}

func TestForecastDeviationPicksSameDayThenNext(t *testing.T) {
	at := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	points := []models.ForecastPoint{
		{Date: time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), PredictedPrice: 110, LowerBound: 105, UpperBound: 115},
		{Date: time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), PredictedPrice: 100, LowerBound: 95, UpperBound: 105},
	}

	dev := ForecastDeviation("600519", points, 108, at)
	require.NotNil(t, dev)
	assert.Equal(t, 100.0, dev.Forecast)
	assert.True(t, dev.Outside)
	assert.InDelta(t, 8, dev.DeviationPct, 1e-9)

	points = append(points, models.ForecastPoint{Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), PredictedPrice: 107, LowerBound: 104, UpperBound: 110})
	dev = ForecastDeviation("600519", points, 108, at)
	require.NotNil(t, dev)
	assert.Equal(t, 107.0, dev.Forecast)
	assert.False(t, dev.Outside)

	assert.Nil(t, ForecastDeviation("600519", points[:0], 108, at))
}
