package usecase

import (
	"fmt"
	"math"

	"FinAlert/internal/domain/models"
	"FinAlert/pkg/config"

	"github.com/shopspring/decimal"
)

// factorEvaluator fires at most one hit for a snapshot. Evaluators read only
// their own section and return false when it is missing.
type factorEvaluator struct {
	tag  models.FactorTag
	eval func(s *models.SignalSnapshot, r config.RulesConfig) (models.FactorHit, bool)
}

// factorTable is evaluated in order; the order is the order of factors in
// composite messages.
var factorTable = []factorEvaluator{
	{models.FactorPriceMove, evalPriceMove},
	{models.FactorVolumeSpike, evalVolumeSpike},
	{models.FactorRSIOverbought, evalRSIOverbought},
	{models.FactorRSIOversold, evalRSIOversold},
	{models.FactorMACDCrossUp, evalMACDCrossUp},
	{models.FactorMACDCrossDown, evalMACDCrossDown},
	{models.FactorSentimentPositive, evalSentimentPositive},
	{models.FactorSentimentNegative, evalSentimentNegative},
	{models.FactorSentimentSwing, evalSentimentSwing},
	{models.FactorForecastBreach, evalForecastBreach},
}

// EvaluateFactors runs the factor table against s.
func EvaluateFactors(s *models.SignalSnapshot, r config.RulesConfig) []models.FactorHit {
	var hits []models.FactorHit
	for _, f := range factorTable {
		if hit, ok := f.eval(s, r); ok {
			hit.Tag = f.tag
			hits = append(hits, hit)
		}
	}
	return hits
}

func evalPriceMove(s *models.SignalSnapshot, r config.RulesConfig) (models.FactorHit, bool) {
	if s.Price == nil {
		return models.FactorHit{}, false
	}
	move := math.Abs(s.Price.PercentChange)
	level, threshold := models.LevelWarning, r.PriceWarning
	switch {
	case move >= r.PriceCritical:
		level, threshold = models.LevelCritical, r.PriceCritical
	case move >= r.PriceWarning:
	default:
		return models.FactorHit{}, false
	}
	return models.FactorHit{
		Level:   level,
		Message: fmt.Sprintf("price moved %s%% (threshold %s%%)", signed(s.Price.PercentChange), num(threshold)),
		Metrics: map[string]any{"percent_change": round(s.Price.PercentChange, 4), "last_price": s.Price.LastPrice},
	}, true
}

func evalVolumeSpike(s *models.SignalSnapshot, r config.RulesConfig) (models.FactorHit, bool) {
	if s.Price == nil || s.Price.VolumeRatio < r.VolumeRatio {
		return models.FactorHit{}, false
	}
	return models.FactorHit{
		Level:   models.LevelWarning,
		Message: fmt.Sprintf("volume %sx trailing average (threshold %sx)", num(s.Price.VolumeRatio), num(r.VolumeRatio)),
		Metrics: map[string]any{"volume_ratio": round(s.Price.VolumeRatio, 4)},
	}, true
}

func evalRSIOverbought(s *models.SignalSnapshot, r config.RulesConfig) (models.FactorHit, bool) {
	if s.Indicators == nil || s.Indicators.RSI == nil || *s.Indicators.RSI < r.RSIOverbought {
		return models.FactorHit{}, false
	}
	rsi := *s.Indicators.RSI
	return models.FactorHit{
		Level:   models.LevelWarning,
		Message: fmt.Sprintf("RSI %s at or above %s", num(rsi), num(r.RSIOverbought)),
		Metrics: map[string]any{"rsi": round(rsi, 2)},
	}, true
}

func evalRSIOversold(s *models.SignalSnapshot, r config.RulesConfig) (models.FactorHit, bool) {
	if s.Indicators == nil || s.Indicators.RSI == nil || *s.Indicators.RSI > r.RSIOversold {
		return models.FactorHit{}, false
	}
	rsi := *s.Indicators.RSI
	return models.FactorHit{
		Level:   models.LevelWarning,
		Message: fmt.Sprintf("RSI %s at or below %s", num(rsi), num(r.RSIOversold)),
		Metrics: map[string]any{"rsi": round(rsi, 2)},
	}, true
}

func evalMACDCrossUp(s *models.SignalSnapshot, _ config.RulesConfig) (models.FactorHit, bool) {
	if s.Indicators == nil || s.Indicators.MACD == nil || !s.Indicators.MACD.CrossedUp() {
		return models.FactorHit{}, false
	}
	return models.FactorHit{
		Level:   models.LevelInfo,
		Message: "MACD crossed above its signal line",
		Metrics: macdMetrics(s.Indicators.MACD),
	}, true
}

func evalMACDCrossDown(s *models.SignalSnapshot, _ config.RulesConfig) (models.FactorHit, bool) {
	if s.Indicators == nil || s.Indicators.MACD == nil || !s.Indicators.MACD.CrossedDown() {
		return models.FactorHit{}, false
	}
	return models.FactorHit{
		Level:   models.LevelWarning,
		Message: "MACD crossed below its signal line",
		Metrics: macdMetrics(s.Indicators.MACD),
	}, true
}

func macdMetrics(m *models.MACDState) map[string]any {
	return map[string]any{"macd": round(m.Curr.Line, 4), "macd_signal": round(m.Curr.Signal, 4)}
}

func evalSentimentPositive(s *models.SignalSnapshot, r config.RulesConfig) (models.FactorHit, bool) {
	if s.Sentiment == nil || s.Sentiment.Samples == 0 || s.Sentiment.Mean < r.SentimentPositive {
		return models.FactorHit{}, false
	}
	msg := fmt.Sprintf("news sentiment %s over %d items (threshold %s)",
		num(s.Sentiment.Mean), s.Sentiment.Samples, num(r.SentimentPositive))
	return models.FactorHit{
		Level:   models.LevelInfo,
		Message: msg,
		Metrics: map[string]any{"sentiment_mean": round(s.Sentiment.Mean, 4), "samples": s.Sentiment.Samples},
	}, true
}

func evalSentimentNegative(s *models.SignalSnapshot, r config.RulesConfig) (models.FactorHit, bool) {
	if s.Sentiment == nil || s.Sentiment.Samples == 0 || s.Sentiment.Mean > r.SentimentNegative {
		return models.FactorHit{}, false
	}
	msg := fmt.Sprintf("news sentiment %s over %d items (threshold %s)",
		num(s.Sentiment.Mean), s.Sentiment.Samples, num(r.SentimentNegative))
	return models.FactorHit{
		Level:   models.LevelWarning,
		Message: msg,
		Metrics: map[string]any{"sentiment_mean": round(s.Sentiment.Mean, 4), "samples": s.Sentiment.Samples},
	}, true
}

func evalSentimentSwing(s *models.SignalSnapshot, r config.RulesConfig) (models.FactorHit, bool) {
	if s.Sentiment == nil || s.Sentiment.Swing == nil || *s.Sentiment.Swing < r.SentimentSwing {
		return models.FactorHit{}, false
	}
	return models.FactorHit{
		Level:   models.LevelWarning,
		Message: fmt.Sprintf("sentiment swung %s (threshold %s)", num(*s.Sentiment.Swing), num(r.SentimentSwing)),
		Metrics: map[string]any{"sentiment_swing": round(*s.Sentiment.Swing, 4)},
	}, true
}

// evalForecastBreach warns when the price leaves the forecast band and is
// critical when it stays inside the band yet sits ForecastDeviationCritical
// percent or more away from the predicted price.
func evalForecastBreach(s *models.SignalSnapshot, r config.RulesConfig) (models.FactorHit, bool) {
	if s.Forecast == nil {
		return models.FactorHit{}, false
	}
	f := s.Forecast
	direction := "lower"
	if f.LatestPrice > f.Forecast {
		direction = "upper"
	}
	metrics := map[string]any{
		"latest_price":  f.LatestPrice,
		"forecast":      f.Forecast,
		"lower":         f.Lower,
		"upper":         f.Upper,
		"deviation_pct": round(f.DeviationPct, 4),
		"direction":     direction,
	}

	switch {
	case f.LatestPrice > f.Upper:
		metrics["direction"] = "upper"
		return models.FactorHit{
			Level:   models.LevelWarning,
			Message: fmt.Sprintf("price %s above forecast upper bound %s", num(f.LatestPrice), num(f.Upper)),
			Metrics: metrics,
		}, true
	case f.LatestPrice < f.Lower:
		metrics["direction"] = "lower"
		return models.FactorHit{
			Level:   models.LevelWarning,
			Message: fmt.Sprintf("price %s below forecast lower bound %s", num(f.LatestPrice), num(f.Lower)),
			Metrics: metrics,
		}, true
	case r.ForecastDeviationCritical > 0 && math.Abs(f.DeviationPct) >= r.ForecastDeviationCritical:
		msg := fmt.Sprintf("price deviates %s%% from forecast %s (threshold %s%%)",
			signed(f.DeviationPct), num(f.Forecast), num(r.ForecastDeviationCritical))
		return models.FactorHit{Level: models.LevelCritical, Message: msg, Metrics: metrics}, true
	}
	return models.FactorHit{}, false
}

// num renders v with at most two decimals and no trailing zeros.
func num(v float64) string {
	return decimal.NewFromFloat(v).Round(2).String()
}

func signed(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	if d.IsPositive() {
		return "+" + d.String()
	}
	return d.String()
}

func round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
