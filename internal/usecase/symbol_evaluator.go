package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"FinAlert/internal/domain/models"
	domrepo "FinAlert/internal/domain/repository"
	domsvc "FinAlert/internal/domain/service"
	"FinAlert/internal/services/features"
	"FinAlert/pkg/config"
	applogger "FinAlert/pkg/logger"
	"FinAlert/pkg/util"
)

// EvaluationResult is what one cycle produced for one symbol.
type EvaluationResult struct {
	Symbol       string
	Snapshot     *models.SignalSnapshot
	Correlations []models.Correlation
	Candidates   []models.AlertCandidate
	Alerts       []models.Alert
	Suppressed   int
}

// SymbolEvaluator runs one evaluation cycle for a symbol.
type SymbolEvaluator struct {
	cfg        *config.Config
	ticks      domrepo.TickStore
	news       domrepo.NewsStore
	detector   *AnomalyDetector
	correlator *CorrelationScorer
	sentiment  *SentimentLookup
	forecaster domsvc.Forecaster
	aggregator *SignalAggregator
	engine     *AlertEngine
	metrics    domrepo.Metrics
	l          *applogger.Logger
	now        func() time.Time
}

func NewSymbolEvaluator(
	cfg *config.Config,
	ticks domrepo.TickStore,
	news domrepo.NewsStore,
	detector *AnomalyDetector,
	correlator *CorrelationScorer,
	sentiment *SentimentLookup,
	forecaster domsvc.Forecaster,
	aggregator *SignalAggregator,
	engine *AlertEngine,
	metrics domrepo.Metrics,
	l *applogger.Logger,
) *SymbolEvaluator {
	return &SymbolEvaluator{
		cfg:        cfg,
		ticks:      ticks,
		news:       news,
		detector:   detector,
		correlator: correlator,
		sentiment:  sentiment,
		forecaster: forecaster,
		aggregator: aggregator,
		engine:     engine,
		metrics:    metrics,
		l:          l,
		now:        time.Now,
	}
}

// Evaluate runs the detector, correlation, signal collection, aggregation and
// alerting for symbol. Unavailable signals are excluded from the snapshot; only
// a failed bar read or a failed alert persist fails the cycle.
func (e *SymbolEvaluator) Evaluate(ctx context.Context, symbol string) (*EvaluationResult, error) {
	start := time.Now()
	defer func() { e.metrics.RecordLatency("evaluate_cycle", time.Since(start).Seconds()) }()

	bars, err := e.ticks.LatestTicks(ctx, symbol, e.cfg.Detector.Bars)
	if err != nil {
		e.metrics.RecordError("read_bars")
		return nil, fmt.Errorf("read bars %s: %w", symbol, err)
	}

	name := e.cfg.SymbolName(symbol)
	snap := &models.SignalSnapshot{Symbol: symbol, Name: name, At: e.now().UTC()}
	res := &EvaluationResult{Symbol: symbol, Snapshot: snap}

	price, err := e.detector.DetectAndRecord(ctx, bars)
	if err != nil {
		e.l.Error("record anomaly failed", applogger.String("symbol", symbol), applogger.Error(err))
	}
	if price != nil {
		snap.Price = price
		e.metrics.RecordLastPrice(symbol, price.LastPrice)
	} else {
		snap.MarkUnavailable("price", nil)
	}
	snap.Indicators = e.indicators(bars)

	type item struct {
		name string
		val  interface{}
		err  error
	}
	ch := make(chan item, 3)
	var wg sync.WaitGroup

	if price != nil && price.Anomaly != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := e.correlator.ScoreAnomaly(ctx, *price.Anomaly, name)
			ch <- item{"correlation", v, err}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := e.sentimentSignal(ctx, symbol, name, snap.At)
		ch <- item{"sentiment", v, err}
	}()
	if price != nil && len(bars) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := e.forecastDeviation(ctx, symbol, bars[len(bars)-1])
			ch <- item{"forecast", v, err}
		}()
	}

	go func() { wg.Wait(); close(ch) }()

	for it := range ch {
		switch it.name {
		case "correlation":
			res.Correlations, _ = it.val.([]models.Correlation)
			if it.err != nil {
				e.l.Warn("correlation incomplete", applogger.String("symbol", symbol), applogger.Error(it.err))
			}
		case "sentiment":
			if it.err != nil {
				snap.MarkUnavailable("sentiment", it.err)
				continue
			}
			snap.Sentiment = it.val.(*models.SentimentSignal)
		case "forecast":
			if it.err != nil {
				e.metrics.RecordSignalUnavailable("forecast")
				snap.MarkUnavailable("forecast", it.err)
				continue
			}
			snap.Forecast = it.val.(*models.ForecastDeviation)
		}
	}

	res.Candidates = e.aggregator.Aggregate(snap)
	var errs []error
	for _, c := range res.Candidates {
		a, err := e.engine.Submit(ctx, c)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if a == nil {
			res.Suppressed++
			continue
		}
		res.Alerts = append(res.Alerts, *a)
	}
	return res, errors.Join(errs...)
}

func (e *SymbolEvaluator) indicators(bars []models.Tick) *models.IndicatorSignal {
	in := e.cfg.Indicators
	sig := &models.IndicatorSignal{
		MACD: features.MACDCross(bars, in.CrossCadence, in.MACDFast, in.MACDSlow, in.MACDSignal),
	}
	if rsi, ok := features.RSI(features.Closes(bars), in.RSIPeriod); ok {
		sig.RSI = &rsi
	}
	if sig.RSI == nil && sig.MACD == nil {
		return nil
	}
	return sig
}

// sentimentSignal scores the recent news that mention symbol, newest
// cfg.Sentiment.MaxItems first.
func (e *SymbolEvaluator) sentimentSignal(ctx context.Context, symbol, name string, at time.Time) (*models.SentimentSignal, error) {
	sc := e.cfg.Sentiment
	lctx, cancel := context.WithTimeout(ctx, e.cfg.Resilience.Timeout)
	items, err := e.news.NewsBetween(lctx, at.Add(-sc.Lookback), at)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("recent news: %w", err)
	}

	relevant := make([]models.NewsItem, 0, len(items))
	for _, n := range items {
		if Mentions(n, symbol, name) {
			relevant = append(relevant, n)
		}
	}
	if len(relevant) == 0 {
		return nil, fmt.Errorf("no recent news for %s", symbol)
	}
	sort.Slice(relevant, func(i, j int) bool { return relevant[i].PublishedAt.After(relevant[j].PublishedAt) })
	if sc.MaxItems > 0 && len(relevant) > sc.MaxItems {
		relevant = relevant[:sc.MaxItems]
	}

	scores := make([]*float64, len(relevant))
	var wg sync.WaitGroup
	for i, n := range relevant {
		wg.Add(1)
		go func(i int, n models.NewsItem) {
			defer wg.Done()
			if s, err := e.sentiment.Get(ctx, n); err == nil {
				v := s.Score
				scores[i] = &v
			}
		}(i, n)
	}
	wg.Wait()

	// oldest first
	ordered := make([]float64, 0, len(scores))
	for i := len(scores) - 1; i >= 0; i-- {
		if scores[i] != nil {
			ordered = append(ordered, *scores[i])
		}
	}
	sig := AggregateSentiment(ordered, sc.SwingSamples)
	if sig == nil {
		return nil, fmt.Errorf("sentiment unavailable for all %d items", len(relevant))
	}
	return sig, nil
}

// AggregateSentiment summarises scores given oldest first. Swing compares the
// newest score with the oldest of the newest swingSamples scores.
func AggregateSentiment(scores []float64, swingSamples int) *models.SentimentSignal {
	if len(scores) == 0 {
		return nil
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	sig := &models.SentimentSignal{Mean: sum / float64(len(scores)), Samples: len(scores)}

	window := scores
	if swingSamples > 0 && len(window) > swingSamples {
		window = window[len(window)-swingSamples:]
	}
	if len(window) >= 2 {
		swing := math.Abs(window[len(window)-1] - window[0])
		sig.Swing = &swing
	}
	return sig
}

func (e *SymbolEvaluator) forecastDeviation(ctx context.Context, symbol string, latest models.Tick) (*models.ForecastDeviation, error) {
	points, err := e.forecaster.Forecast(ctx, symbol, e.cfg.Forecast.Horizon)
	if err != nil {
		return nil, err
	}
	dev := ForecastDeviation(symbol, points, latest.Close, latest.Timestamp)
	if dev == nil {
		return nil, fmt.Errorf("empty forecast for %s", symbol)
	}
	return dev, nil
}

// ForecastDeviation compares price with the forecast point for the day of at,
// or the first point after it when that day is not forecast.
func ForecastDeviation(symbol string, points []models.ForecastPoint, price float64, at time.Time) *models.ForecastDeviation {
	day := util.Bucket(at.UTC(), 24*time.Hour)
	var pick *models.ForecastPoint
	for i := range points {
		d := util.Bucket(points[i].Date.UTC(), 24*time.Hour)
		if d.Equal(day) {
			pick = &points[i]
			break
		}
		if d.After(day) && (pick == nil || points[i].Date.Before(pick.Date)) {
			pick = &points[i]
		}
	}
	if pick == nil {
		return nil
	}

	dev := &models.ForecastDeviation{
		Symbol:         symbol,
		EvaluationDate: pick.Date,
		Forecast:       pick.PredictedPrice,
		Lower:          pick.LowerBound,
		Upper:          pick.UpperBound,
		LatestPrice:    price,
		Outside:        price < pick.LowerBound || price > pick.UpperBound,
	}
	if pick.PredictedPrice != 0 {
		dev.DeviationPct = (price - pick.PredictedPrice) / pick.PredictedPrice * 100
	}
	return dev
}
