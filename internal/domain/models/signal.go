package models

import "time"

// PriceSignal is the price/volume state of a symbol in one cycle.
type PriceSignal struct {
	LastPrice     float64
	PercentChange float64
	VolumeRatio   float64
	Anomaly       *PriceAnomaly
}

// MACDPoint is one sample of the MACD line and its signal line.
type MACDPoint struct {
	At     time.Time
	Line   float64
	Signal float64
}

// MACDState holds the two most recent samples at the crossing cadence.
type MACDState struct {
	Prev MACDPoint
	Curr MACDPoint
}

// CrossedUp reports the line moving from at-or-below to above the signal.
func (m MACDState) CrossedUp() bool {
	return m.Prev.Line <= m.Prev.Signal && m.Curr.Line > m.Curr.Signal
}

// CrossedDown reports the line moving from at-or-above to below the signal.
func (m MACDState) CrossedDown() bool {
	return m.Prev.Line >= m.Prev.Signal && m.Curr.Line < m.Curr.Signal
}

// IndicatorSignal carries technical indicators. Nil fields were not computable.
type IndicatorSignal struct {
	RSI  *float64
	MACD *MACDState
}

// SentimentSignal aggregates recent sentiment for a symbol.
type SentimentSignal struct {
	Mean    float64
	Samples int
	// Swing is |newest - oldest| over the swing samples; nil with fewer than two.
	Swing *float64
}

// SignalSnapshot is everything the aggregator sees for one symbol in one cycle.
// A nil section means the upstream source was unavailable and is excluded.
type SignalSnapshot struct {
	Symbol      string
	Name        string
	At          time.Time
	Price       *PriceSignal
	Indicators  *IndicatorSignal
	Sentiment   *SentimentSignal
	Forecast    *ForecastDeviation
	Unavailable map[string]string
}

// MarkUnavailable records why a section is missing.
func (s *SignalSnapshot) MarkUnavailable(source string, err error) {
	if s.Unavailable == nil {
		s.Unavailable = make(map[string]string)
	}
	if err != nil {
		s.Unavailable[source] = err.Error()
		return
	}
	s.Unavailable[source] = "no data"
}
