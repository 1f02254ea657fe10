// Package features holds the pure indicator math used by the detector and the
// signal aggregator. Every function works on ascending series.
package features

import (
	"time"

	"FinAlert/internal/domain/models"
	"FinAlert/pkg/util"
)

// Closes extracts close prices.
func Closes(ticks []models.Tick) []float64 {
	out := make([]float64, len(ticks))
	for i, t := range ticks {
		out[i] = t.Close
	}
	return out
}

// ReferencePrice is the previous session close carried by the newest tick,
// falling back to the first close in the window.
func ReferencePrice(ticks []models.Tick) float64 {
	if len(ticks) == 0 {
		return 0
	}
	if pc := ticks[len(ticks)-1].PrevClose; pc > 0 {
		return pc
	}
	return ticks[0].Close
}

// PercentChange returns (last-ref)/ref in percent; 0 when ref is not positive.
func PercentChange(ref, last float64) float64 {
	if ref <= 0 {
		return 0
	}
	return (last - ref) / ref * 100
}

// VolumeRatio divides the newest volume by the mean of up to period volumes
// before it. It returns 0 when there is no prior volume.
func VolumeRatio(ticks []models.Tick, period int) float64 {
	n := len(ticks)
	if n < 2 || period < 1 {
		return 0
	}
	start := n - 1 - period
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, t := range ticks[start : n-1] {
		sum += t.Volume
	}
	avg := sum / float64(n-1-start)
	if avg <= 0 {
		return 0
	}
	return ticks[n-1].Volume / avg
}

// EMA is the recursive exponential moving average seeded with the first value,
// alpha = 2/(span+1).
func EMA(values []float64, span int) []float64 {
	if len(values) == 0 || span < 1 {
		return nil
	}
	alpha := 2 / (float64(span) + 1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI computes the relative strength index of the last period price changes
// using simple means of gains and losses. ok is false with fewer than period+1 closes.
func RSI(closes []float64, period int) (value float64, ok bool) {
	if period < 1 || len(closes) < period+1 {
		return 0, false
	}
	var gain, loss float64
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	switch {
	case gain == 0 && loss == 0:
		return 50, true
	case loss == 0:
		return 100, true
	}
	rs := (gain / float64(period)) / (loss / float64(period))
	return 100 - 100/(1+rs), true
}

// MACD returns the MACD line (fast EMA - slow EMA) and its signal EMA.
func MACD(closes []float64, fast, slow, signal int) (line, sig []float64) {
	if len(closes) == 0 {
		return nil, nil
	}
	f := EMA(closes, fast)
	s := EMA(closes, slow)
	line = make([]float64, len(closes))
	for i := range closes {
		line[i] = f[i] - s[i]
	}
	return line, EMA(line, signal)
}

// Resample keeps one bar per cadence bucket: last close, max high, min low,
// summed volume, timestamp of the last tick in the bucket. A non-positive
// cadence returns ticks unchanged.
func Resample(ticks []models.Tick, cadence time.Duration) []models.Tick {
	if cadence <= 0 || len(ticks) == 0 {
		return ticks
	}
	out := make([]models.Tick, 0, len(ticks))
	var bucket time.Time
	for i, t := range ticks {
		b := util.Bucket(t.Timestamp, cadence)
		if i == 0 || !b.Equal(bucket) {
			bucket = b
			out = append(out, t)
			continue
		}
		cur := &out[len(out)-1]
		cur.Timestamp = t.Timestamp
		cur.Close = t.Close
		cur.PrevClose = t.PrevClose
		if t.High > cur.High {
			cur.High = t.High
		}
		if t.Low > 0 && (cur.Low == 0 || t.Low < cur.Low) {
			cur.Low = t.Low
		}
		cur.Volume += t.Volume
	}
	return out
}

// MACDCross samples the series at cadence and returns the last two MACD points.
// It returns nil when fewer than slow samples exist.
func MACDCross(ticks []models.Tick, cadence time.Duration, fast, slow, signal int) *models.MACDState {
	bars := Resample(ticks, cadence)
	if len(bars) < slow || len(bars) < 2 {
		return nil
	}
	line, sig := MACD(Closes(bars), fast, slow, signal)
	n := len(bars)
	return &models.MACDState{
		Prev: models.MACDPoint{At: bars[n-2].Timestamp, Line: line[n-2], Signal: sig[n-2]},
		Curr: models.MACDPoint{At: bars[n-1].Timestamp, Line: line[n-1], Signal: sig[n-1]},
	}
}
