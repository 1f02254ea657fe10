package models

import (
	"fmt"
	"time"
)

// Classification grades a price anomaly.
type Classification string

const (
	ClassMild   Classification = "MILD"
	ClassSevere Classification = "SEVERE"
)

// PriceAnomaly is a price or volume move that crossed a detection threshold.
type PriceAnomaly struct {
	Symbol         string         `json:"symbol"`
	DetectedAt     time.Time      `json:"detected_at"`
	WindowStart    time.Time      `json:"window_start"`
	WindowEnd      time.Time      `json:"window_end"`
	ReferencePrice float64        `json:"reference_price"`
	LastPrice      float64        `json:"last_price"`
	PercentChange  float64        `json:"percent_change"`
	VolumeRatio    float64        `json:"volume_ratio"`
	Classification Classification `json:"classification"`
}

// Key is the natural key (symbol + detection window).
func (a PriceAnomaly) Key() string {
	return fmt.Sprintf("%s|%d|%d", a.Symbol, a.WindowStart.Unix(), a.WindowEnd.Unix())
}

// MoveSign returns +1, -1 or 0 for the direction of the price move.
func (a PriceAnomaly) MoveSign() int {
	switch {
	case a.PercentChange > 0:
		return 1
	case a.PercentChange < 0:
		return -1
	default:
		return 0
	}
}
