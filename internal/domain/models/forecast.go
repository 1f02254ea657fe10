package models

import "time"

// ForecastPoint is one day of the forecast model output.
type ForecastPoint struct {
	Date           time.Time `json:"date"`
	PredictedPrice float64   `json:"predicted_price"`
	LowerBound     float64   `json:"lower_bound"`
	UpperBound     float64   `json:"upper_bound"`
}

// ForecastDeviation compares the latest price with the forecast for the evaluation date.
type ForecastDeviation struct {
	Symbol         string    `json:"symbol"`
	EvaluationDate time.Time `json:"evaluation_date"`
	Forecast       float64   `json:"forecast"`
	Lower          float64   `json:"lower"`
	Upper          float64   `json:"upper"`
	LatestPrice    float64   `json:"latest_price"`
	Outside        bool      `json:"outside"`
	DeviationPct   float64   `json:"deviation_pct"`
}
