package service

import (
	"context"

	"FinAlert/internal/domain/models"
)

// SentimentScorer scores a text in [-1, 1]. The returned score has no NewsHash set.
type SentimentScorer interface {
	Score(ctx context.Context, text string) (models.SentimentScore, error)
}

// Forecaster returns the forecast for the next horizon days.
type Forecaster interface {
	Forecast(ctx context.Context, symbol string, horizon int) ([]models.ForecastPoint, error)
}
