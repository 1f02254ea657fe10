package repository

import (
	"context"
	"time"

	"FinAlert/internal/domain/models"
)

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// TickStore keeps the raw price series. LatestTicks returns ascending by time.
type TickStore interface {
	StoreTicks(ctx context.Context, ticks []models.Tick) error
	LatestTicks(ctx context.Context, symbol string, n int) ([]models.Tick, error)
}

type AnomalyStore interface {
	UpsertAnomaly(ctx context.Context, a models.PriceAnomaly) (created bool, err error)
	ListAnomalies(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.PriceAnomaly, error)
}

// NewsStore holds news keyed by content hash and the sentiment cached per hash.
// GetSentiment returns nil, nil when no score is cached.
type NewsStore interface {
	UpsertNews(ctx context.Context, n models.NewsItem) (created bool, err error)
	NewsBetween(ctx context.Context, from, to time.Time) ([]models.NewsItem, error)
	GetSentiment(ctx context.Context, newsHash string) (*models.SentimentScore, error)
	UpsertSentiment(ctx context.Context, s models.SentimentScore) error
}

type CorrelationStore interface {
	UpsertCorrelation(ctx context.Context, c models.Correlation) (created bool, err error)
	ListCorrelations(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.Correlation, error)
}

// AlertStore persists alerts keyed by fingerprint. UpsertAlert returns the stored
// record, which is the pre-existing one when the fingerprint was already taken.
type AlertStore interface {
	UpsertAlert(ctx context.Context, a models.Alert) (stored models.Alert, created bool, err error)
	QueryAlerts(ctx context.Context, q models.AlertQuery) ([]models.Alert, error)
	Acknowledge(ctx context.Context, id string, at time.Time) (bool, error)
}

// Store is the durable store. All list queries are ordered newest first.
type Store interface {
	TickStore
	AnomalyStore
	NewsStore
	CorrelationStore
	AlertStore
	Health(ctx context.Context) error
	Close() error
}

// DeliveryQueue is the bounded most-recent-first alert view.
type DeliveryQueue interface {
	Push(ctx context.Context, a models.Alert) error
	Recent(ctx context.Context, limit int) ([]models.Alert, error)
}

// FingerprintRegistry tracks OPEN fingerprints. Open is an atomic
// check-and-set: it returns true only for the caller that moved fp from
// CLOSED to OPEN. An entry closes itself when window elapses.
type FingerprintRegistry interface {
	Open(ctx context.Context, fingerprint, alertID string, window time.Duration) (bool, error)
	Release(ctx context.Context, fingerprint string) error
}

// AlertPublisher pushes alerts to subscribers on top of the pull API.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, a models.Alert) error
	Close() error
}

type Metrics interface {
	RecordIngested(source, symbol string)
	RecordAnomaly(symbol, classification string)
	RecordCorrelation(result string)
	RecordAlert(symbol, alertType, level string)
	RecordSuppressed(alertType string)
	RecordSignalUnavailable(source string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
