package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinAlert/internal/domain/models"
	domrepo "FinAlert/internal/domain/repository"
	"FinAlert/pkg/cache"
	applogger "FinAlert/pkg/logger"
)

// AlertsQuery serves the read side: the realtime queue view and the durable
// history per symbol.
type AlertsQuery struct {
	store    domrepo.Store
	queue    domrepo.DeliveryQueue
	cache    cache.Service
	cacheTTL time.Duration
	capacity int
	l        *applogger.Logger
}

// NewAlertsQuery builds the query side. c may be nil or ttl zero to disable
// caching of history reads.
func NewAlertsQuery(store domrepo.Store, queue domrepo.DeliveryQueue, c cache.Service, ttl time.Duration, capacity int, l *applogger.Logger) *AlertsQuery {
	return &AlertsQuery{store: store, queue: queue, cache: c, cacheTTL: ttl, capacity: capacity, l: l}
}

// Realtime returns up to limit alerts from the delivery queue, newest first.
func (q *AlertsQuery) Realtime(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 || limit > q.capacity {
		limit = q.capacity
	}
	alerts, err := q.queue.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent alerts: %w", err)
	}
	return alerts, nil
}

type HistoryParams struct {
	Symbol string
	From   time.Time
	To     time.Time
	Level  models.Level
	Limit  int // 0 means no limit
}

// History reads the durable store, newest first.
func (q *AlertsQuery) History(ctx context.Context, p HistoryParams) ([]models.Alert, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if !p.From.IsZero() && !p.To.IsZero() && p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}

	key := cache.Key("history", p.Symbol, p.From.Unix(), p.To.Unix(), p.Level, p.Limit)
	if q.cacheable() {
		var cached []models.Alert
		if err := q.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			q.l.Debug("history cache read failed", applogger.Error(err))
		}
	}

	alerts, err := q.store.QueryAlerts(ctx, models.AlertQuery{
		Symbol: p.Symbol,
		From:   p.From,
		To:     p.To,
		Level:  p.Level,
		Limit:  p.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	if q.cacheable() {
		if err := q.cache.Set(ctx, key, alerts, q.cacheTTL); err != nil {
			q.l.Debug("history cache write failed", applogger.Error(err))
		}
	}
	return alerts, nil
}

func (q *AlertsQuery) cacheable() bool { return q.cache != nil && q.cacheTTL > 0 }

// Acknowledge marks the alert; found is false for an unknown id.
func (q *AlertsQuery) Acknowledge(ctx context.Context, id string) (found bool, err error) {
	return q.store.Acknowledge(ctx, id, time.Now())
}

func (q *AlertsQuery) Anomalies(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.PriceAnomaly, error) {
	return q.store.ListAnomalies(ctx, symbol, from, to, limit)
}

func (q *AlertsQuery) Correlations(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.Correlation, error) {
	return q.store.ListCorrelations(ctx, symbol, from, to, limit)
}

func (q *AlertsQuery) Health(ctx context.Context) error { return q.store.Health(ctx) }
