package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"FinAlert/internal/domain/models"
	domrepo "FinAlert/internal/domain/repository"
)

const defaultTickRetention = 10000

// MemoryStore is a process-local Store used for tests and single-node runs.
type MemoryStore struct {
	mu           sync.RWMutex
	retention    int
	ticks        map[string][]models.Tick // ascending by timestamp
	anomalies    map[string]models.PriceAnomaly
	news         map[string]models.NewsItem
	sentiment    map[string]models.SentimentScore
	correlations map[string]models.Correlation
	alerts       map[string]models.Alert // by fingerprint
	alertIDs     map[string]string       // id -> fingerprint
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithTickRetention keeps at most n newest ticks per symbol. n <= 0 keeps every tick.
func WithTickRetention(n int) MemoryStoreOption {
	return func(m *MemoryStore) { m.retention = n }
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	m := &MemoryStore{
		retention:    defaultTickRetention,
		ticks:        make(map[string][]models.Tick),
		anomalies:    make(map[string]models.PriceAnomaly),
		news:         make(map[string]models.NewsItem),
		sentiment:    make(map[string]models.SentimentScore),
		correlations: make(map[string]models.Correlation),
		alerts:       make(map[string]models.Alert),
		alertIDs:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StoreTicks merges ticks by (symbol, timestamp); a later write replaces an
// earlier one. Each series is trimmed to the newest retention ticks.
func (m *MemoryStore) StoreTicks(_ context.Context, ticks []models.Tick) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range ticks {
		if t.Symbol == "" || t.Timestamp.IsZero() {
			continue
		}
		series := m.ticks[t.Symbol]
		i := sort.Search(len(series), func(i int) bool { return !series[i].Timestamp.Before(t.Timestamp) })
		if i < len(series) && series[i].Timestamp.Equal(t.Timestamp) {
			series[i] = t
			continue
		}
		series = append(series, models.Tick{})
		copy(series[i+1:], series[i:])
		series[i] = t
		if m.retention > 0 && len(series) > m.retention {
			series = series[len(series)-m.retention:]
		}
		m.ticks[t.Symbol] = series
	}
	return nil
}

func (m *MemoryStore) LatestTicks(_ context.Context, symbol string, n int) ([]models.Tick, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	series := m.ticks[symbol]
	if n > 0 && len(series) > n {
		series = series[len(series)-n:]
	}
	out := make([]models.Tick, len(series))
	copy(out, series)
	return out, nil
}

func (m *MemoryStore) UpsertAnomaly(_ context.Context, a models.PriceAnomaly) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.anomalies[a.Key()]; ok {
		return false, nil
	}
	m.anomalies[a.Key()] = a
	return true, nil
}

func (m *MemoryStore) ListAnomalies(_ context.Context, symbol string, from, to time.Time, limit int) ([]models.PriceAnomaly, error) {
	m.mu.RLock()
	var out []models.PriceAnomaly
	for _, a := range m.anomalies {
		if a.Symbol == symbol && inRange(a.DetectedAt, from, to) {
			out = append(out, a)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	return truncate(out, limit), nil
}

func (m *MemoryStore) UpsertNews(_ context.Context, n models.NewsItem) (bool, error) {
	n.EnsureHash()
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.news[n.Hash]; ok {
		return false, nil
	}
	m.news[n.Hash] = n
	return true, nil
}

func (m *MemoryStore) NewsBetween(_ context.Context, from, to time.Time) ([]models.NewsItem, error) {
	m.mu.RLock()
	var out []models.NewsItem
	for _, n := range m.news {
		if inRange(n.PublishedAt, from, to) {
			out = append(out, n)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	return out, nil
}

func (m *MemoryStore) GetSentiment(_ context.Context, newsHash string) (*models.SentimentScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sentiment[newsHash]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryStore) UpsertSentiment(_ context.Context, s models.SentimentScore) error {
	m.mu.Lock()
	m.sentiment[s.NewsHash] = s
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) UpsertCorrelation(_ context.Context, c models.Correlation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.correlations[c.Key()]; ok {
		return false, nil
	}
	m.correlations[c.Key()] = c
	return true, nil
}

func (m *MemoryStore) ListCorrelations(_ context.Context, symbol string, from, to time.Time, limit int) ([]models.Correlation, error) {
	m.mu.RLock()
	var out []models.Correlation
	for _, c := range m.correlations {
		if c.Symbol == symbol && inRange(c.AnomalyTime, from, to) {
			out = append(out, c)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].AnomalyTime.Equal(out[j].AnomalyTime) {
			return out[i].AnomalyTime.After(out[j].AnomalyTime)
		}
		return out[i].Score > out[j].Score
	})
	return truncate(out, limit), nil
}

func (m *MemoryStore) UpsertAlert(_ context.Context, a models.Alert) (models.Alert, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.alerts[a.Fingerprint]; ok {
		return existing, false, nil
	}
	m.alerts[a.Fingerprint] = a
	m.alertIDs[a.ID] = a.Fingerprint
	return a, true, nil
}

func (m *MemoryStore) QueryAlerts(_ context.Context, q models.AlertQuery) ([]models.Alert, error) {
	m.mu.RLock()
	var out []models.Alert
	for _, a := range m.alerts {
		if a.Symbol != q.Symbol || !inRange(a.CreatedAt, q.From, q.To) {
			continue
		}
		if q.Level != "" && a.Level != q.Level {
			continue
		}
		out = append(out, a)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return truncate(out, q.Limit), nil
}

func (m *MemoryStore) Acknowledge(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fp, ok := m.alertIDs[id]
	if !ok {
		return false, nil
	}
	a := m.alerts[fp]
	if !a.Acknowledged {
		at = at.UTC()
		a.Acknowledged = true
		a.AcknowledgedAt = &at
		m.alerts[fp] = a
	}
	return true, nil
}

func (m *MemoryStore) Health(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

var _ domrepo.Store = (*MemoryStore)(nil)
