package usecase

import (
	"context"
	"testing"
	"time"

	"FinAlert/internal/domain/models"
	"FinAlert/internal/repository"
	"FinAlert/pkg/cache"
	applogger "FinAlert/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAnomaly(at time.Time, pct float64) models.PriceAnomaly {
	return models.PriceAnomaly{
		Symbol:         "600519",
		DetectedAt:     at,
		WindowStart:    at.Add(-4 * time.Hour),
		WindowEnd:      at,
		ReferencePrice: 100,
		LastPrice:      100 + pct,
		PercentChange:  pct,
		Classification: models.ClassMild,
	}
}

func newsAt(title string, at time.Time) models.NewsItem {
	n := models.NewsItem{Source: "wire", Title: title, Body: "markets were busy", PublishedAt: at}
	n.EnsureHash()
	return n
}

func TestScorePairThresholdBoundary(t *testing.T) {
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	a := testAnomaly(at, 4.2)
	p := PairParams{Lookback: 2 * time.Hour, Lookahead: time.Hour, NeutralBand: 0.2}
	positive := 0.8

	near := ScorePair(a, newsAt("Sector rally continues", at.Add(-81*time.Minute)), &positive, "Moutai", p)
	assert.InDelta(t, 0.55, near.TimeProximity, 1e-9)
	assert.Equal(t, 0.0, near.ExplicitMention)
	assert.Equal(t, 1.0, near.SentimentAlignment)
	assert.Equal(t, 0.52, near.Score)
	assert.Equal(t, models.DirectionCause, near.Direction)

	far := ScorePair(a, newsAt("Sector rally continues", at.Add(-99*time.Minute)), &positive, "Moutai", p)
	assert.Equal(t, 0.48, far.Score)
}

func TestScorePairComponents(t *testing.T) {
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	p := PairParams{Lookback: 2 * time.Hour, Lookahead: time.Hour, NeutralBand: 0.2}

	c := ScorePair(testAnomaly(at, -4), newsAt("Moutai cuts guidance", at), nil, "Moutai", p)
	assert.Equal(t, 1.0, c.TimeProximity)
	assert.Equal(t, 1.0, c.ExplicitMention)
	assert.Equal(t, 0.0, c.SentimentAlignment)
	assert.Equal(t, 0.7, c.Score)
	assert.Equal(t, models.DirectionReaction, c.Direction)

	assert.True(t, Mentions(newsAt("SH600519 halted", at), "600519", ""))
	assert.False(t, Mentions(newsAt("Bank earnings", at), "600519", "Moutai"))

	mild, opposed, zero, conflict, down := 0.1, -0.1, 0.0, 0.6, -0.5
	assert.Equal(t, 1.0, SentimentAlignment(&mild, 1, 0.2), "same sign wins over the neutral band")
	assert.Equal(t, 0.5, SentimentAlignment(&opposed, 1, 0.2))
	assert.Equal(t, 0.5, SentimentAlignment(&zero, 1, 0.2))
	assert.Equal(t, 0.0, SentimentAlignment(nil, 1, 0.2))
	assert.Equal(t, 0.0, SentimentAlignment(&conflict, -1, 0.2))
	assert.Equal(t, 1.0, SentimentAlignment(&down, -1, 0.2))
	assert.Equal(t, 0.0, TimeProximity(at, at.Add(4*time.Hour), 3*time.Hour))
}

func newScorer(t *testing.T, store *repository.MemoryStore, scorer *fakeScorer) *CorrelationScorer {
	t.Helper()
	cfg := testConfig(t)
	m := newMetrics()
	l := applogger.Nop()
	lookup := NewSentimentLookup(store, scorer, m, l)
	return NewCorrelationScorer(cfg, store, store, lookup, cache.NewMemoryCache(), m, l)
}

func TestScoreAnomalyPersistsOnlyAboveThreshold(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	for _, n := range []models.NewsItem{
		newsAt("Sector rally continues", at.Add(-81*time.Minute)),
		newsAt("Sector rally broadens", at.Add(-99*time.Minute)),
		newsAt("Old story", at.Add(-5*time.Hour)),
	} {
		_, err := store.UpsertNews(ctx, n)
		require.NoError(t, err)
	}
	scorer := &fakeScorer{score: 0.8}
	s := newScorer(t, store, scorer)

	got, err := s.ScoreAnomaly(ctx, testAnomaly(at, 4.2), "Moutai")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.52, got[0].Score)
	assert.Equal(t, "Sector rally continues", got[0].NewsTitle)

	stored, err := store.ListCorrelations(ctx, "600519", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
	assert.EqualValues(t, 2, scorer.calls.Load())
}

func TestScoreAnomalyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	_, err := store.UpsertNews(ctx, newsAt("Moutai beats estimates", at.Add(-10*time.Minute)))
	require.NoError(t, err)
	s := newScorer(t, store, &fakeScorer{score: 0.9})

	a := testAnomaly(at, 4.2)
	first, err := s.ScoreAnomaly(ctx, a, "Moutai")
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := s.ScoreAnomaly(ctx, a, "Moutai")
	require.NoError(t, err)
	assert.Empty(t, second)

	stored, err := store.ListCorrelations(ctx, "600519", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestScoreAnomalySentimentFailureZeroesAlignment(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	_, err := store.UpsertNews(ctx, newsAt("Moutai beats estimates", at))
	require.NoError(t, err)
	s := newScorer(t, store, &fakeScorer{err: context.DeadlineExceeded})

	got, err := s.ScoreAnomaly(ctx, testAnomaly(at, 4.2), "Moutai")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Sentiment)
	assert.Equal(t, 0.0, got[0].SentimentAlignment)
	assert.Equal(t, 0.7, got[0].Score)
}
