package usecase

import (
	"context"
	"time"

	"FinAlert/internal/domain/errs"
	"FinAlert/internal/domain/models"
	domrepo "FinAlert/internal/domain/repository"
	domsvc "FinAlert/internal/domain/service"
	applogger "FinAlert/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// SentimentLookup returns the sentiment of a news item, scoring it at most once.
// Scores are cached in the store by content hash; concurrent lookups of the
// same hash share one upstream call.
type SentimentLookup struct {
	store   domrepo.NewsStore
	scorer  domsvc.SentimentScorer
	metrics domrepo.Metrics
	l       *applogger.Logger
	group   singleflight.Group
}

func NewSentimentLookup(store domrepo.NewsStore, scorer domsvc.SentimentScorer, metrics domrepo.Metrics, l *applogger.Logger) *SentimentLookup {
	return &SentimentLookup{store: store, scorer: scorer, metrics: metrics, l: l}
}

// Get returns the score for n or an error wrapping errs.ErrSignalUnavailable.
func (s *SentimentLookup) Get(ctx context.Context, n models.NewsItem) (models.SentimentScore, error) {
	n.EnsureHash()
	v, err, _ := s.group.Do(n.Hash, func() (interface{}, error) {
		if cached, err := s.store.GetSentiment(ctx, n.Hash); err != nil {
			s.l.Warn("sentiment cache read failed", applogger.String("news_hash", n.Hash), applogger.Error(err))
		} else if cached != nil {
			return *cached, nil
		}

		start := time.Now()
		sc, err := s.scorer.Score(ctx, n.Text())
		s.metrics.RecordLatency("sentiment_score", time.Since(start).Seconds())
		if err != nil {
			s.metrics.RecordSignalUnavailable("sentiment")
			return models.SentimentScore{}, errs.SignalUnavailable("sentiment", err)
		}
		sc.NewsHash = n.Hash
		if err := s.store.UpsertSentiment(ctx, sc); err != nil {
			s.l.Warn("sentiment cache write failed", applogger.String("news_hash", n.Hash), applogger.Error(err))
		}
		return sc, nil
	})
	if err != nil {
		return models.SentimentScore{}, err
	}
	return v.(models.SentimentScore), nil
}
