package usecase

import (
	"context"
	"math"
	"strings"
	"time"

	"FinAlert/internal/domain/errs"
	"FinAlert/internal/domain/models"
	domrepo "FinAlert/internal/domain/repository"
	"FinAlert/pkg/cache"
	"FinAlert/pkg/config"
	applogger "FinAlert/pkg/logger"
	"FinAlert/pkg/resilience"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	weightProximity = 0.4
	weightMention   = 0.3
	weightAlignment = 0.3
)

// PairParams are the knobs of ScorePair.
type PairParams struct {
	Lookback    time.Duration
	Lookahead   time.Duration
	NeutralBand float64
}

// ScorePair scores how well n explains a. sentiment may be nil. name is the
// company display name used for mention matching.
func ScorePair(a models.PriceAnomaly, n models.NewsItem, sentiment *float64, name string, p PairParams) models.Correlation {
	tp := TimeProximity(a.DetectedAt, n.PublishedAt, p.Lookback+p.Lookahead)
	mention := 0.0
	if Mentions(n, a.Symbol, name) {
		mention = 1
	}
	align := SentimentAlignment(sentiment, a.MoveSign(), p.NeutralBand)

	score, _ := decimal.NewFromFloat(weightProximity*tp + weightMention*mention + weightAlignment*align).
		Round(4).Float64()

	dir := models.DirectionReaction
	if n.PublishedAt.Before(a.DetectedAt) {
		dir = models.DirectionCause
	}
	return models.Correlation{
		AnomalyKey:         a.Key(),
		NewsHash:           n.Hash,
		Symbol:             a.Symbol,
		AnomalyTime:        a.DetectedAt,
		NewsTime:           n.PublishedAt,
		NewsTitle:          n.Title,
		TimeProximity:      tp,
		ExplicitMention:    mention,
		SentimentAlignment: align,
		Sentiment:          sentiment,
		Score:              score,
		Direction:          dir,
	}
}

// TimeProximity is 1 - |at-bt|/width clamped to [0,1].
func TimeProximity(at, bt time.Time, width time.Duration) float64 {
	if width <= 0 {
		return 0
	}
	dt := math.Abs(float64(at.Sub(bt)))
	return math.Max(0, math.Min(1, 1-dt/float64(width)))
}

// Mentions reports whether the title or body names the symbol, in bare or
// exchange-prefixed form, or the company name.
func Mentions(n models.NewsItem, symbol, name string) bool {
	text := strings.ToLower(n.Title + "\n" + n.Body)
	for _, needle := range []string{models.BareCode(symbol), models.ExchangeCode(symbol)} {
		if needle != "" && strings.Contains(text, needle) {
			return true
		}
	}
	return name != "" && strings.Contains(text, strings.ToLower(name))
}

// SentimentAlignment is 1 when the sentiment sign matches the move, 0.5 when
// the sentiment is within the neutral band and 0 otherwise or when unknown.
func SentimentAlignment(sentiment *float64, moveSign int, neutralBand float64) float64 {
	if sentiment == nil {
		return 0
	}
	s := *sentiment
	if (moveSign > 0 && s > 0) || (moveSign < 0 && s < 0) {
		return 1
	}
	if math.Abs(s) < neutralBand {
		return 0.5
	}
	return 0
}

// CorrelationScorer links anomalies to the news published around them.
type CorrelationScorer struct {
	cfg       config.CorrelationConfig
	news      domrepo.NewsStore
	store     domrepo.CorrelationStore
	sentiment *SentimentLookup
	memo      cache.Service
	writes    *resilience.Policy
	timeout   time.Duration
	metrics   domrepo.Metrics
	l         *applogger.Logger
	now       func() time.Time
}

func NewCorrelationScorer(
	cfg *config.Config,
	news domrepo.NewsStore,
	store domrepo.CorrelationStore,
	sentiment *SentimentLookup,
	memo cache.Service,
	metrics domrepo.Metrics,
	l *applogger.Logger,
) *CorrelationScorer {
	cc := cfg.Correlation
	if cc.Workers < 1 {
		cc.Workers = 1
	}
	return &CorrelationScorer{
		cfg:       cc,
		news:      news,
		store:     store,
		sentiment: sentiment,
		memo:      memo,
		writes:    newWritePolicy("correlation_store", cfg.Resilience),
		timeout:   cfg.Resilience.Timeout,
		metrics:   metrics,
		l:         l,
		now:       time.Now,
	}
}

func (s *CorrelationScorer) params() PairParams {
	return PairParams{Lookback: s.cfg.Lookback, Lookahead: s.cfg.Lookahead, NeutralBand: s.cfg.NeutralBand}
}

func memoKey(pair string) string { return cache.Key("corr", pair) }

// ScoreAnomaly scores every news item in the window around a that has not been
// scored before and persists the pairs at or above the threshold. It returns
// the persisted correlations. A failed news lookup is reported as
// errs.ErrSignalUnavailable; a failed sentiment lookup only zeroes alignment.
func (s *CorrelationScorer) ScoreAnomaly(ctx context.Context, a models.PriceAnomaly, name string) ([]models.Correlation, error) {
	from := a.DetectedAt.Add(-s.cfg.Lookback)
	to := a.DetectedAt.Add(s.cfg.Lookahead)

	lctx, cancel := context.WithTimeout(ctx, s.timeout)
	items, err := s.news.NewsBetween(lctx, from, to)
	cancel()
	if err != nil {
		s.metrics.RecordSignalUnavailable("news")
		return nil, errs.SignalUnavailable("news", err)
	}

	pending := make([]models.NewsItem, 0, len(items))
	for _, n := range items {
		n.EnsureHash()
		seen, err := s.memo.Exists(ctx, memoKey(models.PairKey(a.Key(), n.Hash)))
		if err == nil && seen {
			s.metrics.RecordCorrelation("memo_hit")
			continue
		}
		pending = append(pending, n)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	results := make([]models.Correlation, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, n := range pending {
		i, n := i, n
		g.Go(func() error {
			var sentiment *float64
			if sc, err := s.sentiment.Get(gctx, n); err == nil {
				v := sc.Score
				sentiment = &v
			} else {
				s.l.Debug("sentiment unavailable for pair",
					applogger.String("symbol", a.Symbol),
					applogger.String("news_hash", n.Hash),
					applogger.Error(err),
				)
			}
			results[i] = ScorePair(a, n, sentiment, name, s.params())
			return nil
		})
	}
	_ = g.Wait()

	var persisted []models.Correlation
	var firstErr error
	for _, c := range results {
		if c.Score < s.cfg.Threshold {
			s.remember(ctx, c)
			s.metrics.RecordCorrelation("below_threshold")
			continue
		}
		c.CreatedAt = s.now().UTC()
		var created bool
		err := s.writes.Do(ctx, func(ctx context.Context) error {
			var err error
			created, err = s.store.UpsertCorrelation(ctx, c)
			return err
		})
		if err != nil {
			s.metrics.RecordError("correlation_upsert")
			s.l.Error("persist correlation failed", applogger.String("pair", c.Key()), applogger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.remember(ctx, c)
		if created {
			s.metrics.RecordCorrelation("persisted")
		}
		persisted = append(persisted, c)
	}
	return persisted, firstErr
}

func (s *CorrelationScorer) remember(ctx context.Context, c models.Correlation) {
	if err := s.memo.Set(ctx, memoKey(c.Key()), c.Score, s.cfg.MemoTTL); err != nil {
		s.l.Warn("correlation memo write failed", applogger.String("pair", c.Key()), applogger.Error(err))
	}
}
