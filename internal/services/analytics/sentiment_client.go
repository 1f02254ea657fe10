package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"FinAlert/internal/domain/errs"
	"FinAlert/internal/domain/models"
	domsvc "FinAlert/internal/domain/service"
	"FinAlert/internal/service/ratelimit"
	"FinAlert/pkg/config"
	xhttp "FinAlert/pkg/http"
)

// HTTPSentimentScorer calls the external sentiment model.
type HTTPSentimentScorer struct {
	base *HTTPServiceBase
	now  func() time.Time
}

func NewHTTPSentimentScorer(cfg *config.Config, limiter *ratelimit.Limiter) *HTTPSentimentScorer {
	policy := NewPolicy("sentiment", cfg.Resilience)
	return &HTTPSentimentScorer{
		base: NewHTTPServiceBase("sentiment", cfg.Sentiment.URL, policy, limiter, xhttp.WithTimeout(cfg.Resilience.Timeout)),
		now:  time.Now,
	}
}

type sentimentRequest struct {
	Text string `json:"text"`
}

type sentimentResponse struct {
	Score      *float64 `json:"score"`
	Confidence float64  `json:"confidence"`
}

func (s *HTTPSentimentScorer) Score(ctx context.Context, text string) (models.SentimentScore, error) {
	var out models.SentimentScore
	var resp sentimentResponse
	if err := s.base.PostJSON(ctx, "/sentiment", sentimentRequest{Text: text}, &resp); err != nil {
		return out, err
	}
	if resp.Score == nil || math.IsNaN(*resp.Score) {
		return out, errs.SignalUnavailable("sentiment", errs.MalformedInput("sentiment response", fmt.Errorf("missing score")))
	}
	out.Score = clamp(*resp.Score, -1, 1)
	out.Confidence = clamp(resp.Confidence, 0, 1)
	out.ScoredAt = s.now().UTC()
	return out, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

var _ domsvc.SentimentScorer = (*HTTPSentimentScorer)(nil)
