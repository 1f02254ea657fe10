package usecase

import (
	"strings"

	"FinAlert/internal/domain/models"
	"FinAlert/pkg/config"
)

// SignalAggregator turns one cycle's snapshot into alert candidates.
type SignalAggregator struct {
	rules config.RulesConfig
}

func NewSignalAggregator(cfg *config.Config) *SignalAggregator {
	return &SignalAggregator{rules: cfg.Rules}
}

// Aggregate returns no candidate when nothing fires, one single-factor
// candidate for one hit, and one CRITICAL composite for two or more.
func (a *SignalAggregator) Aggregate(s *models.SignalSnapshot) []models.AlertCandidate {
	hits := EvaluateFactors(s, a.rules)
	if len(hits) == 0 {
		return nil
	}

	c := models.AlertCandidate{
		Symbol:     s.Symbol,
		Name:       s.Name,
		Factors:    hits,
		Metrics:    make(map[string]any),
		ObservedAt: s.At,
	}
	for _, h := range hits {
		for k, v := range h.Metrics {
			c.Metrics[k] = v
		}
	}

	if len(hits) == 1 {
		c.Type = hits[0].Tag
		c.Level = hits[0].Level
		c.Message = hits[0].Message
		return []models.AlertCandidate{c}
	}

	msgs := make([]string, len(hits))
	for i, h := range hits {
		msgs[i] = h.Message
	}
	c.Type = models.TypeComposite
	c.Level = models.LevelCritical
	c.Message = strings.Join(msgs, "; ")
	return []models.AlertCandidate{c}
}
