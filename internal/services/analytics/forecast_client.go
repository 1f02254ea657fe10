package analytics

import (
	"context"
	"fmt"
	"sort"

	"FinAlert/internal/domain/errs"
	"FinAlert/internal/domain/models"
	domsvc "FinAlert/internal/domain/service"
	"FinAlert/internal/service/ratelimit"
	"FinAlert/pkg/config"
	xhttp "FinAlert/pkg/http"
	"FinAlert/pkg/util"
)

// HTTPForecaster calls the external price forecast model.
type HTTPForecaster struct {
	base *HTTPServiceBase
}

func NewHTTPForecaster(cfg *config.Config, limiter *ratelimit.Limiter) *HTTPForecaster {
	policy := NewPolicy("forecast", cfg.Resilience)
	return &HTTPForecaster{
		base: NewHTTPServiceBase("forecast", cfg.Forecast.URL, policy, limiter, xhttp.WithTimeout(cfg.Resilience.Timeout)),
	}
}

type forecastRequest struct {
	Symbol  string `json:"symbol"`
	Horizon int    `json:"horizon"`
}

type forecastPoint struct {
	Date           string  `json:"date"`
	PredictedPrice float64 `json:"predicted_price"`
	LowerBound     float64 `json:"lower_bound"`
	UpperBound     float64 `json:"upper_bound"`
}

// Forecast returns points sorted by date.
func (f *HTTPForecaster) Forecast(ctx context.Context, symbol string, horizon int) ([]models.ForecastPoint, error) {
	var resp []forecastPoint
	if err := f.base.PostJSON(ctx, "/forecast", forecastRequest{Symbol: symbol, Horizon: horizon}, &resp); err != nil {
		return nil, err
	}

	out := make([]models.ForecastPoint, 0, len(resp))
	for _, p := range resp {
		d, ok := util.ParseTime(p.Date, nil)
		if !ok {
			return nil, errs.SignalUnavailable("forecast", errs.MalformedInput("forecast date", fmt.Errorf("%q", p.Date)))
		}
		lo, hi := p.LowerBound, p.UpperBound
		if lo > hi {
			lo, hi = hi, lo
		}
		out = append(out, models.ForecastPoint{Date: d, PredictedPrice: p.PredictedPrice, LowerBound: lo, UpperBound: hi})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

var _ domsvc.Forecaster = (*HTTPForecaster)(nil)
