package api

import (
	"context"
	"net/http"
	"time"

	"FinAlert/internal/domain/models"
	"FinAlert/internal/service/ratelimit"
	"FinAlert/internal/usecase"
	xhttp "FinAlert/pkg/http"
	applogger "FinAlert/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AlertsResponse is the body of every alert listing. Internal failures still
// answer 200 with an empty list.
type AlertsResponse struct {
	Success bool               `json:"success"`
	Alerts  []models.AlertView `json:"alerts"`
}

type AnomaliesResponse struct {
	Success   bool                  `json:"success"`
	Anomalies []models.PriceAnomaly `json:"anomalies"`
}

type CorrelationsResponse struct {
	Success      bool                 `json:"success"`
	Correlations []models.Correlation `json:"correlations"`
}

type AckResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// AlertsEchoHandler serves the pull API for alerts.
type AlertsEchoHandler struct {
	query   *usecase.AlertsQuery
	limiter *ratelimit.Limiter
	l       *applogger.Logger
}

// NewAlertsEchoHandler builds the handler; limiter may be nil to disable the
// per-client rate limit.
func NewAlertsEchoHandler(query *usecase.AlertsQuery, limiter *ratelimit.Limiter, l *applogger.Logger) *AlertsEchoHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &AlertsEchoHandler{query: query, limiter: limiter, l: l}
}

func (h *AlertsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api", h.rateLimit)
	g.GET("/alerts/realtime/", h.Realtime)
	g.POST("/alerts/ack/:id/", h.Acknowledge)
	g.GET("/alerts/:stock_code/", h.History)
	g.GET("/anomalies/:stock_code/", h.Anomalies)
	g.GET("/correlations/:stock_code/", h.Correlations)
}

func (h *AlertsEchoHandler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
			h.l.Warn("api rate limited", applogger.String("remote", c.RealIP()), applogger.String("path", c.Path()))
			return xhttp.TooManyRequestsResponse(c)
		}
		return next(c)
	}
}

func (h *AlertsEchoHandler) Realtime(c echo.Context) error {
	req := &models.RealtimeAlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	alerts, err := h.query.Realtime(c.Request().Context(), req.Limit)
	if err != nil {
		h.l.Error("realtime alerts failed", applogger.Error(err))
		alerts = nil
	}
	return c.JSON(http.StatusOK, AlertsResponse{Success: true, Alerts: models.Views(alerts)})
}

func (h *AlertsEchoHandler) History(c echo.Context) error {
	req := &models.AlertHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, verr := timeRange(req.From, req.To)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	alerts, err := h.query.History(c.Request().Context(), usecase.HistoryParams{
		Symbol: req.StockCode,
		From:   from,
		To:     to,
		Level:  models.Level(req.Level),
		Limit:  req.Limit,
	})
	if err != nil {
		h.l.Error("alert history failed", applogger.String("symbol", req.StockCode), applogger.Error(err))
		alerts = nil
	}
	return c.JSON(http.StatusOK, AlertsResponse{Success: true, Alerts: models.Views(alerts)})
}

func (h *AlertsEchoHandler) Acknowledge(c echo.Context) error {
	req := &models.AckAlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	found, err := h.query.Acknowledge(c.Request().Context(), req.ID)
	if err != nil {
		h.l.Error("acknowledge failed", applogger.String("id", req.ID), applogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	if !found {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("alert %s not found", req.ID))
	}
	return c.JSON(http.StatusOK, AckResponse{Success: true, ID: req.ID})
}

func (h *AlertsEchoHandler) Anomalies(c echo.Context) error {
	req := &models.SymbolHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, verr := timeRange(req.From, req.To)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	items, err := h.query.Anomalies(c.Request().Context(), req.StockCode, from, to, req.Limit)
	if err != nil {
		h.l.Error("list anomalies failed", applogger.String("symbol", req.StockCode), applogger.Error(err))
	}
	if items == nil {
		items = []models.PriceAnomaly{}
	}
	return c.JSON(http.StatusOK, AnomaliesResponse{Success: true, Anomalies: items})
}

func (h *AlertsEchoHandler) Correlations(c echo.Context) error {
	req := &models.SymbolHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, verr := timeRange(req.From, req.To)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	items, err := h.query.Correlations(c.Request().Context(), req.StockCode, from, to, req.Limit)
	if err != nil {
		h.l.Error("list correlations failed", applogger.String("symbol", req.StockCode), applogger.Error(err))
	}
	if items == nil {
		items = []models.Correlation{}
	}
	return c.JSON(http.StatusOK, CorrelationsResponse{Success: true, Correlations: items})
}

func (h *AlertsEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.query.Health(ctx); err != nil {
		h.l.Warn("health check failed", applogger.Error(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// timeRange parses optional from/to; empty values leave the bound open.
func timeRange(fromS, toS string) (from, to time.Time, verr []xhttp.ValidationError) {
	if fromS != "" {
		t, ok := xhttp.ParseTime(fromS)
		if !ok {
			verr = append(verr, xhttp.ValidationError{Code: "ERR_TIME", Field: "from", Message: "from must be a timestamp"})
		}
		from = t
	}
	if toS != "" {
		t, ok := xhttp.ParseTime(toS)
		if !ok {
			verr = append(verr, xhttp.ValidationError{Code: "ERR_TIME", Field: "to", Message: "to must be a timestamp"})
		}
		to = t
	}
	if verr == nil && !from.IsZero() && !to.IsZero() && from.After(to) {
		verr = append(verr, xhttp.ValidationError{Code: "ERR_RANGE", Field: "from", Message: "from must not be after to"})
	}
	return from, to, verr
}
