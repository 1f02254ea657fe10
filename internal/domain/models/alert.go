package models

import (
	"time"
)

// Level is the alert severity.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

// Rank orders levels; unknown levels rank lowest.
func (l Level) Rank() int {
	switch l {
	case LevelInfo:
		return 1
	case LevelWarning:
		return 2
	case LevelCritical:
		return 3
	default:
		return 0
	}
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool { return l.Rank() > 0 }

// FactorTag names an alert factor, or COMPOSITE for merged candidates.
type FactorTag string

const (
	FactorPriceMove         FactorTag = "PRICE_MOVE"
	FactorVolumeSpike       FactorTag = "VOLUME_SPIKE"
	FactorRSIOverbought     FactorTag = "RSI_OVERBOUGHT"
	FactorRSIOversold       FactorTag = "RSI_OVERSOLD"
	FactorMACDCrossUp       FactorTag = "MACD_CROSS_UP"
	FactorMACDCrossDown     FactorTag = "MACD_CROSS_DOWN"
	FactorSentimentPositive FactorTag = "SENTIMENT_EXTREME_POSITIVE"
	FactorSentimentNegative FactorTag = "SENTIMENT_EXTREME_NEGATIVE"
	FactorSentimentSwing    FactorTag = "SENTIMENT_SWING"
	FactorForecastBreach    FactorTag = "FORECAST_BREACH"
	TypeComposite           FactorTag = "COMPOSITE"
)

// FactorHit is one fired factor rule.
type FactorHit struct {
	Tag     FactorTag      `json:"tag"`
	Level   Level          `json:"level"`
	Message string         `json:"message"`
	Metrics map[string]any `json:"metrics,omitempty"`
}

// AlertCandidate is an in-memory proposal produced by the aggregator.
type AlertCandidate struct {
	Symbol     string
	Name       string
	Type       FactorTag
	Level      Level
	Message    string
	Factors    []FactorHit
	Metrics    map[string]any
	ObservedAt time.Time
}

// Tags lists the contributing factor tags in evaluation order.
func (c AlertCandidate) Tags() []FactorTag {
	out := make([]FactorTag, 0, len(c.Factors))
	for _, f := range c.Factors {
		out = append(out, f.Tag)
	}
	return out
}

// Alert is the durable alert record.
type Alert struct {
	ID             string         `json:"id"`
	Symbol         string         `json:"symbol"`
	Name           string         `json:"name"`
	Type           FactorTag      `json:"type"`
	Level          Level          `json:"level"`
	Message        string         `json:"message"`
	CreatedAt      time.Time      `json:"created_at"`
	Fingerprint    string         `json:"fingerprint"`
	Details        map[string]any `json:"details"`
	Acknowledged   bool           `json:"acknowledged"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
}

// AlertView is the wire shape served to pull consumers.
type AlertView struct {
	ID           string         `json:"id"`
	StockCode    string         `json:"stock_code"`
	StockName    string         `json:"stock_name"`
	AlertType    string         `json:"alert_type"`
	AlertLevel   string         `json:"alert_level"`
	AlertMessage string         `json:"alert_message"`
	AlertTime    string         `json:"alert_time"`
	Details      map[string]any `json:"details"`
	Acknowledged bool           `json:"acknowledged"`
}

// View converts the record to its wire shape.
func (a Alert) View() AlertView {
	details := a.Details
	if details == nil {
		details = map[string]any{}
	}
	return AlertView{
		ID:           a.ID,
		StockCode:    a.Symbol,
		StockName:    a.Name,
		AlertType:    string(a.Type),
		AlertLevel:   string(a.Level),
		AlertMessage: a.Message,
		AlertTime:    a.CreatedAt.Format(time.RFC3339),
		Details:      details,
		Acknowledged: a.Acknowledged,
	}
}

// Views converts a slice of alerts, never returning nil.
func Views(alerts []Alert) []AlertView {
	out := make([]AlertView, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.View())
	}
	return out
}

// AlertQuery filters the durable alert history.
type AlertQuery struct {
	Symbol string
	From   time.Time
	To     time.Time
	Level  Level
	Limit  int
}
