package models

// Requests for the alert HTTP endpoints.

type RealtimeAlertsRequest struct {
	Limit int `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=100"`
}

type AlertHistoryRequest struct {
	StockCode string `param:"stock_code" json:"stock_code" validate:"required,max=16"`
	From      string `query:"from" json:"from"`
	To        string `query:"to" json:"to"`
	Level     string `query:"level" json:"level" validate:"omitempty,oneof=INFO WARNING CRITICAL"`
	Limit     int    `query:"limit" json:"limit" validate:"gte=0,lte=10000"`
}

type AckAlertRequest struct {
	ID string `param:"id" json:"id" validate:"required,uuid"`
}

type SymbolHistoryRequest struct {
	StockCode string `param:"stock_code" json:"stock_code" validate:"required,max=16"`
	From      string `query:"from" json:"from"`
	To        string `query:"to" json:"to"`
	Limit     int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=5000"`
}
