package models

import (
	"strings"
	"time"
)

// Tick is one price/volume observation for a symbol.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Close     float64   `json:"close"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Volume    float64   `json:"volume"`
	// PrevClose is the previous session close as carried by realtime quote feeds; zero when unknown.
	PrevClose float64 `json:"prev_close,omitempty"`
}

// Stock is a watched symbol and its display name.
type Stock struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// ExchangeCode prefixes a mainland code with its exchange: 6xxxxx trades in
// Shanghai, 0xxxxx/3xxxxx in Shenzhen. Other codes are returned unchanged.
func ExchangeCode(code string) string {
	c := strings.ToLower(strings.TrimSpace(code))
	if strings.HasPrefix(c, "sh") || strings.HasPrefix(c, "sz") {
		return c
	}
	switch {
	case strings.HasPrefix(c, "6"):
		return "sh" + c
	case strings.HasPrefix(c, "0"), strings.HasPrefix(c, "3"):
		return "sz" + c
	default:
		return c
	}
}

// BareCode strips an sh/sz exchange prefix.
func BareCode(code string) string {
	c := strings.ToLower(strings.TrimSpace(code))
	if strings.HasPrefix(c, "sh") || strings.HasPrefix(c, "sz") {
		return c[2:]
	}
	return c
}
