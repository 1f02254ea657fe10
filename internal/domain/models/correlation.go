package models

import "time"

// Direction tells whether news led or followed the move.
type Direction string

const (
	DirectionCause    Direction = "CAUSE"
	DirectionReaction Direction = "REACTION"
)

// Correlation scores how well one news item explains one anomaly.
type Correlation struct {
	AnomalyKey         string    `json:"anomaly_key"`
	NewsHash           string    `json:"news_hash"`
	Symbol             string    `json:"symbol"`
	AnomalyTime        time.Time `json:"anomaly_time"`
	NewsTime           time.Time `json:"news_time"`
	NewsTitle          string    `json:"news_title"`
	TimeProximity      float64   `json:"time_proximity"`
	ExplicitMention    float64   `json:"explicit_mention"`
	SentimentAlignment float64   `json:"sentiment_alignment"`
	Sentiment          *float64  `json:"sentiment,omitempty"`
	Score              float64   `json:"score"`
	Direction          Direction `json:"direction"`
	CreatedAt          time.Time `json:"created_at"`
}

// Key is the natural key of the pair.
func (c Correlation) Key() string { return PairKey(c.AnomalyKey, c.NewsHash) }

// PairKey joins an anomaly key and a news hash.
func PairKey(anomalyKey, newsHash string) string { return anomalyKey + "|" + newsHash }
