package models

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// NewsHashTimeLayout is the timestamp layout folded into the content hash.
const NewsHashTimeLayout = "2006-01-02 15:04:05"

// NewsItem is a news article produced by an external crawler.
type NewsItem struct {
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Symbols     []string  `json:"symbols,omitempty"`
	Hash        string    `json:"hash"`
}

// NewsHash identifies a story independent of the source that carried it.
func NewsHash(title, body string, publishedAt time.Time) string {
	sum := md5.Sum([]byte(title + body + "|" + publishedAt.Format(NewsHashTimeLayout)))
	return hex.EncodeToString(sum[:])
}

// EnsureHash fills Hash when the producer did not supply one.
func (n *NewsItem) EnsureHash() {
	if n.Hash == "" {
		n.Hash = NewsHash(n.Title, n.Body, n.PublishedAt)
	}
}

// Text is what gets sent to the sentiment service.
func (n NewsItem) Text() string {
	if n.Body == "" {
		return n.Title
	}
	return n.Title + "\n" + n.Body
}

// SentimentScore is the external model's view of one news item.
type SentimentScore struct {
	NewsHash   string    `json:"news_hash"`
	Score      float64   `json:"score"`
	Confidence float64   `json:"confidence"`
	ScoredAt   time.Time `json:"scored_at"`
}
