package alertclient

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"FinAlert/internal/domain/models"
	xhttp "FinAlert/pkg/http"
	applogger "FinAlert/pkg/logger"
)

type Option func(*Poller)

func WithLimit(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.limit = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithHTTPClient(c *xhttp.Client) Option {
	return func(p *Poller) {
		if c != nil {
			p.client = c
		}
	}
}

func WithLogger(l *applogger.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.l = l
		}
	}
}

// Poller reads the realtime endpoint and hands each alert to the caller once.
type Poller struct {
	baseURL  string
	client   *xhttp.Client
	seen     *SeenSet
	limit    int
	interval time.Duration
	l        *applogger.Logger
}

type realtimeResponse struct {
	Success bool               `json:"success"`
	Alerts  []models.AlertView `json:"alerts"`
}

func NewPoller(baseURL string, seen *SeenSet, opts ...Option) *Poller {
	p := &Poller{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   xhttp.NewClient(xhttp.WithTimeout(10 * time.Second)),
		seen:     seen,
		limit:    DefaultSeenCapacity,
		interval: 30 * time.Second,
		l:        applogger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.seen == nil {
		p.seen, _ = NewSeenSet("", DefaultSeenCapacity)
	}
	return p
}

// Poll fetches the realtime view once and returns the alerts not seen
// before, oldest first. The seen set is saved after every poll that added keys.
func (p *Poller) Poll(ctx context.Context) ([]models.AlertView, error) {
	var resp realtimeResponse
	query := url.Values{"limit": {strconv.Itoa(p.limit)}}
	err := p.client.GetJSON(ctx, p.baseURL+"/api/alerts/realtime/", query, &resp)
	if err != nil {
		return nil, fmt.Errorf("poll realtime alerts: %w", err)
	}

	var fresh []models.AlertView
	for i := len(resp.Alerts) - 1; i >= 0; i-- {
		v := resp.Alerts[i]
		if p.seen.Add(SeenKey(v)) {
			fresh = append(fresh, v)
		}
	}
	if len(fresh) > 0 {
		if err := p.seen.Save(); err != nil {
			p.l.Warn("persist seen alerts", applogger.Error(err))
		}
	}
	return fresh, nil
}

// Run polls every interval until ctx ends. Poll failures are logged and the
// loop continues.
func (p *Poller) Run(ctx context.Context, fn func(models.AlertView)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		alerts, err := p.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.l.Warn("alert poll failed", applogger.Error(err))
		}
		for _, a := range alerts {
			fn(a)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
