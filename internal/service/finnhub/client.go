// Package finnhub streams trade prints from the Finnhub websocket API.
package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"FinAlert/internal/domain/models"
	drepo "FinAlert/internal/domain/repository"
	applogger "FinAlert/pkg/logger"

	"github.com/gorilla/websocket"
)

var errNotConnected = errors.New("finnhub: not connected")

const (
	tickBuffer   = 1024
	writeTimeout = 5 * time.Second
	dropLogEvery = 1000
)

// Client implements MarketStream. Each trade print becomes a Tick whose
// close, high and low all equal the trade price.
type Client struct {
	endpoint       string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	l              *applogger.Logger

	mu   sync.Mutex // guards conn; gorilla allows one concurrent writer
	conn *websocket.Conn
}

func New(apiKey, websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, l *applogger.Logger) *Client {
	if l == nil {
		l = applogger.Nop()
	}
	endpoint := websocketURL
	if u, err := url.Parse(websocketURL); err == nil {
		q := u.Query()
		q.Set("token", apiKey)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}
	return &Client{
		endpoint:       endpoint,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		l:              l.With(applogger.String("component", "finnhub")),
	}
}

// Connect dials the websocket. A missing pong for two ping intervals fails
// the next read.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("finnhub dial: %w", err)
	}
	idle := 2 * c.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(idle))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(idle))
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.l.Info("connected")
	return nil
}

func (c *Client) Subscribe(context.Context) error {
	for _, sym := range c.symbols {
		msg := struct {
			Type   string `json:"type"`
			Symbol string `json:"symbol"`
		}{"subscribe", sym}
		if err := c.write(func(conn *websocket.Conn) error { return conn.WriteJSON(msg) }); err != nil {
			return fmt.Errorf("finnhub subscribe %s: %w", sym, err)
		}
	}
	c.l.Info("subscribed", applogger.Strings("symbols", c.symbols))
	return nil
}

func (c *Client) write(fn func(*websocket.Conn) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return fn(c.conn)
}

type tradeFrame struct {
	Type string `json:"type"`
	Data []struct {
		Symbol string  `json:"s"`
		Price  float64 `json:"p"`
		Volume float64 `json:"v"`
		TimeMs int64   `json:"t"`
	} `json:"data"`
}

func (f tradeFrame) ticks() []*models.Tick {
	out := make([]*models.Tick, 0, len(f.Data))
	for _, d := range f.Data {
		out = append(out, &models.Tick{
			Symbol:    d.Symbol,
			Timestamp: time.UnixMilli(d.TimeMs).UTC(),
			Close:     d.Price,
			High:      d.Price,
			Low:       d.Price,
			Volume:    d.Volume,
		})
	}
	return out
}

// Read pumps ticks from the current connection until it fails or ctx ends.
// Both channels close when the pump exits; a failure is sent on the error
// channel first. Frames other than trades are ignored, and ticks are dropped
// rather than blocking the socket when the consumer falls behind.
func (c *Client) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, tickBuffer)
	errc := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		errc <- errNotConnected
		close(errc)
		close(ticks)
		return ticks, errc
	}

	pumpDone := make(chan struct{})
	go c.keepAlive(ctx, pumpDone)

	go func() {
		defer close(errc)
		defer close(ticks)
		defer close(pumpDone)

		dropped := 0
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errc <- fmt.Errorf("finnhub read: %w", err)
				}
				return
			}
			var f tradeFrame
			if json.Unmarshal(raw, &f) != nil || f.Type != "trade" {
				continue
			}
			for _, tk := range f.ticks() {
				select {
				case ticks <- tk:
				case <-ctx.Done():
					return
				default:
					if dropped++; dropped%dropLogEvery == 1 {
						c.l.Warn("tick buffer full, dropping", applogger.Int("dropped", dropped))
					}
				}
			}
		}
	}()
	return ticks, errc
}

func (c *Client) keepAlive(ctx context.Context, done <-chan struct{}) {
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			// unblock ReadMessage so the pump can exit
			_ = c.Close()
			return
		case <-done:
			return
		case <-t.C:
			err := c.write(func(conn *websocket.Conn) error {
				return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			})
			if err != nil {
				c.l.Warn("ping failed", applogger.Error(err))
			}
		}
	}
}

// Reconnect drops the current connection, waits reconnectDelay and dials
// and subscribes again.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	t := time.NewTimer(c.reconnectDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

var _ drepo.MarketStream = (*Client)(nil)
