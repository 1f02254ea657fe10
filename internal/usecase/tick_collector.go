package usecase

import (
	"context"

	"FinAlert/internal/domain/models"
	domrepo "FinAlert/internal/domain/repository"
	mid "FinAlert/internal/middleware"
	applogger "FinAlert/pkg/logger"
)

// TickCollector pulls ticks from a market stream into the tick pipeline.
type TickCollector struct {
	stream  domrepo.MarketStream
	pipe    *mid.TickPipeline
	metrics domrepo.Metrics
	l       *applogger.Logger
	done    chan struct{}
}

func NewTickCollector(stream domrepo.MarketStream, pipe *mid.TickPipeline, metrics domrepo.Metrics, l *applogger.Logger) *TickCollector {
	return &TickCollector{stream: stream, pipe: pipe, metrics: metrics, l: l, done: make(chan struct{})}
}

func (c *TickCollector) IsConnected() bool { return c.stream.IsConnected() }

// Start connects, subscribes and consumes in the background until ctx ends.
func (c *TickCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		_ = c.stream.Close()
		return err
	}
	c.pipe.Start(ctx)
	go c.run(ctx)
	return nil
}

// Done is closed once the consume loop has exited.
func (c *TickCollector) Done() <-chan struct{} { return c.done }

func (c *TickCollector) run(ctx context.Context) {
	defer close(c.done)
	for {
		ticks, errCh := c.stream.Read(ctx)
		c.consume(ctx, ticks)
		if ctx.Err() != nil {
			return
		}
		if err, ok := <-errCh; ok && err != nil {
			c.l.Warn("market stream failed", applogger.Error(err))
		}
		c.metrics.RecordError("stream")
		for {
			if err := c.stream.Reconnect(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.l.Warn("market stream reconnect failed", applogger.Error(err))
				c.metrics.RecordError("stream_reconnect")
				continue
			}
			break
		}
	}
}

// consume drains ticks until the read loop closes it.
func (c *TickCollector) consume(ctx context.Context, ticks <-chan *models.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ticks:
			if !ok {
				return
			}
			if t == nil {
				continue
			}
			if err := c.pipe.Process(ctx, *t); err != nil {
				c.l.Debug("tick not processed", applogger.String("symbol", t.Symbol), applogger.Error(err))
				continue
			}
			c.metrics.RecordLastPrice(t.Symbol, t.Close)
		}
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *TickCollector) Shutdown(context.Context) error {
	c.pipe.Stop()
	return c.stream.Close()
}
