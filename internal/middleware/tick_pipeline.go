package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FinAlert/internal/domain/errs"
	"FinAlert/internal/domain/models"
	domrepo "FinAlert/internal/domain/repository"
	"FinAlert/internal/service/ratelimit"
)

// TickSink receives ticks that passed the pipeline.
type TickSink interface {
	Process(ctx context.Context, t models.Tick) error
}

// TickPipeline sits between a market stream and the tick sink. It validates,
// throttles per symbol and buffers ticks while the sink is failing.
type TickPipeline struct {
	sink    TickSink
	metrics domrepo.Metrics
	limiter *ratelimit.Limiter
	bufCh   chan models.Tick
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	now     func() time.Time
}

type PipelineOption func(*pipelineConfig)

type pipelineConfig struct {
	maxRPS  int
	bufSize int
}

// WithMaxRPS caps accepted ticks per second per symbol; 0 disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(c *pipelineConfig) {
		if n >= 0 {
			c.maxRPS = n
		}
	}
}

// WithBufferSize sets how many ticks are held while the sink is failing.
func WithBufferSize(n int) PipelineOption {
	return func(c *pipelineConfig) {
		if n > 0 {
			c.bufSize = n
		}
	}
}

func NewTickPipeline(sink TickSink, metrics domrepo.Metrics, opts ...PipelineOption) *TickPipeline {
	cfg := pipelineConfig{maxRPS: 20, bufSize: 1000}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &TickPipeline{
		sink:    sink,
		metrics: metrics,
		limiter: ratelimit.New(float64(cfg.maxRPS), max(cfg.maxRPS, 1)),
		bufCh:   make(chan models.Tick, cfg.bufSize),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
}

// Start launches the background flush of buffered ticks.
func (p *TickPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case t := <-p.bufCh:
				if err := p.sink.Process(ctx, t); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					select {
					case <-time.After(backoff):
					case <-p.stopCh:
						return
					case <-ctx.Done():
						return
					}
					p.buffer(t)
					continue
				}
				backoff = 50 * time.Millisecond
			}
		}
	}()
}

// Stop ends the flush loop and waits for it.
func (p *TickPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stopCh)
	p.mu.Unlock()
	p.wg.Wait()
}

// Process validates, throttles and forwards t. Throttled ticks are dropped
// silently; a sink failure buffers the tick and is returned.
func (p *TickPipeline) Process(ctx context.Context, t models.Tick) error {
	start := p.now()
	if err := ValidateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.limiter.AllowAt(t.Symbol, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.sink.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		p.buffer(t)
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// Buffered reports how many ticks wait for the sink.
func (p *TickPipeline) Buffered() int { return len(p.bufCh) }

func (p *TickPipeline) buffer(t models.Tick) {
	select {
	case p.bufCh <- t:
		p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
	default:
		p.metrics.RecordError("pipeline_buffer_full")
	}
}

// ValidateTick rejects ticks that cannot be stored.
func ValidateTick(t models.Tick) error {
	switch {
	case t.Symbol == "":
		return errs.MalformedInput("tick", fmt.Errorf("symbol empty"))
	case t.Timestamp.IsZero():
		return errs.MalformedInput("tick", fmt.Errorf("timestamp missing"))
	case t.Close <= 0:
		return errs.MalformedInput("tick", fmt.Errorf("non-positive price %v", t.Close))
	case t.Volume < 0:
		return errs.MalformedInput("tick", fmt.Errorf("negative volume %v", t.Volume))
	}
	return nil
}
