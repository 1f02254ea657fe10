package usecase

import (
	"context"
	"fmt"
	"time"

	"FinAlert/internal/domain/models"
	domrepo "FinAlert/internal/domain/repository"
	mid "FinAlert/internal/middleware"
)

// TickPublisher forwards ticks to a broker instead of the store.
type TickPublisher interface {
	PublishTicks(ctx context.Context, ticks []models.Tick) error
}

// TickProcessor routes collected ticks to the configured sink.
type TickProcessor struct {
	store   domrepo.TickStore
	pub     TickPublisher
	metrics domrepo.Metrics
	sink    string
}

// NewTickProcessor builds a processor for sink "store" or "kafka". pub may be
// nil for the store sink.
func NewTickProcessor(store domrepo.TickStore, pub TickPublisher, metrics domrepo.Metrics, sink string) *TickProcessor {
	return &TickProcessor{store: store, pub: pub, metrics: metrics, sink: sink}
}

func (p *TickProcessor) Process(ctx context.Context, t models.Tick) error {
	return p.ProcessBatch(ctx, []models.Tick{t})
}

func (p *TickProcessor) ProcessBatch(ctx context.Context, ticks []models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	switch p.sink {
	case "kafka":
		if p.pub == nil {
			err = fmt.Errorf("kafka sink has no publisher")
			break
		}
		err = p.pub.PublishTicks(ctx, ticks)
	case "store":
		err = p.store.StoreTicks(ctx, ticks)
	default:
		err = fmt.Errorf("unknown tick sink: %s", p.sink)
	}
	if err != nil {
		p.metrics.RecordError("tick_process")
		return fmt.Errorf("process ticks: %w", err)
	}

	for _, t := range ticks {
		p.metrics.RecordIngested(p.sink, t.Symbol)
	}
	p.metrics.RecordLatency("tick_process", time.Since(start).Seconds())
	return nil
}

var _ mid.TickSink = (*TickProcessor)(nil)
