package usecase

import (
	"context"
	"encoding/json"
	"time"

	"FinAlert/internal/domain/errs"
	"FinAlert/internal/domain/models"
	domrepo "FinAlert/internal/domain/repository"
	mid "FinAlert/internal/middleware"
	pkgkafka "FinAlert/pkg/kafka"
	applogger "FinAlert/pkg/logger"
)

// KafkaTicksHandler stores ticks consumed from the ticks topic.
type KafkaTicksHandler struct {
	topic   string
	store   domrepo.TickStore
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewKafkaTicksHandler(topic string, store domrepo.TickStore, metrics domrepo.Metrics, l *applogger.Logger) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, store: store, metrics: metrics, l: l}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// Handle decodes one tick. Malformed messages are logged and skipped so they
// are committed instead of retried; store failures are returned.
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var t models.Tick
	if err := json.Unmarshal(b, &t); err != nil {
		h.skip(ctx, errs.MalformedInput("tick", err))
		return nil
	}
	if err := mid.ValidateTick(t); err != nil {
		h.skip(ctx, err)
		return nil
	}
	h.metrics.RecordLatency("ingest_e2e", time.Since(t.Timestamp).Seconds())

	start := time.Now()
	err := h.store.StoreTicks(ctx, []models.Tick{t})
	h.metrics.RecordLatency("tick_store", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordIngested("kafka", t.Symbol)
	h.metrics.RecordLastPrice(t.Symbol, t.Close)
	return nil
}

func (h *KafkaTicksHandler) skip(ctx context.Context, err error) {
	h.metrics.RecordError("consumer_malformed")
	h.l.Warn("skipping malformed tick",
		applogger.String("topic", h.topic),
		applogger.String("trace_id", pkgkafka.TraceID(ctx)),
		applogger.Error(err),
	)
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
