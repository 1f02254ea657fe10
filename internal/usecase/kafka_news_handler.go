package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"FinAlert/internal/domain/errs"
	"FinAlert/internal/domain/models"
	domrepo "FinAlert/internal/domain/repository"
	"FinAlert/pkg/config"
	pkgkafka "FinAlert/pkg/kafka"
	applogger "FinAlert/pkg/logger"
	"FinAlert/pkg/resilience"
)

// KafkaNewsHandler ingests crawler news items. A story already stored under
// the same content hash is ignored.
type KafkaNewsHandler struct {
	topic   string
	store   domrepo.NewsStore
	writes  *resilience.Policy
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewKafkaNewsHandler(cfg *config.Config, store domrepo.NewsStore, metrics domrepo.Metrics, l *applogger.Logger) *KafkaNewsHandler {
	return &KafkaNewsHandler{
		topic:   cfg.Kafka.NewsTopic,
		store:   store,
		writes:  newWritePolicy("news_store", cfg.Resilience),
		metrics: metrics,
		l:       l,
	}
}

func (h *KafkaNewsHandler) Topic() string { return h.topic }

func (h *KafkaNewsHandler) Handle(ctx context.Context, b []byte) error {
	var n models.NewsItem
	if err := json.Unmarshal(b, &n); err != nil {
		h.skip(ctx, errs.MalformedInput("news", err))
		return nil
	}
	n.Title = strings.TrimSpace(n.Title)
	if n.Title == "" || n.PublishedAt.IsZero() {
		h.skip(ctx, errs.MalformedInput("news", fmt.Errorf("title and published_at are required")))
		return nil
	}
	n.PublishedAt = n.PublishedAt.UTC()
	n.EnsureHash()

	var created bool
	err := h.writes.Do(ctx, func(ctx context.Context) error {
		var err error
		created, err = h.store.UpsertNews(ctx, n)
		return err
	})
	if err != nil {
		h.metrics.RecordError("news_store")
		return err
	}
	if created {
		h.metrics.RecordIngested("news", n.Source)
		h.l.Debug("news stored", applogger.String("hash", n.Hash), applogger.String("source", n.Source))
	}
	return nil
}

func (h *KafkaNewsHandler) skip(ctx context.Context, err error) {
	h.metrics.RecordError("consumer_malformed")
	h.l.Warn("skipping malformed news",
		applogger.String("topic", h.topic),
		applogger.String("trace_id", pkgkafka.TraceID(ctx)),
		applogger.Error(err),
	)
}

var _ pkgkafka.MessageHandler = (*KafkaNewsHandler)(nil)
