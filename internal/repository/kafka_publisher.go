package repository

import (
	"context"

	"FinAlert/internal/domain/models"
	domrepo "FinAlert/internal/domain/repository"
	pkgkafka "FinAlert/pkg/kafka"
)

type batchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaAlertPublisher pushes persisted alerts to a topic keyed by symbol.
type KafkaAlertPublisher struct {
	producer batchPublisher
	topic    string
}

func NewKafkaAlertPublisher(producer *pkgkafka.Producer, topic string) *KafkaAlertPublisher {
	return &KafkaAlertPublisher{producer: producer, topic: topic}
}

func (p *KafkaAlertPublisher) PublishAlert(ctx context.Context, a models.Alert) error {
	return p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{{
		Key:     []byte(a.Symbol),
		Value:   a.View(),
		Headers: map[string]string{"alert_id": a.ID, "alert_level": string(a.Level)},
	}})
}

func (p *KafkaAlertPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// KafkaTickPublisher forwards collected ticks to the ticks topic.
type KafkaTickPublisher struct {
	producer batchPublisher
	topic    string
}

func NewKafkaTickPublisher(producer *pkgkafka.Producer, topic string) *KafkaTickPublisher {
	return &KafkaTickPublisher{producer: producer, topic: topic}
}

func (p *KafkaTickPublisher) PublishTicks(ctx context.Context, ticks []models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(ticks))
	for i, t := range ticks {
		msgs[i] = pkgkafka.Message{Key: []byte(t.Symbol), Value: t}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

var _ domrepo.AlertPublisher = (*KafkaAlertPublisher)(nil)
