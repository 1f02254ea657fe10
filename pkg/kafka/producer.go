package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Message is one record handed to PublishBatch. Value may be []byte, a
// string, or anything json.Marshal accepts.
type Message struct {
	Key     []byte
	Value   any
	Headers map[string]string
}

// Producer writes batches to Kafka and records per-topic publish metrics.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	registerMetrics()
	return &Producer{writer: newWriter(cfg)}, nil
}

func newWriter(cfg ProducerConfig) *kafka.Writer {
	var balancer kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		balancer = &kafka.Hash{}
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     balancer,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  parseCompression(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
	}
}

// PublishBatch encodes messages and writes them to topic in one call. An
// encoding failure aborts the batch before anything is sent.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	records, size, err := toRecords(topic, messages, time.Now())
	if err != nil {
		return err
	}

	start := time.Now()
	err = p.writer.WriteMessages(ctx, records...)
	producerLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())

	result := "ok"
	if err != nil {
		result = "error"
	} else {
		producerBytes.WithLabelValues(topic).Add(float64(size))
	}
	producerMessages.WithLabelValues(topic, result).Add(float64(len(records)))
	return err
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func toRecords(topic string, messages []Message, now time.Time) ([]kafka.Message, int, error) {
	records := make([]kafka.Message, 0, len(messages))
	size := 0
	for i, m := range messages {
		value, err := encodeValue(m.Value)
		if err != nil {
			return nil, 0, fmt.Errorf("message %d: %w", i, err)
		}
		rec := kafka.Message{Topic: topic, Key: m.Key, Value: value, Time: now}
		for k, v := range m.Headers {
			rec.Headers = append(rec.Headers, kafka.Header{Key: k, Value: []byte(v)})
		}
		records = append(records, rec)
		size += len(value)
	}
	return records, size, nil
}

func encodeValue(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return b, nil
}

func parseCompression(name string) kafka.Compression {
	switch name {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	}
	return kafka.Gzip
}
