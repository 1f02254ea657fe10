package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"FinAlert/internal/domain/models"
	domrepo "FinAlert/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueKey is the Redis list holding the realtime alert view.
const DefaultQueueKey = "stock:alerts:realtime"

// RedisDeliveryQueue keeps the newest alerts in a capped Redis list.
type RedisDeliveryQueue struct {
	client   redis.UniversalClient
	key      string
	capacity int
}

func NewRedisDeliveryQueue(client redis.UniversalClient, key string, capacity int) *RedisDeliveryQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisDeliveryQueue{client: client, key: key, capacity: capacity}
}

// Push prepends a and trims the list to capacity in one MULTI block.
func (q *RedisDeliveryQueue) Push(ctx context.Context, a models.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, q.key, data)
	pipe.LTrim(ctx, q.key, 0, int64(q.capacity-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push alert %s: %w", a.ID, err)
	}
	return nil
}

// Recent returns up to limit alerts, newest first. Entries that fail to decode are skipped.
func (q *RedisDeliveryQueue) Recent(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 || limit > q.capacity {
		limit = q.capacity
	}
	raw, err := q.client.LRange(ctx, q.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read realtime alerts: %w", err)
	}
	out := make([]models.Alert, 0, len(raw))
	for _, r := range raw {
		var a models.Alert
		if err := json.Unmarshal([]byte(r), &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// MemoryDeliveryQueue is the in-process equivalent of RedisDeliveryQueue.
type MemoryDeliveryQueue struct {
	mu       sync.Mutex
	items    []models.Alert // newest first
	capacity int
}

func NewMemoryDeliveryQueue(capacity int) *MemoryDeliveryQueue {
	return &MemoryDeliveryQueue{capacity: capacity, items: make([]models.Alert, 0, capacity)}
}

func (q *MemoryDeliveryQueue) Push(_ context.Context, a models.Alert) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append([]models.Alert{a}, q.items...)
	if len(q.items) > q.capacity {
		q.items = q.items[:q.capacity]
	}
	return nil
}

func (q *MemoryDeliveryQueue) Recent(_ context.Context, limit int) ([]models.Alert, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if limit <= 0 || limit > len(q.items) {
		limit = len(q.items)
	}
	out := make([]models.Alert, limit)
	copy(out, q.items[:limit])
	return out, nil
}

var (
	_ domrepo.DeliveryQueue = (*RedisDeliveryQueue)(nil)
	_ domrepo.DeliveryQueue = (*MemoryDeliveryQueue)(nil)
)
