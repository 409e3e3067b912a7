// Package queue is the Redis list that carries storage paths to the
// orphan sweeper.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Item is one queued storage path.
type Item struct {
	Path     string    `json:"path"`
	Attempts int       `json:"attempts"`
	QueuedAt time.Time `json:"queued_at"`
}

type RedisQueue struct {
	rdb       *redis.Client
	queueName string
}

func NewRedisQueue(rdb *redis.Client, queueName string) *RedisQueue {
	return &RedisQueue{rdb: rdb, queueName: queueName}
}

// Push enqueues path for a first sweep attempt.
func (q *RedisQueue) Push(ctx context.Context, path string) error {
	return q.push(ctx, Item{Path: path, QueuedAt: time.Now().UTC()})
}

// Requeue puts item back with its attempt count incremented.
func (q *RedisQueue) Requeue(ctx context.Context, item Item) error {
	item.Attempts++
	return q.push(ctx, item)
}

func (q *RedisQueue) push(ctx context.Context, item Item) error {
	b, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode queue item: %w", err)
	}
	return q.rdb.LPush(ctx, q.queueName, b).Err()
}

// Pop blocks up to timeout for the next item (BRPOP). It returns nil
// and no error when the wait times out.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Item, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.queueName).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, nil
	}

	var item Item
	if err := json.Unmarshal([]byte(res[1]), &item); err != nil {
		// Plain strings are accepted so paths can be queued by hand.
		return &Item{Path: res[1]}, nil
	}
	return &item, nil
}

// Len reports the number of waiting items.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.queueName).Result()
}
