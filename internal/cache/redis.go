// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list the historian consumes game actions from.
const DefaultQueueName = "njuka_actions"

// ActionRecord is one game action as the historian persists it.
type ActionRecord struct {
	GameID        uuid.UUID              `json:"game_id"`
	ActionIndex   int                    `json:"action_index"`
	ActorUserID   string                 `json:"actor_user_id,omitempty"`
	ActionType    string                 `json:"action_type"`
	ActionPayload map[string]interface{} `json:"action_payload"`
	Timestamp     int64                  `json:"timestamp"`
}

// Publisher ships action records to the historian.
type Publisher interface {
	PublishGameAction(ctx context.Context, record ActionRecord) error
}

// Connect opens a Redis client and verifies it with a ping.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// RedisPublisher pushes records onto a Redis list with RPush.
type RedisPublisher struct {
	client *redis.Client
	queue  string
}

func NewRedisPublisher(client *redis.Client, queue string) *RedisPublisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &RedisPublisher{client: client, queue: queue}
}

// PublishGameAction serializes the record to JSON and appends it to the queue.
func (p *RedisPublisher) PublishGameAction(ctx context.Context, record ActionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal ActionRecord: %w", err)
	}
	if err := p.client.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}

// NopPublisher discards every record. Used when Redis is not configured.
type NopPublisher struct{}

func (NopPublisher) PublishGameAction(context.Context, ActionRecord) error { return nil }

// RedisQueue pops action records pushed by a RedisPublisher.
type RedisQueue struct {
	client *redis.Client
	queue  string
}

func NewRedisQueue(client *redis.Client, queue string) *RedisQueue {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &RedisQueue{client: client, queue: queue}
}

// Pop blocks up to timeout for the next record. ok is false when the wait timed out.
// A malformed entry is consumed and reported as an error.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (ActionRecord, bool, error) {
	res, err := q.client.BLPop(ctx, timeout, q.queue).Result()
	if errors.Is(err, redis.Nil) {
		return ActionRecord{}, false, nil
	}
	if err != nil {
		return ActionRecord{}, false, fmt.Errorf("BLPop %s: %w", q.queue, err)
	}
	// res[0] is the queue name and res[1] the payload
	if len(res) < 2 {
		return ActionRecord{}, false, nil
	}

	var record ActionRecord
	if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
		return ActionRecord{}, false, fmt.Errorf("invalid action record: %w", err)
	}
	return record, true, nil
}
