package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	DefaultKey          = "rawmessage:created"
	DefaultBlockTimeout = 5 * time.Second
)

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Key          string
	BlockTimeout time.Duration
}

// RedisQueue keeps pending ids in one list and moves each delivery into a
// processing list with BRPOPLPUSH. Anything left in the processing list
// after a crash is put back by Recover.
type RedisQueue struct {
	client       *redis.Client
	pendingKey   string
	inflightKey  string
	blockTimeout time.Duration
	logger       *slog.Logger
}

func NewRedisQueue(cfg RedisConfig, logger *slog.Logger) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisQueueWithClient(client, cfg.Key, cfg.BlockTimeout, logger)
}

func NewRedisQueueWithClient(client *redis.Client, key string, blockTimeout time.Duration, logger *slog.Logger) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	if blockTimeout <= 0 {
		blockTimeout = DefaultBlockTimeout
	}
	return &RedisQueue{
		client:       client,
		pendingKey:   key,
		inflightKey:  key + ":processing",
		blockTimeout: blockTimeout,
		logger:       logger,
	}
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Publish(ctx context.Context, id string) error {
	if err := q.client.LPush(ctx, q.pendingKey, id).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", id, err)
	}
	q.logger.Debug("raw message enqueued", "raw_message_id", id, "key", q.pendingKey)
	return nil
}

func (q *RedisQueue) Receive(ctx context.Context) (string, error) {
	id, err := q.client.BRPopLPush(ctx, q.pendingKey, q.inflightKey, q.blockTimeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNoMessage
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("redis receive: %w", err)
	}
	return id, nil
}

func (q *RedisQueue) Ack(ctx context.Context, id string) error {
	if err := q.client.LRem(ctx, q.inflightKey, 1, id).Err(); err != nil {
		return fmt.Errorf("redis ack %s: %w", id, err)
	}
	return nil
}

// Nack hands the id back to the pending list in one MULTI block.
func (q *RedisQueue) Nack(ctx context.Context, id string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.inflightKey, 1, id)
		pipe.LPush(ctx, q.pendingKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis nack %s: %w", id, err)
	}
	return nil
}

// Recover requeues every delivery a previous consumer left unacknowledged.
// Call it before any consumer of the same key starts receiving.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	recovered := 0
	for {
		err := q.client.RPopLPush(ctx, q.inflightKey, q.pendingKey).Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return recovered, fmt.Errorf("redis recover: %w", err)
		}
		recovered++
	}

	if recovered > 0 {
		q.logger.Info("requeued unacknowledged deliveries", "count", recovered, "key", q.pendingKey)
	}
	return recovered, nil
}

// Len reports the pending and in-flight list lengths.
func (q *RedisQueue) Len(ctx context.Context) (pending, inflight int64, err error) {
	pipe := q.client.Pipeline()
	pendingCmd := pipe.LLen(ctx, q.pendingKey)
	inflightCmd := pipe.LLen(ctx, q.inflightKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return pendingCmd.Val(), inflightCmd.Val(), nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
