package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue accepts messages for delivery.
type Queue interface {
	Enqueue(ctx context.Context, msg Message) error
}

// RedisQueue is an outbox kept in Redis. Ready messages wait in a list; a dequeued message
// stays in a processing list until it is acked, rescheduled in the retry set (scored by due
// time) or moved to the dead-letter list.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue rooted at key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) retryKey() string      { return q.key + ":retry" }
func (q *RedisQueue) deadKey() string       { return q.key + ":dead" }
func (q *RedisQueue) processingKey() string { return q.key + ":processing" }

// Enqueue appends msg to the ready list.
func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode mail message: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue mail message: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next ready message and moves it to the processing
// list. It returns nil, nil on timeout. The message must be settled with Ack, Retry or
// DeadLetter.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Message, error) {
	payload, err := q.client.BLMove(ctx, q.key, q.processingKey(), "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		// unreadable payloads would block the processing list forever
		_ = q.settle(ctx, payload, func(pipe redis.Pipeliner) {
			pipe.LPush(ctx, q.deadKey(), payload)
		})
		return nil, fmt.Errorf("decode mail message: %w", err)
	}
	msg.receipt = payload
	return &msg, nil
}

// Ack drops a delivered message from the processing list.
func (q *RedisQueue) Ack(ctx context.Context, msg Message) error {
	if msg.receipt == "" {
		return nil
	}
	return q.settle(ctx, msg.receipt, nil)
}

// Retry schedules msg to become ready again at dueAt.
func (q *RedisQueue) Retry(ctx context.Context, msg Message, dueAt time.Time) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode mail message: %w", err)
	}
	return q.settle(ctx, msg.receipt, func(pipe redis.Pipeliner) {
		pipe.ZAdd(ctx, q.retryKey(), redis.Z{Score: float64(dueAt.UnixMilli()), Member: payload})
	})
}

// PromoteDue moves retries whose due time has passed back onto the ready list and reports
// how many moved.
func (q *RedisQueue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	due, err := q.client.ZRangeByScore(ctx, q.retryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, payload := range due {
		removed, err := q.client.ZRem(ctx, q.retryKey(), payload).Result()
		if err != nil {
			return moved, err
		}
		if removed == 0 {
			// another worker already promoted it
			continue
		}
		if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// DeadLetter parks msg after its retries are exhausted.
func (q *RedisQueue) DeadLetter(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode mail message: %w", err)
	}
	return q.settle(ctx, msg.receipt, func(pipe redis.Pipeliner) {
		pipe.LPush(ctx, q.deadKey(), payload)
	})
}

// settle removes receipt from the processing list and applies next in the same transaction.
// An empty receipt means the message was never dequeued.
func (q *RedisQueue) settle(ctx context.Context, receipt string, next func(redis.Pipeliner)) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if next != nil {
			next(pipe)
		}
		if receipt != "" {
			pipe.LRem(ctx, q.processingKey(), 1, receipt)
		}
		return nil
	})
	return err
}

// RequeueInFlight moves everything left in the processing list back onto the ready list and
// reports how many moved. Only call it while no consumer is running.
func (q *RedisQueue) RequeueInFlight(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processingKey(), q.key, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
}

// InFlight returns the number of dequeued messages not yet settled.
func (q *RedisQueue) InFlight(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.processingKey()).Result()
}

// Stats returns the ready, delayed and dead-letter counts.
func (q *RedisQueue) Stats(ctx context.Context) (ready, delayed, dead int64, err error) {
	pipe := q.client.Pipeline()
	readyCmd := pipe.LLen(ctx, q.key)
	delayedCmd := pipe.ZCard(ctx, q.retryKey())
	deadCmd := pipe.LLen(ctx, q.deadKey())
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, 0, 0, err
	}
	return readyCmd.Val(), delayedCmd.Val(), deadCmd.Val(), nil
}

// DirectQueue sends on the caller's goroutine. A delivery failure is returned to the caller.
type DirectQueue struct {
	sender Sender
}

// NewDirectQueue builds a queue that delivers synchronously through sender.
func NewDirectQueue(sender Sender) *DirectQueue {
	return &DirectQueue{sender: sender}
}

// Enqueue delivers msg immediately.
func (q *DirectQueue) Enqueue(ctx context.Context, msg Message) error {
	return q.sender.Send(ctx, msg)
}
