package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryQueueKey is the Redis sorted set holding deferred delivery jobs,
// scored by due time in Unix milliseconds.
const RetryQueueKey = "retry_queue"

const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 10 * time.Second
)

// Backoff returns the wait before the next attempt after the given attempt
// number failed: 500ms doubling per attempt, capped at 10s.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := backoffBase << (attempt - 1)
	if d > backoffCap || d <= 0 {
		return backoffCap
	}
	return d
}

// RetryQueue schedules delivery jobs for a later attempt. Each entry is
// independent, so rescheduling one subscription's job never touches another's.
type RetryQueue struct {
	redisClient *redis.Client
}

func NewRetryQueue(redisClient *redis.Client) *RetryQueue {
	return &RetryQueue{redisClient: redisClient}
}

// Schedule enqueues a job to run at the given due time.
func (q *RetryQueue) Schedule(ctx context.Context, job DeliveryJob, due time.Time) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling delivery job: %w", err)
	}

	err = q.redisClient.ZAdd(ctx, RetryQueueKey, redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: string(data),
	}).Err()
	if err != nil {
		return fmt.Errorf("scheduling retry: %w", err)
	}
	return nil
}

// Depth returns the number of jobs waiting in the retry queue.
func (q *RetryQueue) Depth(ctx context.Context) (int64, error) {
	return q.redisClient.ZCard(ctx, RetryQueueKey).Result()
}
