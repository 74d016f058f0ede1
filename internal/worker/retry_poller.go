package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"playerfeed/internal/engine"
)

// RetryPoller claims due jobs from the retry queue and feeds them back into
// the worker pool. The ZRem claim resolves races: whoever removes the member
// owns the job.
type RetryPoller struct {
	redisClient  *redis.Client
	pool         *Pool
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int64
}

func NewRetryPoller(redisClient *redis.Client, pool *Pool, logger *slog.Logger) *RetryPoller {
	return &RetryPoller{
		redisClient:  redisClient,
		pool:         pool,
		logger:       logger,
		pollInterval: 100 * time.Millisecond,
		batchSize:    10,
	}
}

// Run polls until the context is cancelled.
func (p *RetryPoller) Run(ctx context.Context) {
	p.logger.Info("retry poller started")

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("retry poller stopping")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *RetryPoller) poll(ctx context.Context) {
	now := float64(time.Now().UnixMilli())

	members, err := p.redisClient.ZRangeByScore(ctx, engine.RetryQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatFloat(now, 'f', -1, 64),
		Count: p.batchSize,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("failed to poll retry queue", "error", err)
		}
		return
	}

	for _, member := range members {
		removed, err := p.redisClient.ZRem(ctx, engine.RetryQueueKey, member).Result()
		if err != nil {
			p.logger.Error("failed to claim retry job", "error", err)
			continue
		}
		if removed == 0 {
			// Another poller already claimed this job
			continue
		}

		var job engine.DeliveryJob
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			p.logger.Error("failed to unmarshal retry job", "error", err)
			continue
		}

		if err := p.pool.Submit(ctx, job); err != nil {
			// Shutting down: push the claimed job back for the next run.
			if rerr := p.redisClient.ZAdd(context.WithoutCancel(ctx), engine.RetryQueueKey, redis.Z{
				Score:  now,
				Member: member,
			}).Err(); rerr != nil {
				p.logger.Error("failed to requeue retry job", "error", rerr)
			}
			return
		}
	}
}
