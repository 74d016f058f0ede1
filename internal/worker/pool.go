package worker

import (
	"context"
	"log/slog"
	"sync"

	"playerfeed/internal/engine"
)

// Pool runs a fixed number of delivery workers over a bounded job channel.
// The channel capacity (2x workers) is the pipeline's concurrency ceiling:
// when it is full, Submit blocks the dispatcher until a worker frees up.
type Pool struct {
	numWorkers int
	jobs       chan engine.DeliveryJob
	deliverer  *Deliverer
	logger     *slog.Logger
	wg         sync.WaitGroup
}

func NewPool(numWorkers int, deliverer *Deliverer, logger *slog.Logger) *Pool {
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan engine.DeliveryJob, numWorkers*2),
		deliverer:  deliverer,
		logger:     logger,
	}
}

// Start launches the worker goroutines. They drain the jobs channel until
// it is closed.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers)
}

// Submit queues a job, blocking while the pool is at its ceiling. Returns
// the context error if the caller is cancelled while waiting.
func (p *Pool) Submit(ctx context.Context, job engine.DeliveryJob) error {
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the jobs channel and waits for in-flight deliveries to finish.
// Each delivery is individually bounded by the delivery timeout.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for job := range p.jobs {
		p.deliverer.Deliver(ctx, job)
	}
}
