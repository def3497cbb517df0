package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/auralforge/auralforge/internal/metrics"
	"github.com/auralforge/auralforge/internal/queue"
)

// PoolConfig sizes a Pool.
type PoolConfig struct {
	Queues      []string
	Concurrency int
	Consumer    queue.ConsumerOptions
}

// Pool runs Concurrency consumers for each queue.
type Pool struct {
	consumers []*queue.Consumer
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewPool builds one consumer per (queue, slot).
func NewPool(client *redis.Client, handler queue.Handler, cfg PoolConfig, logger *slog.Logger, recorder metrics.Recorder) *Pool {
	p := &Pool{logger: logger.With("component", "worker.pool")}
	for _, q := range cfg.Queues {
		for slot := range max(cfg.Concurrency, 1) {
			id := queue.NewConsumerID(q, slot)
			p.consumers = append(p.consumers, queue.NewConsumer(client, q, handler, logger, id, recorder, cfg.Consumer))
		}
	}
	return p
}

// Size is the number of consumers.
func (p *Pool) Size() int {
	return len(p.consumers)
}

// Start launches every consumer in its own goroutine.
func (p *Pool) Start(ctx context.Context) {
	for _, c := range p.consumers {
		p.wg.Add(1)
		go func(c *queue.Consumer) {
			defer p.wg.Done()
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error("consumer stopped", "error", err)
			}
		}(c)
	}
	p.logger.Info("worker pool started", "consumers", len(p.consumers))
}

// Shutdown drains every consumer and waits for their goroutines.
func (p *Pool) Shutdown(ctx context.Context) error {
	var errs []error
	for _, c := range p.consumers {
		if err := c.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}
