package worker

import (
	"context"

	"skusync/internal/metrics"
	"skusync/internal/storage"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pool manages a fixed number of workers pulling tasks from a shared queue
type Pool struct {
	size      int
	processor *TaskProcessor
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewPool creates a new worker pool
func NewPool(
	size int,
	config Config,
	client storage.Client,
	metricsCollector *metrics.Collector,
	logger *zap.Logger,
) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		size:      size,
		processor: NewTaskProcessor(config, client, metricsCollector, logger),
		metrics:   metricsCollector,
		logger:    logger,
	}
}

// Run processes tasks and sends one Outcome per processed task to outcomes,
// closing it when every worker has returned. The first fatal error stops
// dispatch; tasks already taken by other workers run to completion and are
// still reported. The fatal error is returned, or ctx's error when the run
// was cancelled from outside.
func (p *Pool) Run(ctx context.Context, tasks []Task, outcomes chan<- Outcome) error {
	defer close(outcomes)

	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()

	jobs := make(chan Task)
	var g errgroup.Group

	g.Go(func() error {
		defer close(jobs)
		for _, task := range tasks {
			select {
			case jobs <- task:
			case <-dispatchCtx.Done():
				return nil
			}
		}
		return nil
	})

	for i := 0; i < p.size; i++ {
		id := i
		g.Go(func() error {
			err := p.worker(ctx, dispatchCtx, id, jobs, outcomes)
			if err != nil {
				stopDispatch()
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (p *Pool) worker(ctx, dispatchCtx context.Context, id int, jobs <-chan Task, outcomes chan<- Outcome) error {
	logger := p.logger.With(zap.Int("worker_id", id))
	logger.Debug("Worker started")

	for task := range jobs {
		// the feeder may win a send against cancellation; such a task
		// was never started and is left unprocessed
		if dispatchCtx.Err() != nil {
			logger.Debug("Worker stopped - dispatch halted")
			return nil
		}

		p.metrics.WorkerBusy(true)
		outcome, err := p.processor.Process(ctx, task)
		p.metrics.WorkerBusy(false)

		if err != nil {
			logger.Error("Fatal error, halting dispatch", zap.String("sku", task.SKU), zap.Error(err))
			return err
		}
		outcomes <- outcome
	}

	logger.Debug("Worker finished - no more tasks")
	return nil
}
