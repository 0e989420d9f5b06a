package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// dequeueBackoff is how long a worker waits after a transport error before polling again.
const dequeueBackoff = time.Second

// JobHandler processes one dequeued job. It must not panic; the pool recovers
// anyway and logs the panic.
type JobHandler func(ctx context.Context, job Job, workerID int)

// WorkerPool manages a pool of worker goroutines that pull jobs from a Queue.
type WorkerPool struct {
	queue       Queue
	workerCount int
	handler     JobHandler
	logger      *slog.Logger

	wg sync.WaitGroup
}

// NewWorkerPool creates a new worker pool. A non-positive workerCount becomes 1.
func NewWorkerPool(queue Queue, workerCount int, handler JobHandler, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	if workerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			slog.Int("specified_count", workerCount),
			slog.Int("default_count", 1))
		workerCount = 1
	}
	return &WorkerPool{
		queue:       queue,
		workerCount: workerCount,
		handler:     handler,
		logger:      logger,
	}
}

// Start launches the workers. They run until ctx is done or the queue is closed.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("worker pool started", slog.Int("worker_count", p.workerCount))
}

// Wait blocks until every worker has exited.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", slog.Int("worker_id", id))
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				p.logger.Debug("stopping worker", slog.Int("worker_id", id))
				return
			case errors.Is(err, ErrQueueClosed):
				p.logger.Debug("task queue closed, stopping worker", slog.Int("worker_id", id))
				return
			}
			p.logger.Error("failed to dequeue job",
				slog.Int("worker_id", id),
				slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueBackoff):
			}
			continue
		}

		p.run(ctx, job, id)
	}
}

func (p *WorkerPool) run(ctx context.Context, job Job, id int) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("job handler panicked",
				slog.Int("worker_id", id),
				slog.String("task_id", job.TaskID.String()),
				slog.Any("panic", rec))
		}
	}()
	p.handler(ctx, job, id)
}
