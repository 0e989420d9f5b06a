package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// MemoryQueue is a buffered, in-process Queue. Jobs do not survive a restart;
// the Runner's recovery pass re-enqueues pending tasks from the store instead.
// A full buffer applies backpressure to Enqueue rather than dropping jobs.
type MemoryQueue struct {
	jobs   chan Job
	done   chan struct{}
	logger *slog.Logger

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewMemoryQueue creates a new queue with the specified buffer size.
func NewMemoryQueue(size int, logger *slog.Logger) *MemoryQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryQueue{
		jobs:   make(chan Job, size),
		done:   make(chan struct{}),
		logger: logger.With(slog.String("component", "memory_queue")),
	}
}

var _ Queue = (*MemoryQueue)(nil)

// Enqueue implements Queue. When the buffer is full it waits for a worker to
// make room, giving up with ErrQueueFull once ctx is done.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		q.logger.Debug("job enqueued",
			slog.String("task_id", job.TaskID.String()),
			slog.Int("queue_len", len(q.jobs)),
			slog.Int("queue_cap", cap(q.jobs)))
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: capacity %d reached: %w", ErrQueueFull, cap(q.jobs), ctx.Err())
	}
}

// Dequeue implements Queue. Jobs buffered before Close are still delivered.
func (q *MemoryQueue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case <-ctx.Done():
		return Job{}, ctx.Err()
	case job, ok := <-q.jobs:
		if !ok {
			return Job{}, ErrQueueClosed
		}
		return job, nil
	}
}

// Close implements Queue. It is safe to call more than once.
func (q *MemoryQueue) Close() error {
	// Wake blocked producers first; they hold the read lock while waiting.
	q.closeOnce.Do(func() { close(q.done) })

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.jobs)
		q.logger.Info("task queue closed")
	}
	return nil
}

// Len returns the number of buffered jobs.
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}
