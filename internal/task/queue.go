package task

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors returned by Queue implementations
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// Job references one upload task to process. The task row in the store is the
// source of truth; a Job only says "look at this task".
type Job struct {
	TaskID     uuid.UUID `json:"task_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue transports jobs from submitters to workers. Delivery is at least once;
// workers deduplicate by claiming the task.
type Queue interface {
	// Enqueue adds a job. Bounded implementations wait for capacity until ctx
	// is done and then return ErrQueueFull. Returns ErrQueueClosed after Close.
	Enqueue(ctx context.Context, job Job) error

	// Dequeue blocks until a job is available, ctx is done, or the queue is closed.
	Dequeue(ctx context.Context) (Job, error)

	// Close stops accepting jobs.
	Close() error
}
