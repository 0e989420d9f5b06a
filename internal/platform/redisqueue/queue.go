package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/phrazzld/shelf-api/internal/redact"
	"github.com/phrazzld/shelf-api/internal/task"
)

// defaultPollTimeout bounds each BRPOP so Dequeue notices cancellation and Close.
// It is also the smallest timeout Redis accepts.
const defaultPollTimeout = time.Second

// Options configures the Redis connection and list names.
type Options struct {
	Addr      string
	Password  string
	DB        int
	QueueName string
	DLQSuffix string

	// PollTimeout overrides the BRPOP timeout. Redis blocks in whole seconds,
	// so anything below one second is raised to one second.
	PollTimeout time.Duration
}

// Queue is a task.Queue backed by a Redis list. The list is unbounded:
// Redis holds the backlog, so Enqueue never refuses a job for capacity.
type Queue struct {
	client      *redis.Client
	name        string
	dlq         string
	pollTimeout time.Duration
	logger      *slog.Logger

	mu     sync.RWMutex
	closed bool
}

var _ task.Queue = (*Queue)(nil)

// Connect opens a client and verifies the server is reachable.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis at %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

// New wraps client as a task queue. The queue owns the client and closes it on Close.
func New(client *redis.Client, opts Options, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout < defaultPollTimeout {
		pollTimeout = defaultPollTimeout
	}
	return &Queue{
		client:      client,
		name:        opts.QueueName,
		dlq:         opts.QueueName + opts.DLQSuffix,
		pollTimeout: pollTimeout,
		logger: logger.With(
			slog.String("component", "redis_queue"),
			slog.String("queue", opts.QueueName),
		),
	}
}

// Enqueue implements task.Queue.
func (q *Queue) Enqueue(ctx context.Context, job task.Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return task.ErrQueueClosed
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := q.client.LPush(ctx, q.name, data).Err(); err != nil {
		return fmt.Errorf("failed to push job: %w", err)
	}
	q.logger.Debug("job enqueued", slog.String("task_id", job.TaskID.String()))
	return nil
}

// Dequeue implements task.Queue. Undecodable messages are moved to the
// dead-letter list and skipped.
func (q *Queue) Dequeue(ctx context.Context) (task.Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return task.Job{}, err
		}
		if q.isClosed() {
			return task.Job{}, task.ErrQueueClosed
		}

		result, err := q.client.BRPop(ctx, q.pollTimeout, q.name).Result()
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				continue
			case errors.Is(err, redis.ErrClosed):
				return task.Job{}, task.ErrQueueClosed
			case ctx.Err() != nil:
				return task.Job{}, ctx.Err()
			}
			return task.Job{}, fmt.Errorf("failed to pop job: %w", err)
		}
		if len(result) < 2 {
			continue
		}

		message := result[1]
		var job task.Job
		if err := json.Unmarshal([]byte(message), &job); err != nil {
			q.deadLetter(ctx, message, err)
			continue
		}
		return job, nil
	}
}

// Close implements task.Queue. It is safe to call more than once.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	q.logger.Info("task queue closed")
	return nil
}

// DeadLetterName returns the name of the dead-letter list.
func (q *Queue) DeadLetterName() string {
	return q.dlq
}

func (q *Queue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *Queue) deadLetter(ctx context.Context, message string, cause error) {
	q.logger.Error("failed to decode job, moving to dead-letter list",
		slog.String("dlq", q.dlq),
		slog.String("error", redact.Error(cause)))
	if err := q.client.LPush(context.WithoutCancel(ctx), q.dlq, message).Err(); err != nil {
		q.logger.Error("failed to move message to dead-letter list",
			slog.String("dlq", q.dlq),
			slog.String("error", err.Error()))
	}
}
