package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/shelf-api/internal/domain"
	"github.com/phrazzld/shelf-api/internal/platform/logger"
	"github.com/phrazzld/shelf-api/internal/redact"
	"github.com/phrazzld/shelf-api/internal/store"
)

// Failure messages recorded by the runner itself.
const (
	MessageInterrupted = "interrupted by shutdown"
	MessageStuck       = "processing timed out"
)

// RunnerConfig holds configuration for the Runner.
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks.
	WorkerCount int

	// MaxAttempts bounds in-worker attempts for transient failures. 1 disables retry.
	MaxAttempts int

	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration

	// ItemDelay is an artificial pause before each row is processed. Zero disables it.
	ItemDelay time.Duration

	// TaskTimeout bounds a single processing attempt.
	TaskTimeout time.Duration

	// StuckTaskAge is how long a task may stay processing before the monitor fails it.
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval is how often the monitor runs. Zero disables the monitor.
	StuckTaskCheckInterval time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:            4,
		MaxAttempts:            1,
		RetryDelay:             5 * time.Second,
		TaskTimeout:            30 * time.Second,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
	}
}

// Runner manages background processing of upload tasks.
type Runner struct {
	tasks     store.UploadTaskStore
	queue     Queue
	processor Processor
	config    RunnerConfig
	logger    *slog.Logger
	timeFunc  func() time.Time

	pool   *WorkerPool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a Runner. Call Start to begin processing.
func NewRunner(
	tasks store.UploadTaskStore,
	queue Queue,
	processor Processor,
	config RunnerConfig,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = DefaultRunnerConfig().TaskTimeout
	}
	if config.StuckTaskAge <= 0 {
		config.StuckTaskAge = DefaultRunnerConfig().StuckTaskAge
	}

	r := &Runner{
		tasks:     tasks,
		queue:     queue,
		processor: processor,
		config:    config,
		logger:    logger.With(slog.String("component", "task_runner")),
		timeFunc:  time.Now,
	}
	r.pool = NewWorkerPool(queue, config.WorkerCount, r.handle, r.logger)
	return r
}

// Enqueue schedules a task for processing without waiting for it.
func (r *Runner) Enqueue(ctx context.Context, taskID, ownerID uuid.UUID) error {
	job := Job{TaskID: taskID, OwnerID: ownerID, EnqueuedAt: r.timeFunc().UTC()}
	if err := r.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", taskID, err)
	}
	return nil
}

// Start fails interrupted tasks, launches the workers, then re-enqueues pending
// tasks in the background so a backlog larger than the queue drains through
// the running workers. The stuck-task monitor runs when configured.
func (r *Runner) Start(ctx context.Context) error {
	pending, err := r.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.pool.Start(ctx)

	if len(pending) > 0 {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.requeue(ctx, pending)
		}()
	}

	if r.config.StuckTaskCheckInterval > 0 {
		r.wg.Add(1)
		go r.stuckTaskMonitor(ctx)
	}
	return nil
}

// Stop cancels the workers, waits for them to exit, then closes the queue.
// Tasks interrupted mid-processing are recorded as failed.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.pool.Wait()
	r.wg.Wait()
	if err := r.queue.Close(); err != nil {
		r.logger.Error("failed to close task queue", slog.String("error", err.Error()))
	}
}

// Recover fails tasks left processing by a previous run and returns the
// pending tasks that still need a worker. Only tasks idle for longer than
// StuckTaskAge count as interrupted: a fresher processing task may belong to
// a live worker in another process sharing the store. A task enters
// processing at most once, so interrupted work is never retried.
func (r *Runner) Recover(ctx context.Context) ([]domain.UploadTask, error) {
	pending, err := r.tasks.ListByStatus(ctx, domain.TaskStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending tasks: %w", err)
	}
	interrupted, err := r.tasks.ListStaleProcessing(ctx, r.timeFunc().Add(-r.config.StuckTaskAge))
	if err != nil {
		return nil, fmt.Errorf("failed to get interrupted tasks: %w", err)
	}

	r.logger.Info("recovering unfinished tasks",
		slog.Int("pending_count", len(pending)),
		slog.Int("interrupted_count", len(interrupted)))

	for _, t := range interrupted {
		if err := r.tasks.CompleteFailure(ctx, t.ID, MessageInterrupted, r.timeFunc()); err != nil &&
			!errors.Is(err, store.ErrInvalidTransition) {
			r.logger.Error("failed to fail interrupted task",
				slog.String("task_id", t.ID.String()),
				slog.String("error", err.Error()))
		}
	}

	return pending, nil
}

// requeue enqueues recovered pending tasks, waiting on queue capacity as needed.
func (r *Runner) requeue(ctx context.Context, pending []domain.UploadTask) {
	for _, t := range pending {
		if err := r.Enqueue(ctx, t.ID, t.UserID); err != nil {
			if ctx.Err() != nil {
				return
			}
			// The task stays pending and is picked up by the next recovery.
			r.logger.Error("failed to requeue pending task",
				slog.String("task_id", t.ID.String()),
				slog.String("error", err.Error()))
		}
	}
}

// handle runs one job to a terminal state. It never returns an error: every
// failure after a successful claim is written to the task.
func (r *Runner) handle(ctx context.Context, job Job, workerID int) {
	workerJobID := fmt.Sprintf("worker-%d-%s", workerID, uuid.NewString())
	log := r.logger.With(
		slog.String("task_id", job.TaskID.String()),
		slog.String("worker_job_id", workerJobID),
	)
	ctx = logger.WithLogger(ctx, log)

	task, err := r.tasks.Claim(ctx, job.TaskID, workerJobID, r.timeFunc())
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyClaimed):
			log.Debug("task already claimed, skipping")
		case errors.Is(err, store.ErrUploadTaskNotFound):
			log.Warn("task not found, skipping")
		default:
			// Left pending; recovery re-enqueues it on the next start.
			log.Error("failed to claim task", slog.String("error", err.Error()))
		}
		return
	}

	// Terminal writes must land even while the runner is shutting down.
	writeCtx := context.WithoutCancel(ctx)

	bookID, err := r.process(ctx, task, job, log)
	if err != nil {
		message := redact.Error(err)
		if ctx.Err() != nil {
			message = MessageInterrupted
		}
		if werr := r.tasks.CompleteFailure(writeCtx, task.ID, message, r.timeFunc()); werr != nil {
			log.Error("failed to record task failure", slog.String("error", werr.Error()))
			return
		}
		log.Info("task failed", slog.String("reason", message), slog.Int("attempts", task.Attempts))
		return
	}

	if err := r.tasks.CompleteSuccess(writeCtx, task.ID, bookID, r.timeFunc()); err != nil {
		log.Error("failed to record task success",
			slog.String("book_id", bookID.String()),
			slog.String("error", err.Error()))
		return
	}
	log.Info("task completed", slog.String("book_id", bookID.String()))
}

func (r *Runner) process(ctx context.Context, task *domain.UploadTask, job Job, log *slog.Logger) (uuid.UUID, error) {
	if job.OwnerID != uuid.Nil && job.OwnerID != task.UserID {
		return uuid.Nil, errors.New("job owner does not match task owner")
	}

	row := task.Row.Normalize()
	if err := row.Validate(); err != nil {
		return uuid.Nil, err
	}

	if r.config.ItemDelay > 0 {
		if err := sleep(ctx, r.config.ItemDelay); err != nil {
			return uuid.Nil, err
		}
	}

	var lastErr error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		bookID, err := r.attempt(ctx, task.UserID, row)
		if err == nil {
			return bookID, nil
		}
		lastErr = err

		if IsPermanent(err) || ctx.Err() != nil || attempt == r.config.MaxAttempts {
			break
		}
		log.Warn("transient processing failure, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", r.config.MaxAttempts),
			slog.String("error", err.Error()))
		if err := sleep(ctx, r.config.RetryDelay); err != nil {
			return uuid.Nil, err
		}
	}
	return uuid.Nil, lastErr
}

// attempt runs the processor once under the task timeout, converting a panic into an error.
func (r *Runner) attempt(ctx context.Context, ownerID uuid.UUID, row domain.BookRow) (bookID uuid.UUID, err error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.TaskTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic during processing: %v", rec)
		}
	}()

	return r.processor.Process(ctx, ownerID, row)
}

// stuckTaskMonitor periodically fails tasks that have been processing for too long.
func (r *Runner) stuckTaskMonitor(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.FailStuckTasks(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("failed to check for stuck tasks", slog.String("error", err.Error()))
			}
		}
	}
}

// FailStuckTasks fails every task processing for longer than StuckTaskAge and
// returns how many it failed. Each write is conditional, so a task that
// finishes concurrently keeps its real outcome.
func (r *Runner) FailStuckTasks(ctx context.Context) (int, error) {
	cutoff := r.timeFunc().Add(-r.config.StuckTaskAge)
	stuck, err := r.tasks.ListStaleProcessing(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, t := range stuck {
		err := r.tasks.CompleteFailure(ctx, t.ID, MessageStuck, r.timeFunc())
		switch {
		case err == nil:
			failed++
			r.logger.Warn("failed stuck task", slog.String("task_id", t.ID.String()))
		case errors.Is(err, store.ErrInvalidTransition):
		default:
			r.logger.Error("failed to fail stuck task",
				slog.String("task_id", t.ID.String()),
				slog.String("error", err.Error()))
		}
	}
	return failed, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
