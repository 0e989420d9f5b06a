package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/shelf-api/internal/domain"
	"github.com/phrazzld/shelf-api/internal/platform/logger"
	"github.com/phrazzld/shelf-api/internal/store"
)

// InvalidRowPolicy decides what happens to rows that fail validation.
type InvalidRowPolicy string

// Supported invalid row policies
const (
	// PolicySkip drops invalid rows and reports them in SubmitResult.SkippedRows.
	PolicySkip InvalidRowPolicy = "skip"

	// PolicyRecord creates a task for each invalid row that is already failed.
	PolicyRecord InvalidRowPolicy = "record"
)

// MessageNotScheduled is recorded on tasks the queue refused.
const MessageNotScheduled = "could not be scheduled for processing"

// Enqueuer schedules a task for asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskID, ownerID uuid.UUID) error
}

// Config controls submission behavior.
type Config struct {
	InvalidRowPolicy InvalidRowPolicy
	// MaxRows caps the rows accepted per submission. Zero means unbounded.
	MaxRows int
}

// SkippedRow reports a row that produced no task.
type SkippedRow struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// SubmitResult describes an accepted batch.
type SubmitResult struct {
	BatchID     uuid.UUID    `json:"batch_id"`
	TaskIDs     []uuid.UUID  `json:"task_ids"`
	TotalRows   int          `json:"total_rows"`
	SkippedRows []SkippedRow `json:"skipped_rows"`
}

// Tracker creates batches of upload tasks and answers status queries.
type Tracker struct {
	tasks     store.UploadTaskStore
	enqueuer  Enqueuer
	validator *RowValidator
	config    Config
	logger    *slog.Logger
	timeFunc  func() time.Time
}

// NewTracker creates a Tracker. An empty policy means PolicySkip.
func NewTracker(tasks store.UploadTaskStore, enqueuer Enqueuer, config Config, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if config.InvalidRowPolicy == "" {
		config.InvalidRowPolicy = PolicySkip
	}
	return &Tracker{
		tasks:     tasks,
		enqueuer:  enqueuer,
		validator: NewRowValidator(),
		config:    config,
		logger:    logger.With(slog.String("component", "batch_tracker")),
		timeFunc:  time.Now,
	}
}

// SubmitBatch validates rows, persists one task per accepted row under a new
// batch ID, and enqueues the pending ones. Row numbers in the result are 1-based.
// It returns ErrNoValidRows when no row passes validation, in which case
// nothing is persisted.
func (t *Tracker) SubmitBatch(ctx context.Context, ownerID uuid.UUID, rows []domain.BookRow) (*SubmitResult, error) {
	log := logger.FromContextOrDefault(ctx, t.logger)

	if t.config.MaxRows > 0 && len(rows) > t.config.MaxRows {
		return nil, fmt.Errorf("%w: %d rows exceeds the limit of %d", ErrTooManyRows, len(rows), t.config.MaxRows)
	}

	batchID := uuid.New()
	now := t.timeFunc().UTC()
	result := &SubmitResult{
		BatchID:     batchID,
		TaskIDs:     make([]uuid.UUID, 0, len(rows)),
		TotalRows:   len(rows),
		SkippedRows: make([]SkippedRow, 0),
	}

	tasks := make([]*domain.UploadTask, 0, len(rows))
	valid := 0
	for i, raw := range rows {
		row, verr := t.validator.Validate(raw)
		if verr != nil && t.config.InvalidRowPolicy == PolicySkip {
			result.SkippedRows = append(result.SkippedRows, SkippedRow{Row: i + 1, Error: verr.Error()})
			continue
		}

		task, err := domain.NewUploadTask(batchID, ownerID, row)
		if err != nil {
			return nil, err
		}
		// Distinct microsecond timestamps keep listing order equal to row order.
		created := now.Add(time.Duration(len(tasks)) * time.Microsecond)
		task.CreatedAt, task.UpdatedAt = created, created

		if verr != nil {
			if err := task.Fail(verr.Error(), created); err != nil {
				return nil, err
			}
		} else {
			valid++
		}
		tasks = append(tasks, task)
	}

	if valid == 0 {
		return nil, ErrNoValidRows
	}

	if err := t.tasks.CreateBatch(ctx, tasks); err != nil {
		return nil, fmt.Errorf("failed to store batch: %w", err)
	}

	// The rows are committed; a caller hanging up must not strand them. A
	// bounded queue may make this loop wait for workers to free capacity.
	enqueueCtx := context.WithoutCancel(ctx)
	for _, task := range tasks {
		result.TaskIDs = append(result.TaskIDs, task.ID)
		if task.Status != domain.TaskStatusPending {
			continue
		}
		if err := t.enqueuer.Enqueue(enqueueCtx, task.ID, ownerID); err != nil {
			log.Error("failed to enqueue task",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()))
			if ferr := t.tasks.CompleteFailure(enqueueCtx, task.ID, MessageNotScheduled, t.timeFunc()); ferr != nil {
				log.Error("failed to record unscheduled task",
					slog.String("task_id", task.ID.String()),
					slog.String("error", ferr.Error()))
			}
		}
	}

	log.Info("batch submitted",
		slog.String("batch_id", batchID.String()),
		slog.String("user_id", ownerID.String()),
		slog.Int("total_rows", result.TotalRows),
		slog.Int("task_count", len(result.TaskIDs)),
		slog.Int("skipped_count", len(result.SkippedRows)))

	return result, nil
}

// GetTask returns a task owned by ownerID. Tasks of other users read as
// store.ErrUploadTaskNotFound.
func (t *Tracker) GetTask(ctx context.Context, ownerID, taskID uuid.UUID) (*domain.UploadTask, error) {
	task, err := t.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.UserID != ownerID {
		return nil, store.ErrUploadTaskNotFound
	}
	return task, nil
}

// GetBatch summarizes the tasks of batchID owned by ownerID. An unknown
// batch yields an empty summary.
func (t *Tracker) GetBatch(ctx context.Context, ownerID, batchID uuid.UUID) (*domain.BatchSummary, error) {
	tasks, err := t.tasks.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch tasks: %w", err)
	}

	owned := tasks[:0]
	for _, task := range tasks {
		if task.UserID == ownerID {
			owned = append(owned, task)
		}
	}
	return domain.SummarizeBatch(batchID, owned), nil
}
