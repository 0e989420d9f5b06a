package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/shelf-api/internal/domain"
)

// UploadTaskStore persists per-row ingestion tasks and enforces their state
// machine at write time. Every status change is conditional on the current
// status, so concurrent writers cannot move a task backwards or out of a
// terminal state.
type UploadTaskStore interface {
	// CreateBatch inserts all tasks atomically. Either every task is stored or none is.
	CreateBatch(ctx context.Context, tasks []*domain.UploadTask) error

	// GetByID returns ErrUploadTaskNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.UploadTask, error)

	// ListByBatch returns the tasks of a batch ordered by creation time.
	// An unknown batch yields an empty slice.
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.UploadTask, error)

	// ListByStatus returns all tasks currently in status.
	ListByStatus(ctx context.Context, status domain.TaskStatus) ([]domain.UploadTask, error)

	// ListStaleProcessing returns processing tasks last updated before cutoff.
	ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]domain.UploadTask, error)

	// Claim atomically moves a pending task to processing and returns the claimed task.
	// Returns ErrAlreadyClaimed if the task is no longer pending and
	// ErrUploadTaskNotFound if it does not exist.
	Claim(ctx context.Context, id uuid.UUID, workerJobID string, now time.Time) (*domain.UploadTask, error)

	// CompleteSuccess moves a processing task to success with its result.
	// Returns ErrInvalidTransition if the task is not processing.
	CompleteSuccess(ctx context.Context, id uuid.UUID, bookID uuid.UUID, now time.Time) error

	// CompleteFailure moves a pending or processing task to failed.
	// Returns ErrInvalidTransition if the task is already terminal.
	CompleteFailure(ctx context.Context, id uuid.UUID, message string, now time.Time) error
}
