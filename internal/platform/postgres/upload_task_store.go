package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/shelf-api/internal/domain"
	"github.com/phrazzld/shelf-api/internal/platform/logger"
	"github.com/phrazzld/shelf-api/internal/store"
)

const uploadTaskColumns = `id, batch_id, user_id, title, author, description, status,
	error_message, result_book_id, worker_job_id, attempts, created_at, updated_at, completed_at`

// PostgresUploadTaskStore implements store.UploadTaskStore.
type PostgresUploadTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresUploadTaskStore creates an upload task store over db.
// When db is a *sql.DB, CreateBatch opens its own transaction; when it is
// already a *sql.Tx the caller owns atomicity.
func NewPostgresUploadTaskStore(db store.DBTX, logger *slog.Logger) *PostgresUploadTaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresUploadTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "upload_task_store")),
	}
}

var _ store.UploadTaskStore = (*PostgresUploadTaskStore)(nil)

// CreateBatch implements store.UploadTaskStore.CreateBatch.
func (s *PostgresUploadTaskStore) CreateBatch(ctx context.Context, tasks []*domain.UploadTask) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%w: task %s: %v", store.ErrInvalidEntity, t.ID, err)
		}
	}

	insert := func(ctx context.Context, db store.DBTX) error {
		query := `
			INSERT INTO upload_tasks (` + uploadTaskColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`
		for _, t := range tasks {
			_, err := db.ExecContext(ctx, query,
				t.ID,
				t.BatchID,
				t.UserID,
				t.Row.Title,
				t.Row.Author,
				t.Row.Description,
				t.Status,
				t.ErrorMessage,
				t.ResultBookID,
				t.WorkerJobID,
				t.Attempts,
				t.CreatedAt,
				t.UpdatedAt,
				t.CompletedAt,
			)
			if err != nil {
				log.Error("failed to insert upload task",
					slog.String("error", err.Error()),
					slog.String("task_id", t.ID.String()),
					slog.String("batch_id", t.BatchID.String()))
				return MapError(err)
			}
		}
		return nil
	}

	if beginner, ok := s.db.(store.TxBeginner); ok {
		err := store.RunInTransaction(ctx, beginner, func(ctx context.Context, tx *sql.Tx) error {
			return insert(ctx, tx)
		})
		if err != nil {
			return err
		}
	} else if err := insert(ctx, s.db); err != nil {
		return err
	}

	log.Debug("upload tasks created", slog.Int("count", len(tasks)))
	return nil
}

// GetByID implements store.UploadTaskStore.GetByID.
func (s *PostgresUploadTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.UploadTask, error) {
	query := `SELECT ` + uploadTaskColumns + ` FROM upload_tasks WHERE id = $1`

	task, err := scanUploadTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrUploadTaskNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get upload task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, MapError(err)
	}
	return task, nil
}

// ListByBatch implements store.UploadTaskStore.ListByBatch.
func (s *PostgresUploadTaskStore) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]domain.UploadTask, error) {
	query := `SELECT ` + uploadTaskColumns + `
		FROM upload_tasks
		WHERE batch_id = $1
		ORDER BY created_at ASC, id ASC`
	return s.list(ctx, query, batchID)
}

// ListByStatus implements store.UploadTaskStore.ListByStatus.
func (s *PostgresUploadTaskStore) ListByStatus(ctx context.Context, status domain.TaskStatus) ([]domain.UploadTask, error) {
	query := `SELECT ` + uploadTaskColumns + `
		FROM upload_tasks
		WHERE status = $1
		ORDER BY created_at ASC`
	return s.list(ctx, query, status)
}

// ListStaleProcessing implements store.UploadTaskStore.ListStaleProcessing.
func (s *PostgresUploadTaskStore) ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]domain.UploadTask, error) {
	query := `SELECT ` + uploadTaskColumns + `
		FROM upload_tasks
		WHERE status = 'processing' AND updated_at < $1
		ORDER BY updated_at ASC`
	return s.list(ctx, query, cutoff.UTC())
}

// Claim implements store.UploadTaskStore.Claim.
// The WHERE clause on status makes the claim a compare-and-set: of any number
// of concurrent callers exactly one sees a returned row.
func (s *PostgresUploadTaskStore) Claim(
	ctx context.Context,
	id uuid.UUID,
	workerJobID string,
	now time.Time,
) (*domain.UploadTask, error) {
	query := `
		UPDATE upload_tasks
		SET status = 'processing', worker_job_id = $2, attempts = attempts + 1, updated_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + uploadTaskColumns

	task, err := scanUploadTask(s.db.QueryRowContext(ctx, query, id, workerJobID, now.UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.missOrConflict(ctx, id, store.ErrAlreadyClaimed)
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to claim upload task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, MapError(err)
	}
	return task, nil
}

// CompleteSuccess implements store.UploadTaskStore.CompleteSuccess.
func (s *PostgresUploadTaskStore) CompleteSuccess(
	ctx context.Context,
	id uuid.UUID,
	bookID uuid.UUID,
	now time.Time,
) error {
	query := `
		UPDATE upload_tasks
		SET status = 'success', result_book_id = $2, error_message = NULL, updated_at = $3, completed_at = $3
		WHERE id = $1 AND status = 'processing'
	`
	return s.complete(ctx, "complete_success", id, query, id, bookID, now.UTC())
}

// CompleteFailure implements store.UploadTaskStore.CompleteFailure.
func (s *PostgresUploadTaskStore) CompleteFailure(
	ctx context.Context,
	id uuid.UUID,
	message string,
	now time.Time,
) error {
	query := `
		UPDATE upload_tasks
		SET status = 'failed', error_message = $2, result_book_id = NULL, updated_at = $3, completed_at = $3
		WHERE id = $1 AND status IN ('pending', 'processing')
	`
	return s.complete(ctx, "complete_failure", id, query, id, message, now.UTC())
}

func (s *PostgresUploadTaskStore) complete(ctx context.Context, op string, id uuid.UUID, query string, args ...any) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to update upload task",
			slog.String("operation", op),
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return MapError(err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return s.missOrConflict(ctx, id, store.ErrInvalidTransition)
	}
	return nil
}

// missOrConflict distinguishes a missing task from one in the wrong state
// after a conditional update matched no rows.
func (s *PostgresUploadTaskStore) missOrConflict(ctx context.Context, id uuid.UUID, conflict error) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM upload_tasks WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return MapError(err)
	}
	if !exists {
		return store.ErrUploadTaskNotFound
	}
	return conflict
}

func (s *PostgresUploadTaskStore) list(ctx context.Context, query string, args ...any) ([]domain.UploadTask, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list upload tasks", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]domain.UploadTask, 0)
	for rows.Next() {
		task, err := scanUploadTask(rows)
		if err != nil {
			return nil, MapError(err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUploadTask(row rowScanner) (*domain.UploadTask, error) {
	var (
		t            domain.UploadTask
		status       string
		errorMessage sql.NullString
		resultBookID uuid.NullUUID
		workerJobID  sql.NullString
		completedAt  sql.NullTime
	)
	err := row.Scan(
		&t.ID,
		&t.BatchID,
		&t.UserID,
		&t.Row.Title,
		&t.Row.Author,
		&t.Row.Description,
		&status,
		&errorMessage,
		&resultBookID,
		&workerJobID,
		&t.Attempts,
		&t.CreatedAt,
		&t.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = domain.TaskStatus(status)
	if errorMessage.Valid {
		t.ErrorMessage = &errorMessage.String
	}
	if resultBookID.Valid {
		t.ResultBookID = &resultBookID.UUID
	}
	if workerJobID.Valid {
		t.WorkerJobID = &workerJobID.String
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}
