package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/shelf-api/internal/domain"
	"github.com/phrazzld/shelf-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var taskColumns = []string{
	"id", "batch_id", "user_id", "title", "author", "description", "status",
	"error_message", "result_book_id", "worker_job_id", "attempts", "created_at", "updated_at", "completed_at",
}

func newTestTasks(t *testing.T, n int) []*domain.UploadTask {
	t.Helper()
	batchID, userID := uuid.New(), uuid.New()
	tasks := make([]*domain.UploadTask, 0, n)
	for i := 0; i < n; i++ {
		task, err := domain.NewUploadTask(batchID, userID, domain.BookRow{Title: "Dune", Author: "Frank Herbert"})
		require.NoError(t, err)
		tasks = append(tasks, task)
	}
	return tasks
}

func TestPostgresUploadTaskStore_CreateBatch(t *testing.T) {
	t.Parallel()

	t.Run("all rows in one transaction", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresUploadTaskStore(db, discardLogger())
		tasks := newTestTasks(t, 2)

		mock.ExpectBegin()
		for _, task := range tasks {
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO upload_tasks")).
				WithArgs(task.ID, task.BatchID, task.UserID, "Dune", "Frank Herbert", "", "pending",
					nil, nil, nil, 0, sqlmock.AnyArg(), sqlmock.AnyArg(), nil).
				WillReturnResult(sqlmock.NewResult(0, 1))
		}
		mock.ExpectCommit()

		require.NoError(t, s.CreateBatch(context.Background(), tasks))
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresUploadTaskStore(db, discardLogger())
		tasks := newTestTasks(t, 2)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO upload_tasks")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO upload_tasks")).
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		assert.Error(t, s.CreateBatch(context.Background(), tasks))
	})

	t.Run("invalid task never reaches the database", func(t *testing.T) {
		db, _ := newMockDB(t)
		s := NewPostgresUploadTaskStore(db, discardLogger())
		tasks := newTestTasks(t, 1)
		tasks[0].BatchID = uuid.Nil

		assert.ErrorIs(t, s.CreateBatch(context.Background(), tasks), store.ErrInvalidEntity)
	})
}

func TestPostgresUploadTaskStore_Claim(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	taskID, batchID, userID := uuid.New(), uuid.New(), uuid.New()

	t.Run("pending task is claimed", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresUploadTaskStore(db, discardLogger())

		mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND status = 'pending'")).
			WithArgs(taskID, "worker-1", now).
			WillReturnRows(sqlmock.NewRows(taskColumns).AddRow(
				taskID.String(), batchID.String(), userID.String(), "Dune", "Frank Herbert", "", "processing",
				nil, nil, "worker-1", 1, now, now, nil,
			))

		task, err := s.Claim(context.Background(), taskID, "worker-1", now)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusProcessing, task.Status)
		assert.Equal(t, 1, task.Attempts)
		require.NotNil(t, task.WorkerJobID)
		assert.Equal(t, "worker-1", *task.WorkerJobID)
		assert.NoError(t, task.Validate())
	})

	t.Run("zero rows on existing task is a conflict", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresUploadTaskStore(db, discardLogger())

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE upload_tasks")).
			WillReturnRows(sqlmock.NewRows(taskColumns))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WithArgs(taskID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := s.Claim(context.Background(), taskID, "worker-2", now)
		assert.ErrorIs(t, err, store.ErrAlreadyClaimed)
	})

	t.Run("zero rows on missing task is not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresUploadTaskStore(db, discardLogger())

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE upload_tasks")).
			WillReturnRows(sqlmock.NewRows(taskColumns))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := s.Claim(context.Background(), taskID, "worker-2", now)
		assert.ErrorIs(t, err, store.ErrUploadTaskNotFound)
	})
}

func TestPostgresUploadTaskStore_Complete(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	taskID, bookID := uuid.New(), uuid.New()

	t.Run("success from processing", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresUploadTaskStore(db, discardLogger())

		mock.ExpectExec(regexp.QuoteMeta("SET status = 'success'")).
			WithArgs(taskID, bookID, now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.CompleteSuccess(context.Background(), taskID, bookID, now))
	})

	t.Run("terminal task cannot be failed again", func(t *testing.T) {
		db, mock := newMockDB(t)
		s := NewPostgresUploadTaskStore(db, discardLogger())

		mock.ExpectExec(regexp.QuoteMeta("status IN ('pending', 'processing')")).
			WithArgs(taskID, "boom", now).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		err := s.CompleteFailure(context.Background(), taskID, "boom", now)
		assert.ErrorIs(t, err, store.ErrInvalidTransition)
	})
}

func TestPostgresUploadTaskStore_ListByBatch(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	s := NewPostgresUploadTaskStore(db, discardLogger())
	now := time.Now().UTC()
	batchID, userID, bookID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE batch_id = $1")).
		WithArgs(batchID).
		WillReturnRows(sqlmock.NewRows(taskColumns).
			AddRow(uuid.NewString(), batchID.String(), userID.String(), "Dune", "Frank Herbert", "", "success",
				nil, bookID.String(), "worker-1", 1, now, now, now).
			AddRow(uuid.NewString(), batchID.String(), userID.String(), "Emma", "Jane Austen", "", "failed",
				"downstream unavailable", nil, "worker-2", 1, now, now, now))

	tasks, err := s.ListByBatch(context.Background(), batchID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	require.NotNil(t, tasks[0].ResultBookID)
	assert.Equal(t, bookID, *tasks[0].ResultBookID)
	assert.Nil(t, tasks[0].ErrorMessage)
	require.NotNil(t, tasks[1].ErrorMessage)
	assert.Equal(t, "downstream unavailable", *tasks[1].ErrorMessage)

	summary := domain.SummarizeBatch(batchID, tasks)
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.InFlight())
}
