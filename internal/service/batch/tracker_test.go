package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/shelf-api/internal/domain"
	"github.com/phrazzld/shelf-api/internal/platform/memory"
	"github.com/phrazzld/shelf-api/internal/store"
	"github.com/phrazzld/shelf-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingEnqueuer remembers enqueued task IDs and can be told to fail.
type recordingEnqueuer struct {
	mu    sync.Mutex
	ids   []uuid.UUID
	owner uuid.UUID
	err   error
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, taskID, ownerID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.ids = append(e.ids, taskID)
	e.owner = ownerID
	return nil
}

func mixedRows() []domain.BookRow {
	return []domain.BookRow{
		{Title: "Dune", Author: "Frank Herbert", Description: "Spice"},
		{Title: "", Author: "Anonymous"},
		{Title: "Emma", Author: "Jane Austen"},
		{Title: "Untitled", Author: "   "},
		{Title: "Ulysses", Author: "James Joyce"},
	}
}

func TestSubmitBatch_SkipsInvalidRows(t *testing.T) {
	t.Parallel()

	tasks := memory.NewUploadTaskStore()
	enq := &recordingEnqueuer{}
	tracker := NewTracker(tasks, enq, Config{}, discardLogger())
	owner := uuid.New()

	result, err := tracker.SubmitBatch(context.Background(), owner, mixedRows())
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, result.BatchID)
	assert.Equal(t, 5, result.TotalRows)
	assert.Len(t, result.TaskIDs, 3)
	assert.Equal(t, result.TaskIDs, enq.ids)
	assert.Equal(t, owner, enq.owner)

	require.Len(t, result.SkippedRows, 2)
	assert.Equal(t, 2, result.SkippedRows[0].Row)
	assert.Equal(t, "title is required", result.SkippedRows[0].Error)
	assert.Equal(t, 4, result.SkippedRows[1].Row)
	assert.Equal(t, "author is required", result.SkippedRows[1].Error)

	stored, err := tasks.ListByBatch(context.Background(), result.BatchID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for i, title := range []string{"Dune", "Emma", "Ulysses"} {
		assert.Equal(t, title, stored[i].Row.Title)
		assert.Equal(t, domain.TaskStatusPending, stored[i].Status)
		assert.Equal(t, result.BatchID, stored[i].BatchID)
		assert.Equal(t, owner, stored[i].UserID)
	}
}

func TestSubmitBatch_RecordPolicy(t *testing.T) {
	t.Parallel()

	tasks := memory.NewUploadTaskStore()
	enq := &recordingEnqueuer{}
	tracker := NewTracker(tasks, enq, Config{InvalidRowPolicy: PolicyRecord}, discardLogger())
	owner := uuid.New()

	result, err := tracker.SubmitBatch(context.Background(), owner, mixedRows())
	require.NoError(t, err)

	assert.Len(t, result.TaskIDs, 5)
	assert.Empty(t, result.SkippedRows)
	assert.Len(t, enq.ids, 3, "only valid rows are enqueued")

	summary, err := tracker.GetBatch(context.Background(), owner, result.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 3, summary.Pending)
	assert.Equal(t, 2, summary.Failed)

	failed := summary.Tasks[1]
	assert.Equal(t, domain.TaskStatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "title is required", *failed.ErrorMessage)
	assert.NotNil(t, failed.CompletedAt)
}

func TestSubmitBatch_NoValidRows(t *testing.T) {
	t.Parallel()

	for _, policy := range []InvalidRowPolicy{PolicySkip, PolicyRecord} {
		tasks := memory.NewUploadTaskStore()
		enq := &recordingEnqueuer{}
		tracker := NewTracker(tasks, enq, Config{InvalidRowPolicy: policy}, discardLogger())

		_, err := tracker.SubmitBatch(context.Background(), uuid.New(), []domain.BookRow{{Title: "x"}})
		assert.ErrorIs(t, err, ErrNoValidRows, string(policy))

		_, err = tracker.SubmitBatch(context.Background(), uuid.New(), nil)
		assert.ErrorIs(t, err, ErrNoValidRows, string(policy))

		pending, err := tasks.ListByStatus(context.Background(), domain.TaskStatusPending)
		require.NoError(t, err)
		assert.Empty(t, pending)
		failed, err := tasks.ListByStatus(context.Background(), domain.TaskStatusFailed)
		require.NoError(t, err)
		assert.Empty(t, failed, "nothing is persisted for a rejected batch")
		assert.Empty(t, enq.ids)
	}
}

func TestSubmitBatch_TooManyRows(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(memory.NewUploadTaskStore(), &recordingEnqueuer{}, Config{MaxRows: 2}, discardLogger())

	_, err := tracker.SubmitBatch(context.Background(), uuid.New(), mixedRows())
	assert.ErrorIs(t, err, ErrTooManyRows)
}

func TestSubmitBatch_NormalizesRows(t *testing.T) {
	t.Parallel()

	tasks := memory.NewUploadTaskStore()
	tracker := NewTracker(tasks, &recordingEnqueuer{}, Config{}, discardLogger())

	result, err := tracker.SubmitBatch(context.Background(), uuid.New(), []domain.BookRow{
		{Title: "  Dune  ", Author: "\tFrank Herbert\n"},
	})
	require.NoError(t, err)

	stored, err := tasks.GetByID(context.Background(), result.TaskIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "Dune", stored.Row.Title)
	assert.Equal(t, "Frank Herbert", stored.Row.Author)
}

func TestSubmitBatch_EnqueueFailureFailsTask(t *testing.T) {
	t.Parallel()

	tasks := memory.NewUploadTaskStore()
	enq := &recordingEnqueuer{err: task.ErrQueueFull}
	tracker := NewTracker(tasks, enq, Config{}, discardLogger())

	result, err := tracker.SubmitBatch(context.Background(), uuid.New(), []domain.BookRow{
		{Title: "Dune", Author: "Frank Herbert"},
	})
	require.NoError(t, err)

	stored, err := tasks.GetByID(context.Background(), result.TaskIDs[0])
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, MessageNotScheduled, *stored.ErrorMessage)
}

// ctxEnqueuer refuses jobs once the caller's context is done.
type ctxEnqueuer struct {
	recordingEnqueuer
}

func (e *ctxEnqueuer) Enqueue(ctx context.Context, taskID, ownerID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.recordingEnqueuer.Enqueue(ctx, taskID, ownerID)
}

func TestSubmitBatch_CallerCancellationDoesNotStrandRows(t *testing.T) {
	t.Parallel()

	tasks := memory.NewUploadTaskStore()
	enq := &ctxEnqueuer{}
	tracker := NewTracker(tasks, enq, Config{}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := tracker.SubmitBatch(ctx, uuid.New(), mixedRows())
	require.NoError(t, err)
	assert.Len(t, enq.ids, 3)

	for _, id := range result.TaskIDs {
		stored, err := tasks.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusPending, stored.Status)
	}
}

type failingTaskStore struct {
	store.UploadTaskStore
}

func (failingTaskStore) CreateBatch(context.Context, []*domain.UploadTask) error {
	return errors.New("connection refused")
}

func TestSubmitBatch_StoreFailure(t *testing.T) {
	t.Parallel()

	enq := &recordingEnqueuer{}
	tracker := NewTracker(failingTaskStore{}, enq, Config{}, discardLogger())

	_, err := tracker.SubmitBatch(context.Background(), uuid.New(), mixedRows())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to store batch")
	assert.Empty(t, enq.ids, "nothing is enqueued when the batch is not stored")
}

func TestGetTask_OwnerScoping(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(memory.NewUploadTaskStore(), &recordingEnqueuer{}, Config{}, discardLogger())
	owner := uuid.New()

	result, err := tracker.SubmitBatch(context.Background(), owner, mixedRows())
	require.NoError(t, err)

	got, err := tracker.GetTask(context.Background(), owner, result.TaskIDs[0])
	require.NoError(t, err)
	assert.Equal(t, result.TaskIDs[0], got.ID)

	_, err = tracker.GetTask(context.Background(), uuid.New(), result.TaskIDs[0])
	assert.ErrorIs(t, err, store.ErrUploadTaskNotFound)

	_, err = tracker.GetTask(context.Background(), owner, uuid.New())
	assert.ErrorIs(t, err, store.ErrUploadTaskNotFound)
}

func TestGetBatch_OwnerScopingAndUnknownBatch(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(memory.NewUploadTaskStore(), &recordingEnqueuer{}, Config{}, discardLogger())
	owner := uuid.New()

	result, err := tracker.SubmitBatch(context.Background(), owner, mixedRows())
	require.NoError(t, err)

	summary, err := tracker.GetBatch(context.Background(), uuid.New(), result.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
	assert.Empty(t, summary.Tasks)

	unknown := uuid.New()
	summary, err = tracker.GetBatch(context.Background(), owner, unknown)
	require.NoError(t, err)
	assert.Equal(t, unknown, summary.BatchID)
	assert.Equal(t, 0, summary.Total)
}

func TestRowValidator(t *testing.T) {
	t.Parallel()

	v := NewRowValidator()
	tests := []struct {
		name    string
		row     domain.BookRow
		wantErr string
	}{
		{name: "valid", row: domain.BookRow{Title: "Dune", Author: "Herbert"}},
		{name: "blank title", row: domain.BookRow{Title: "  ", Author: "Herbert"}, wantErr: "title is required"},
		{name: "missing author", row: domain.BookRow{Title: "Dune"}, wantErr: "author is required"},
		{
			name:    "long title",
			row:     domain.BookRow{Title: strings.Repeat("a", 201), Author: "Herbert"},
			wantErr: "title is too long (maximum is 200 characters)",
		},
		{
			name: "multibyte title at limit",
			row:  domain.BookRow{Title: strings.Repeat("é", 200), Author: "Herbert"},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := v.Validate(tc.row)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Equal(t, tc.wantErr, err.Error())
		})
	}
}

// TestSubmitBatch_ProcessedByRunner drives a batch through the worker pool
// until every task reaches a terminal state.
func TestSubmitBatch_ProcessedByRunner(t *testing.T) {
	t.Parallel()

	tasks := memory.NewUploadTaskStore()
	books := memory.NewBookStore()
	queue := task.NewMemoryQueue(16, discardLogger())

	cfg := task.DefaultRunnerConfig()
	cfg.WorkerCount = 3
	cfg.StuckTaskCheckInterval = 0
	runner := task.NewRunner(tasks, queue, task.NewBookProcessor(books), cfg, discardLogger())
	require.NoError(t, runner.Start(context.Background()))
	defer runner.Stop()

	tracker := NewTracker(tasks, runner, Config{}, discardLogger())
	owner := uuid.New()

	result, err := tracker.SubmitBatch(context.Background(), owner, mixedRows())
	require.NoError(t, err)

	var summary *domain.BatchSummary
	require.Eventually(t, func() bool {
		got, err := tracker.GetBatch(context.Background(), owner, result.BatchID)
		if err != nil {
			return false
		}
		summary = got
		return summary.InFlight() == 0
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Success)
	assert.Equal(t, 3, books.Count())
}

// A batch larger than the queue waits for capacity instead of failing rows.
func TestSubmitBatch_LargerThanQueueCapacity(t *testing.T) {
	t.Parallel()

	tasks := memory.NewUploadTaskStore()
	books := memory.NewBookStore()
	queue := task.NewMemoryQueue(100, discardLogger())

	cfg := task.DefaultRunnerConfig()
	cfg.StuckTaskCheckInterval = 0
	runner := task.NewRunner(tasks, queue, task.NewBookProcessor(books), cfg, discardLogger())
	require.NoError(t, runner.Start(context.Background()))
	defer runner.Stop()

	tracker := NewTracker(tasks, runner, Config{MaxRows: 1000}, discardLogger())
	owner := uuid.New()

	rows := make([]domain.BookRow, 500)
	for i := range rows {
		rows[i] = domain.BookRow{Title: fmt.Sprintf("Volume %d", i+1), Author: "Anonymous"}
	}

	result, err := tracker.SubmitBatch(context.Background(), owner, rows)
	require.NoError(t, err)
	require.Len(t, result.TaskIDs, 500)

	var summary *domain.BatchSummary
	require.Eventually(t, func() bool {
		got, err := tracker.GetBatch(context.Background(), owner, result.BatchID)
		if err != nil {
			return false
		}
		summary = got
		return summary.InFlight() == 0
	}, 10*time.Second, 20*time.Millisecond)

	assert.Equal(t, 500, summary.Success)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, 500, books.Count())
}
