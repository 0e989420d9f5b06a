package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of an upload task.
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusSuccess    TaskStatus = "success"
	TaskStatusFailed     TaskStatus = "failed"
)

// Common validation errors for UploadTask
var (
	ErrEmptyTaskID        = errors.New("task ID cannot be empty")
	ErrEmptyBatchID       = errors.New("batch ID cannot be empty")
	ErrEmptyTaskUserID    = errors.New("task user ID cannot be empty")
	ErrInvalidTaskStatus  = errors.New("invalid task status")
	ErrTerminalOutcome    = errors.New("terminal task must carry exactly one of result or error")
	ErrNonTerminalOutcome = errors.New("non-terminal task cannot carry a result or error")
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusSuccess || s == TaskStatusFailed
}

// IsValid reports whether s is a known status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusSuccess, TaskStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether the state machine permits from -> to.
//
//	pending -> processing -> success
//	                      -> failed
//	pending -> failed
func CanTransition(from, to TaskStatus) bool {
	switch from {
	case TaskStatusPending:
		return to == TaskStatusProcessing || to == TaskStatusFailed
	case TaskStatusProcessing:
		return to == TaskStatusSuccess || to == TaskStatusFailed
	default:
		return false
	}
}

// UploadTask tracks the ingestion of one row of a bulk upload.
// Tasks that share a BatchID came from the same submission.
type UploadTask struct {
	ID           uuid.UUID  `json:"task_id"`
	BatchID      uuid.UUID  `json:"batch_id"`
	UserID       uuid.UUID  `json:"user_id"`
	Row          BookRow    `json:"row"`
	Status       TaskStatus `json:"status"`
	ErrorMessage *string    `json:"error_message"`
	ResultBookID *uuid.UUID `json:"result_book_id"`
	WorkerJobID  *string    `json:"worker_job_id"`
	Attempts     int        `json:"attempts"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

// NewUploadTask creates a pending task for one row of batchID.
func NewUploadTask(batchID, userID uuid.UUID, row BookRow) (*UploadTask, error) {
	now := time.Now().UTC()
	t := &UploadTask{
		ID:        uuid.New(),
		BatchID:   batchID,
		UserID:    userID,
		Row:       row,
		Status:    TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks identity fields and the result/error exclusivity invariant.
func (t *UploadTask) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if t.BatchID == uuid.Nil {
		return ErrEmptyBatchID
	}
	if t.UserID == uuid.Nil {
		return ErrEmptyTaskUserID
	}
	if !t.Status.IsValid() {
		return ErrInvalidTaskStatus
	}

	hasResult := t.ResultBookID != nil
	hasError := t.ErrorMessage != nil
	switch t.Status {
	case TaskStatusSuccess:
		if !hasResult || hasError {
			return ErrTerminalOutcome
		}
	case TaskStatusFailed:
		if hasResult || !hasError {
			return ErrTerminalOutcome
		}
	default:
		if hasResult || hasError {
			return ErrNonTerminalOutcome
		}
	}
	return nil
}

// Claim moves a pending task to processing on behalf of workerJobID.
func (t *UploadTask) Claim(workerJobID string, now time.Time) error {
	if !CanTransition(t.Status, TaskStatusProcessing) {
		return ErrInvalidTransition
	}
	t.Status = TaskStatusProcessing
	t.WorkerJobID = &workerJobID
	t.Attempts++
	t.UpdatedAt = now.UTC()
	return nil
}

// Succeed records the produced book and moves the task to success.
func (t *UploadTask) Succeed(bookID uuid.UUID, now time.Time) error {
	if !CanTransition(t.Status, TaskStatusSuccess) {
		return ErrInvalidTransition
	}
	completed := now.UTC()
	t.Status = TaskStatusSuccess
	t.ResultBookID = &bookID
	t.ErrorMessage = nil
	t.UpdatedAt = completed
	t.CompletedAt = &completed
	return nil
}

// Fail records the error detail and moves the task to failed.
func (t *UploadTask) Fail(message string, now time.Time) error {
	if !CanTransition(t.Status, TaskStatusFailed) {
		return ErrInvalidTransition
	}
	completed := now.UTC()
	t.Status = TaskStatusFailed
	t.ErrorMessage = &message
	t.ResultBookID = nil
	t.UpdatedAt = completed
	t.CompletedAt = &completed
	return nil
}

// BatchSummary aggregates the tasks that share a batch ID.
type BatchSummary struct {
	BatchID    uuid.UUID    `json:"batch_id"`
	Total      int          `json:"total"`
	Pending    int          `json:"pending"`
	Processing int          `json:"processing"`
	Success    int          `json:"success"`
	Failed     int          `json:"failed"`
	Tasks      []UploadTask `json:"tasks"`
}

// SummarizeBatch counts tasks per status. An empty slice yields a zero summary.
func SummarizeBatch(batchID uuid.UUID, tasks []UploadTask) *BatchSummary {
	summary := &BatchSummary{
		BatchID: batchID,
		Total:   len(tasks),
		Tasks:   make([]UploadTask, 0, len(tasks)),
	}
	for _, t := range tasks {
		switch t.Status {
		case TaskStatusPending:
			summary.Pending++
		case TaskStatusProcessing:
			summary.Processing++
		case TaskStatusSuccess:
			summary.Success++
		case TaskStatusFailed:
			summary.Failed++
		}
		summary.Tasks = append(summary.Tasks, t)
	}
	return summary
}

// InFlight reports how many tasks have not reached a terminal state.
func (s *BatchSummary) InFlight() int {
	return s.Pending + s.Processing
}
