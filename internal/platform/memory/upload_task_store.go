package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/shelf-api/internal/domain"
	"github.com/phrazzld/shelf-api/internal/store"
)

// UploadTaskStore implements store.UploadTaskStore in memory.
// A single mutex serializes every transition, which makes Claim a compare-and-set.
type UploadTaskStore struct {
	mu      sync.RWMutex
	tasks   map[uuid.UUID]*domain.UploadTask
	batches map[uuid.UUID][]uuid.UUID
}

// NewUploadTaskStore creates an empty UploadTaskStore.
func NewUploadTaskStore() *UploadTaskStore {
	return &UploadTaskStore{
		tasks:   make(map[uuid.UUID]*domain.UploadTask),
		batches: make(map[uuid.UUID][]uuid.UUID),
	}
}

var _ store.UploadTaskStore = (*UploadTaskStore)(nil)

// CreateBatch implements store.UploadTaskStore.CreateBatch.
func (s *UploadTaskStore) CreateBatch(_ context.Context, tasks []*domain.UploadTask) error {
	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			return store.ErrInvalidEntity
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range tasks {
		if _, ok := s.tasks[t.ID]; ok {
			return store.ErrDuplicate
		}
	}
	for _, t := range tasks {
		c := cloneTask(t)
		s.tasks[t.ID] = c
		s.batches[t.BatchID] = append(s.batches[t.BatchID], t.ID)
	}
	return nil
}

// GetByID implements store.UploadTaskStore.GetByID.
func (s *UploadTaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.UploadTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrUploadTaskNotFound
	}
	return cloneTask(t), nil
}

// ListByBatch implements store.UploadTaskStore.ListByBatch.
func (s *UploadTaskStore) ListByBatch(_ context.Context, batchID uuid.UUID) ([]domain.UploadTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.batches[batchID]
	out := make([]domain.UploadTask, 0, len(ids))
	for _, id := range ids {
		out = append(out, *cloneTask(s.tasks[id]))
	}
	return out, nil
}

// ListByStatus implements store.UploadTaskStore.ListByStatus.
func (s *UploadTaskStore) ListByStatus(_ context.Context, status domain.TaskStatus) ([]domain.UploadTask, error) {
	return s.filter(func(t *domain.UploadTask) bool { return t.Status == status }), nil
}

// ListStaleProcessing implements store.UploadTaskStore.ListStaleProcessing.
func (s *UploadTaskStore) ListStaleProcessing(_ context.Context, cutoff time.Time) ([]domain.UploadTask, error) {
	return s.filter(func(t *domain.UploadTask) bool {
		return t.Status == domain.TaskStatusProcessing && t.UpdatedAt.Before(cutoff)
	}), nil
}

// Claim implements store.UploadTaskStore.Claim.
func (s *UploadTaskStore) Claim(
	_ context.Context,
	id uuid.UUID,
	workerJobID string,
	now time.Time,
) (*domain.UploadTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrUploadTaskNotFound
	}
	if err := t.Claim(workerJobID, now); err != nil {
		return nil, store.ErrAlreadyClaimed
	}
	return cloneTask(t), nil
}

// CompleteSuccess implements store.UploadTaskStore.CompleteSuccess.
func (s *UploadTaskStore) CompleteSuccess(_ context.Context, id uuid.UUID, bookID uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return store.ErrUploadTaskNotFound
	}
	if err := t.Succeed(bookID, now); err != nil {
		return store.ErrInvalidTransition
	}
	return nil
}

// CompleteFailure implements store.UploadTaskStore.CompleteFailure.
func (s *UploadTaskStore) CompleteFailure(_ context.Context, id uuid.UUID, message string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return store.ErrUploadTaskNotFound
	}
	if err := t.Fail(message, now); err != nil {
		return store.ErrInvalidTransition
	}
	return nil
}

// SetUpdatedAt backdates a task. Tests use it to simulate stuck work.
func (s *UploadTaskStore) SetUpdatedAt(id uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		t.UpdatedAt = at
	}
}

func (s *UploadTaskStore) filter(keep func(*domain.UploadTask) bool) []domain.UploadTask {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UploadTask, 0)
	for _, t := range s.tasks {
		if keep(t) {
			out = append(out, *cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// cloneTask deep-copies the pointer fields so callers never alias stored state.
func cloneTask(t *domain.UploadTask) *domain.UploadTask {
	c := *t
	if t.ErrorMessage != nil {
		v := *t.ErrorMessage
		c.ErrorMessage = &v
	}
	if t.ResultBookID != nil {
		v := *t.ResultBookID
		c.ResultBookID = &v
	}
	if t.WorkerJobID != nil {
		v := *t.WorkerJobID
		c.WorkerJobID = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}
