package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/shelf-api/internal/domain"
	"github.com/phrazzld/shelf-api/internal/store"
)

// BookStore implements store.BookStore in memory.
type BookStore struct {
	mu    sync.RWMutex
	books map[uuid.UUID]domain.Book

	// Users, when set, is consulted to reject books whose owner does not exist.
	Users store.UserStore
}

// NewBookStore creates an empty BookStore.
func NewBookStore() *BookStore {
	return &BookStore{books: make(map[uuid.UUID]domain.Book)}
}

var _ store.BookStore = (*BookStore)(nil)

// Create implements store.BookStore.Create.
func (s *BookStore) Create(ctx context.Context, book *domain.Book) error {
	if err := book.Validate(); err != nil {
		return err
	}
	if s.Users != nil {
		if _, err := s.Users.GetByID(ctx, book.UserID); err != nil {
			return store.ErrInvalidEntity
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.books[book.ID]; ok {
		return store.ErrDuplicate
	}
	s.books[book.ID] = *book
	return nil
}

// GetByID implements store.BookStore.GetByID.
func (s *BookStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.books[id]
	if !ok {
		return nil, store.ErrBookNotFound
	}
	return &b, nil
}

// Count returns the number of stored books.
func (s *BookStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.books)
}
