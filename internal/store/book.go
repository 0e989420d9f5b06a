package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/shelf-api/internal/domain"
)

// BookStore persists the records produced by bulk-upload tasks.
type BookStore interface {
	Create(ctx context.Context, book *domain.Book) error

	// GetByID returns ErrBookNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Book, error)
}
