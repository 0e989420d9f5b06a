package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/shelf-api/internal/domain"
	"github.com/phrazzld/shelf-api/internal/store"
)

// Processor turns one validated row into a downstream record and returns its ID.
type Processor interface {
	Process(ctx context.Context, ownerID uuid.UUID, row domain.BookRow) (uuid.UUID, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, ownerID uuid.UUID, row domain.BookRow) (uuid.UUID, error)

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, ownerID uuid.UUID, row domain.BookRow) (uuid.UUID, error) {
	return f(ctx, ownerID, row)
}

// BookProcessor creates a Book for each row.
type BookProcessor struct {
	books store.BookStore
}

// NewBookProcessor creates a processor writing to books.
func NewBookProcessor(books store.BookStore) *BookProcessor {
	return &BookProcessor{books: books}
}

// Process implements Processor.
func (p *BookProcessor) Process(ctx context.Context, ownerID uuid.UUID, row domain.BookRow) (uuid.UUID, error) {
	book, err := domain.NewBook(ownerID, row)
	if err != nil {
		return uuid.Nil, err
	}
	if err := p.books.Create(ctx, book); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create book: %w", err)
	}
	return book.ID, nil
}

// IsPermanent reports whether retrying err cannot succeed: the row itself is
// bad or the downstream store rejected the entity.
func IsPermanent(err error) bool {
	var vErr *domain.ValidationError
	return errors.As(err, &vErr) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, store.ErrInvalidEntity) ||
		errors.Is(err, store.ErrDuplicate)
}
