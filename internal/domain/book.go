package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Field limits in characters, matching the book record schema.
const (
	MaxTitleLength  = 200
	MaxAuthorLength = 100
)

// Common validation errors for Book
var (
	ErrEmptyBookID     = errors.New("book ID cannot be empty")
	ErrEmptyBookUserID = errors.New("book user ID cannot be empty")
)

// BookRow is the payload of a single ingestion row.
type BookRow struct {
	Title       string `json:"title"       validate:"required,max=200"`
	Author      string `json:"author"      validate:"required,max=100"`
	Description string `json:"description"`
}

// Normalize trims surrounding whitespace from every field.
func (r BookRow) Normalize() BookRow {
	return BookRow{
		Title:       strings.TrimSpace(r.Title),
		Author:      strings.TrimSpace(r.Author),
		Description: strings.TrimSpace(r.Description),
	}
}

// Validate checks the required fields and length limits of the row.
func (r BookRow) Validate() error {
	switch {
	case strings.TrimSpace(r.Title) == "":
		return NewValidationError("title", "is required", nil)
	case utf8.RuneCountInString(r.Title) > MaxTitleLength:
		return NewValidationError("title", "is too long", nil)
	case strings.TrimSpace(r.Author) == "":
		return NewValidationError("author", "is required", nil)
	case utf8.RuneCountInString(r.Author) > MaxAuthorLength:
		return NewValidationError("author", "is too long", nil)
	}
	return nil
}

// Book is the record produced by a successful ingestion task.
type Book struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewBook creates a Book owned by userID from a validated row.
func NewBook(userID uuid.UUID, row BookRow) (*Book, error) {
	row = row.Normalize()
	if err := row.Validate(); err != nil {
		return nil, err
	}

	book := &Book{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       row.Title,
		Author:      row.Author,
		Description: row.Description,
		CreatedAt:   time.Now().UTC(),
	}

	if err := book.Validate(); err != nil {
		return nil, err
	}
	return book, nil
}

// Validate checks if the Book has valid data.
func (b *Book) Validate() error {
	if b.ID == uuid.Nil {
		return ErrEmptyBookID
	}
	if b.UserID == uuid.Nil {
		return ErrEmptyBookUserID
	}
	return BookRow{Title: b.Title, Author: b.Author}.Validate()
}
