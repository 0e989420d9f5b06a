package store

import (
	"context"
	"time"

	"github.com/phrazzld/shelf-api/internal/domain"
)

// TokenStore defines persistence for custodial auth tokens.
// Tokens are never physically deleted; every state change is a conditional update.
type TokenStore interface {
	// Create persists a new token. Returns ErrTokenExists when the value collides.
	Create(ctx context.Context, token *domain.AuthToken) error

	// GetByValue retrieves a token by its opaque value. Returns ErrTokenNotFound if absent.
	GetByValue(ctx context.Context, value string) (*domain.AuthToken, error)

	// Revoke marks the token revoked and inactive. It reports whether a row changed;
	// revoking an unknown or already-revoked token is not an error.
	Revoke(ctx context.Context, value string) (bool, error)

	// MarkExpired flips an active token whose expiry is at or before now to expired.
	// It reports whether a row changed.
	MarkExpired(ctx context.Context, value string, now time.Time) (bool, error)

	// SweepExpired applies MarkExpired to every lapsed token and returns the count.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}
