package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/shelf-api/internal/domain"
)

// TokenService manages the lifecycle of opaque bearer tokens.
type TokenService interface {
	// Generate returns a fresh 64-character lowercase hex token value.
	Generate() (string, error)

	// CreateToken issues and persists an active token for userID that expires ttl from now.
	// Collisions on the token value are retried with a new value.
	CreateToken(ctx context.Context, userID uuid.UUID, ttl time.Duration, permissions map[string]any) (*domain.AuthToken, error)

	// IsValid reports whether token authorizes requests right now. It has no side effects.
	IsValid(token *domain.AuthToken) bool

	// Lookup fetches a token by value. Returns store.ErrTokenNotFound if absent.
	Lookup(ctx context.Context, value string) (*domain.AuthToken, error)

	// Validate looks up value and applies IsValid. Returns store.ErrTokenNotFound
	// for unknown values and ErrExpiredOrInactive for known but unusable ones.
	Validate(ctx context.Context, value string) (*domain.AuthToken, error)

	// Revoke deactivates a token. Unknown or already-revoked tokens are a no-op.
	Revoke(ctx context.Context, value string) error

	// MarkExpired records that a lapsed token is expired.
	MarkExpired(ctx context.Context, value string) error

	// SweepExpired marks every lapsed token expired and returns how many changed.
	SweepExpired(ctx context.Context) (int64, error)
}
