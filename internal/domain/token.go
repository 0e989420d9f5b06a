package domain

import (
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// TokenStatus is the recorded lifecycle state of an AuthToken.
type TokenStatus string

// Possible token status values
const (
	TokenStatusActive  TokenStatus = "active"
	TokenStatusExpired TokenStatus = "expired"
	TokenStatusRevoked TokenStatus = "revoked"
)

// TokenLength is the length of an encoded token value (hex of a SHA-256 digest).
const TokenLength = 64

var tokenFormat = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Common validation errors for AuthToken
var (
	ErrEmptyToken         = errors.New("token value cannot be empty")
	ErrMalformedToken     = errors.New("token value must be 64 lowercase hex characters")
	ErrEmptyTokenUserID   = errors.New("token user ID cannot be empty")
	ErrInvalidTokenStatus = errors.New("invalid token status")
)

// AuthToken is an opaque bearer credential owned by a user.
// The Token value itself is the identity of the record.
type AuthToken struct {
	Token       string         `json:"token"`
	UserID      uuid.UUID      `json:"user_id"`
	IsActive    bool           `json:"is_active"`
	ExpiresAt   time.Time      `json:"expires_at"`
	Status      TokenStatus    `json:"status"`
	Permissions map[string]any `json:"permissions"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NewAuthToken builds an active token for userID expiring ttl after now.
func NewAuthToken(value string, userID uuid.UUID, ttl time.Duration, permissions map[string]any, now time.Time) (*AuthToken, error) {
	if permissions == nil {
		permissions = map[string]any{}
	}

	t := &AuthToken{
		Token:       value,
		UserID:      userID,
		IsActive:    true,
		ExpiresAt:   now.Add(ttl).UTC(),
		Status:      TokenStatusActive,
		Permissions: permissions,
		CreatedAt:   now.UTC(),
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the structural integrity of the token record.
func (t *AuthToken) Validate() error {
	if t.Token == "" {
		return ErrEmptyToken
	}
	if !IsWellFormedToken(t.Token) {
		return ErrMalformedToken
	}
	if t.UserID == uuid.Nil {
		return ErrEmptyTokenUserID
	}
	switch t.Status {
	case TokenStatusActive, TokenStatusExpired, TokenStatusRevoked:
	default:
		return ErrInvalidTokenStatus
	}
	return nil
}

// IsValidAt reports whether the token authorizes requests at the given instant.
// It is evaluated on every check and never cached.
func (t *AuthToken) IsValidAt(now time.Time) bool {
	return t.IsActive && t.Status == TokenStatusActive && t.ExpiresAt.After(now)
}

// IsLapsedAt reports whether the token has passed its expiry while its
// recorded status still reads active.
func (t *AuthToken) IsLapsedAt(now time.Time) bool {
	return t.Status == TokenStatusActive && !t.ExpiresAt.After(now)
}

// Revoke marks the token revoked. Calling it on a revoked token is a no-op.
func (t *AuthToken) Revoke() {
	t.Status = TokenStatusRevoked
	t.IsActive = false
}

// IsWellFormedToken reports whether s has the shape of an issued token value.
func IsWellFormedToken(s string) bool {
	return tokenFormat.MatchString(s)
}
