package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/shelf-api/internal/domain"
	"github.com/phrazzld/shelf-api/internal/platform/logger"
	"github.com/phrazzld/shelf-api/internal/redact"
	"github.com/phrazzld/shelf-api/internal/store"
)

const (
	// entropyBytes of crypto/rand output feed each token digest.
	entropyBytes = 32

	// maxCreateAttempts bounds regeneration after a token value collision.
	maxCreateAttempts = 3
)

// storeTokenService implements TokenService over a store.TokenStore.
type storeTokenService struct {
	tokens   store.TokenStore
	logger   *slog.Logger
	timeFunc func() time.Time // Injectable for testing
}

// Ensure storeTokenService implements TokenService interface
var _ TokenService = (*storeTokenService)(nil)

// Option customizes services constructed by this package.
type Option func(*options)

type options struct {
	timeFunc func() time.Time
}

// WithTimeFunc overrides the clock used for expiry decisions.
func WithTimeFunc(fn func() time.Time) Option {
	return func(o *options) { o.timeFunc = fn }
}

func buildOptions(opts []Option) options {
	o := options{timeFunc: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewTokenService creates a TokenService backed by tokens.
func NewTokenService(tokens store.TokenStore, logger *slog.Logger, opts ...Option) TokenService {
	if logger == nil {
		logger = slog.Default()
	}
	o := buildOptions(opts)
	return &storeTokenService{
		tokens:   tokens,
		logger:   logger.With(slog.String("component", "token_service")),
		timeFunc: o.timeFunc,
	}
}

// Generate hashes fresh randomness together with a random UUID and hex-encodes the digest.
func (s *storeTokenService) Generate() (string, error) {
	buf := make([]byte, entropyBytes, entropyBytes+16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	id := uuid.New()
	buf = append(buf, id[:]...)

	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}

// CreateToken implements TokenService.CreateToken.
func (s *storeTokenService) CreateToken(
	ctx context.Context,
	userID uuid.UUID,
	ttl time.Duration,
	permissions map[string]any,
) (*domain.AuthToken, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		value, err := s.Generate()
		if err != nil {
			return nil, err
		}

		token, err := domain.NewAuthToken(value, userID, ttl, permissions, s.timeFunc())
		if err != nil {
			return nil, fmt.Errorf("failed to build token: %w", err)
		}

		err = s.tokens.Create(ctx, token)
		if err == nil {
			log.Debug("token issued",
				slog.String("user_id", userID.String()),
				slog.String("token", redact.Token(value)),
				slog.Time("expires_at", token.ExpiresAt))
			return token, nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("failed to store token: %w", err)
		}
		log.Warn("token value collision, regenerating", slog.Int("attempt", attempt))
	}

	return nil, fmt.Errorf("%w: %d consecutive collisions", ErrTokenGeneration, maxCreateAttempts)
}

// IsValid implements TokenService.IsValid.
func (s *storeTokenService) IsValid(token *domain.AuthToken) bool {
	return token != nil && token.IsValidAt(s.timeFunc())
}

// Lookup implements TokenService.Lookup.
func (s *storeTokenService) Lookup(ctx context.Context, value string) (*domain.AuthToken, error) {
	// A value that was never issued cannot be stored; skip the round trip.
	if !domain.IsWellFormedToken(value) {
		return nil, store.ErrTokenNotFound
	}
	return s.tokens.GetByValue(ctx, value)
}

// Validate implements TokenService.Validate.
func (s *storeTokenService) Validate(ctx context.Context, value string) (*domain.AuthToken, error) {
	token, err := s.Lookup(ctx, value)
	if err != nil {
		return nil, err
	}
	if !s.IsValid(token) {
		return nil, ErrExpiredOrInactive
	}
	return token, nil
}

// Revoke implements TokenService.Revoke.
func (s *storeTokenService) Revoke(ctx context.Context, value string) error {
	if !domain.IsWellFormedToken(value) {
		return nil
	}
	changed, err := s.tokens.Revoke(ctx, value)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Debug("token revoke",
		slog.String("token", redact.Token(value)),
		slog.Bool("changed", changed))
	return nil
}

// MarkExpired implements TokenService.MarkExpired.
func (s *storeTokenService) MarkExpired(ctx context.Context, value string) error {
	if _, err := s.tokens.MarkExpired(ctx, value, s.timeFunc()); err != nil {
		return fmt.Errorf("failed to mark token expired: %w", err)
	}
	return nil
}

// SweepExpired implements TokenService.SweepExpired.
func (s *storeTokenService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.tokens.SweepExpired(ctx, s.timeFunc())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired tokens: %w", err)
	}
	return n, nil
}
