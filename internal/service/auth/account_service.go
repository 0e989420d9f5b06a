package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/shelf-api/internal/domain"
	"github.com/phrazzld/shelf-api/internal/platform/logger"
	"github.com/phrazzld/shelf-api/internal/store"
)

// AccountService handles signup, login and logout.
type AccountService struct {
	users    store.UserStore
	tokens   TokenService
	hasher   PasswordHasher
	tokenTTL time.Duration
	logger   *slog.Logger
}

// NewAccountService creates an AccountService issuing tokens that live for tokenTTL.
func NewAccountService(
	users store.UserStore,
	tokens TokenService,
	hasher PasswordHasher,
	tokenTTL time.Duration,
	logger *slog.Logger,
) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		users:    users,
		tokens:   tokens,
		hasher:   hasher,
		tokenTTL: tokenTTL,
		logger:   logger.With(slog.String("component", "account_service")),
	}
}

// Signup creates an active user. Invalid input is reported as a
// *domain.ValidationError wrapping the domain error; store.ErrUsernameExists
// and store.ErrEmailExists are returned unchanged.
func (s *AccountService) Signup(ctx context.Context, username, email, password string) (*domain.User, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	user, err := domain.NewUser(username, email, password)
	if err != nil {
		return nil, domain.NewValidationError("", err.Error(), err)
	}

	hashed, err := s.hasher.Hash(user.Password)
	if err != nil {
		return nil, err
	}
	user.HashedPassword = hashed
	user.Password = ""

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	log.Info("user signed up", slog.String("user_id", user.ID.String()))
	return user, nil
}

// Login verifies credentials and issues a token.
func (s *AccountService) Login(ctx context.Context, username, password string) (*domain.User, *domain.AuthToken, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		log.Debug("password mismatch", slog.String("user_id", user.ID.String()))
		return nil, nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, nil, ErrUserInactive
	}

	token, err := s.tokens.CreateToken(ctx, user.ID, s.tokenTTL, map[string]any{})
	if err != nil {
		return nil, nil, err
	}

	log.Info("user logged in", slog.String("user_id", user.ID.String()))
	return user, token, nil
}

// Logout revokes the presented token, if any. It always succeeds for unknown tokens.
func (s *AccountService) Logout(ctx context.Context, tokenValue string) error {
	if tokenValue == "" {
		return nil
	}
	return s.tokens.Revoke(ctx, tokenValue)
}
