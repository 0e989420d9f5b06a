package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/shelf-api/internal/domain"
	"github.com/phrazzld/shelf-api/internal/platform/logger"
	"github.com/phrazzld/shelf-api/internal/redact"
	"github.com/phrazzld/shelf-api/internal/store"
)

// PostgresTokenStore implements store.TokenStore.
type PostgresTokenStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTokenStore creates a token store over db. If logger is nil, slog.Default() is used.
func NewPostgresTokenStore(db store.DBTX, logger *slog.Logger) *PostgresTokenStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTokenStore{
		db:     db,
		logger: logger.With(slog.String("component", "token_store")),
	}
}

var _ store.TokenStore = (*PostgresTokenStore)(nil)

// Create implements store.TokenStore.Create.
func (s *PostgresTokenStore) Create(ctx context.Context, token *domain.AuthToken) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := token.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	permissions, err := json.Marshal(token.Permissions)
	if err != nil {
		return fmt.Errorf("failed to encode token permissions: %w", err)
	}

	query := `
		INSERT INTO auth_tokens (token, user_id, is_active, expires_at, status, permissions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		token.Token,
		token.UserID,
		token.IsActive,
		token.ExpiresAt,
		token.Status,
		permissions,
		token.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Warn("token value collision", slog.String("token", redact.Token(token.Token)))
			return store.ErrTokenExists
		}
		log.Error("failed to create token",
			slog.String("error", redact.Error(err)),
			slog.String("user_id", token.UserID.String()))
		return MapError(err)
	}

	return nil
}

// GetByValue implements store.TokenStore.GetByValue.
func (s *PostgresTokenStore) GetByValue(ctx context.Context, value string) (*domain.AuthToken, error) {
	query := `
		SELECT token, user_id, is_active, expires_at, status, permissions, created_at
		FROM auth_tokens
		WHERE token = $1
	`

	var token domain.AuthToken
	var status string
	var permissions []byte
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&token.Token,
		&token.UserID,
		&token.IsActive,
		&token.ExpiresAt,
		&status,
		&permissions,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTokenNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get token",
			slog.String("error", redact.Error(err)))
		return nil, MapError(err)
	}

	token.Status = domain.TokenStatus(status)
	token.Permissions = map[string]any{}
	if len(permissions) > 0 {
		if err := json.Unmarshal(permissions, &token.Permissions); err != nil {
			return nil, fmt.Errorf("failed to decode token permissions: %w", err)
		}
	}

	return &token, nil
}

// Revoke implements store.TokenStore.Revoke.
func (s *PostgresTokenStore) Revoke(ctx context.Context, value string) (bool, error) {
	query := `
		UPDATE auth_tokens
		SET status = 'revoked', is_active = FALSE
		WHERE token = $1 AND status <> 'revoked'
	`
	return s.execConditional(ctx, "revoke", query, value)
}

// MarkExpired implements store.TokenStore.MarkExpired.
func (s *PostgresTokenStore) MarkExpired(ctx context.Context, value string, now time.Time) (bool, error) {
	query := `
		UPDATE auth_tokens
		SET status = 'expired', is_active = FALSE
		WHERE token = $1 AND status = 'active' AND expires_at <= $2
	`
	return s.execConditional(ctx, "mark_expired", query, value, now.UTC())
}

// SweepExpired implements store.TokenStore.SweepExpired.
func (s *PostgresTokenStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE auth_tokens
		SET status = 'expired', is_active = FALSE
		WHERE status = 'active' AND expires_at <= $1
	`
	result, err := s.db.ExecContext(ctx, query, now.UTC())
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to sweep expired tokens",
			slog.String("error", err.Error()))
		return 0, MapError(err)
	}
	return rowsAffected(result)
}

func (s *PostgresTokenStore) execConditional(ctx context.Context, op, query string, args ...any) (bool, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("token update failed",
			slog.String("operation", op),
			slog.String("error", redact.Error(err)))
		return false, MapError(err)
	}
	n, err := rowsAffected(result)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
